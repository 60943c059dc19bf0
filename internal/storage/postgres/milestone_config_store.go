package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/storage"
)

// MilestoneConfigStore implements storage.MilestoneConfigStore using PostgreSQL.
type MilestoneConfigStore struct {
	pool *Pool
}

// NewMilestoneConfigStore creates a new MilestoneConfigStore.
func NewMilestoneConfigStore(pool *Pool) *MilestoneConfigStore {
	return &MilestoneConfigStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MilestoneConfigStore = (*MilestoneConfigStore)(nil)

const milestoneColumns = `id, group_name, milestone_value, milestone_label, is_active,
	created_at_utc, updated_at_utc, created_by, notes`

// ListActive returns active milestones for a group, ascending by value.
func (s *MilestoneConfigStore) ListActive(ctx context.Context, group domain.Group) ([]domain.MilestoneConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+milestoneColumns+`
		FROM milestones_config
		WHERE group_name = $1 AND is_active
		ORDER BY milestone_value ASC
	`, string(group))
	if err != nil {
		return nil, dataSourceError("list milestones", err)
	}
	defer rows.Close()

	var out []domain.MilestoneConfig
	for rows.Next() {
		c, err := scanMilestone(rows)
		if err != nil {
			return nil, dataSourceError("scan milestone", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, dataSourceError("iterate milestones", err)
	}
	return out, nil
}

// GetByID returns a milestone by id. Returns ErrNotFound if not exists.
func (s *MilestoneConfigStore) GetByID(ctx context.Context, id int64) (*domain.MilestoneConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+milestoneColumns+`
		FROM milestones_config
		WHERE id = $1
	`, id)

	c, err := scanMilestone(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, dataSourceError("get milestone", err)
	}
	return c, nil
}

// Create inserts an active milestone. Returns ErrDuplicateKey if an
// active milestone with the same (group, value) exists.
func (s *MilestoneConfigStore) Create(ctx context.Context, cfg *domain.MilestoneConfig) (*domain.MilestoneConfig, error) {
	if cfg == nil || cfg.Group == "" || cfg.Value <= 0 {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO milestones_config (group_name, milestone_value, milestone_label, is_active, created_by, notes)
		VALUES ($1, $2, $3, TRUE, $4, $5)
		RETURNING `+milestoneColumns,
		string(cfg.Group), cfg.Value, cfg.Label, cfg.CreatedBy, cfg.Notes,
	)

	c, err := scanMilestone(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, dataSourceError("create milestone", err)
	}
	return c, nil
}

// Deactivate marks a milestone inactive. Returns ErrNotFound if id does not exist.
func (s *MilestoneConfigStore) Deactivate(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE milestones_config
		SET is_active = FALSE, updated_at_utc = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return dataSourceError("deactivate milestone", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanMilestone(row pgx.Row) (*domain.MilestoneConfig, error) {
	var (
		c     domain.MilestoneConfig
		group string
	)
	err := row.Scan(&c.ID, &group, &c.Value, &c.Label, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt, &c.CreatedBy, &c.Notes)
	if err != nil {
		return nil, err
	}
	c.Group = domain.Group(group)
	return &c, nil
}
