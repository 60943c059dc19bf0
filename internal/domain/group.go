package domain

// Group partitions tokens, milestones and a notification channel.
// Groups are processed independently in every polling cycle.
type Group string

// Known groups.
const (
	GroupFSM   Group = "fsm"
	GroupIssam Group = "issam"
)

// DefaultGroups lists the known groups in processing order.
var DefaultGroups = []Group{GroupFSM, GroupIssam}

// GroupSettings holds per-group wiring resolved through GroupRegistry.
type GroupSettings struct {
	Group      Group
	TokenTable string // table holding this group's called tokens
	ChatID     string // Telegram chat id or @channel
	ThreadID   int    // optional forum topic, 0 = none
	Template   string // text/template for alert messages, empty = default
}

// GroupRegistry is the lookup table of group settings.
// Order of registration is the processing order.
type GroupRegistry struct {
	order    []Group
	settings map[Group]GroupSettings
}

// NewGroupRegistry builds a registry from settings in the given order.
// Later duplicates replace earlier entries but keep the original position.
func NewGroupRegistry(settings ...GroupSettings) *GroupRegistry {
	r := &GroupRegistry{settings: make(map[Group]GroupSettings, len(settings))}
	for _, s := range settings {
		if _, exists := r.settings[s.Group]; !exists {
			r.order = append(r.order, s.Group)
		}
		r.settings[s.Group] = s
	}
	return r
}

// Lookup returns settings for a group.
func (r *GroupRegistry) Lookup(g Group) (GroupSettings, bool) {
	s, ok := r.settings[g]
	return s, ok
}

// Groups returns registered groups in processing order.
func (r *GroupRegistry) Groups() []Group {
	out := make([]Group, len(r.order))
	copy(out, r.order)
	return out
}
