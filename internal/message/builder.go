// Package message renders milestone alert text.
package message

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"milestone-bot/internal/domain"
)

// DefaultTemplate is used by groups without their own template.
// Telegram Markdown (v1) formatting.
const DefaultTemplate = `🚨 *{{md .Symbol}}* hit *{{md .Label}}* market cap since call-out!
Initial MC: ${{.Initial}}
Current MC: ${{.Current}}
Called: {{.CalledAt}}
⏫ Still moving, watch closely.`

// Data is the template input for one alert.
type Data struct {
	Group        domain.Group
	Symbol       string
	TokenAddress string
	Label        string
	Milestone    float64
	Initial      string // FormatUSD of initial cap
	Current      string // FormatUSD of current cap
	Multiple     string // e.g. "2.35x"
	CalledAt     string // RFC 3339, UTC
}

var funcs = template.FuncMap{"md": EscapeMarkdown}

// Builder renders alerts with a per-group template.
type Builder struct {
	def    *template.Template
	groups map[domain.Group]*template.Template
}

// NewBuilder parses the default template and every group override in reg.
func NewBuilder(reg *domain.GroupRegistry) (*Builder, error) {
	def, err := template.New("default").Funcs(funcs).Parse(DefaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse default template: %w", err)
	}

	b := &Builder{def: def, groups: make(map[domain.Group]*template.Template)}
	if reg == nil {
		return b, nil
	}
	for _, g := range reg.Groups() {
		s, _ := reg.Lookup(g)
		if strings.TrimSpace(s.Template) == "" {
			continue
		}
		t, err := template.New(string(g)).Funcs(funcs).Option("missingkey=error").Parse(s.Template)
		if err != nil {
			return nil, domain.NewError(domain.KindConfiguration, "parse template",
				fmt.Errorf("group %s: %w", g, err))
		}
		b.groups[g] = t
	}
	return b, nil
}

// Build renders the alert for a confirmed milestone crossing.
func (b *Builder) Build(group domain.Group, token domain.Token, m domain.MilestoneConfig, currentCap float64) (string, error) {
	data := Data{
		Group:        group,
		Symbol:       token.Symbol,
		TokenAddress: token.TokenAddress,
		Label:        m.Label,
		Milestone:    m.Value,
		Initial:      FormatUSD(token.InitialMarketCapUSD),
		Current:      FormatUSD(currentCap),
		CalledAt:     token.FirstCalledAt.UTC().Format(time.RFC3339),
	}
	if data.Symbol == "" {
		data.Symbol = token.TokenAddress
	}
	if data.Label == "" {
		data.Label = decimal.NewFromFloat(m.Value).String() + "x"
	}
	if token.InitialMarketCapUSD > 0 {
		data.Multiple = decimal.NewFromFloat(currentCap / token.InitialMarketCapUSD).StringFixed(2) + "x"
	}

	t := b.def
	if gt, ok := b.groups[group]; ok {
		t = gt
	}

	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", group, err)
	}
	return sb.String(), nil
}

var (
	billion  = decimal.NewFromInt(1_000_000_000)
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
)

// FormatUSD abbreviates an amount with two decimals: 1.23B, 4.56M, 7.89K, 12.00.
func FormatUSD(amount float64) string {
	d := decimal.NewFromFloat(amount)
	switch {
	case d.GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(2) + "B"
	case d.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(2) + "M"
	case d.GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(2) + "K"
	default:
		return d.StringFixed(2)
	}
}

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

// EscapeMarkdown escapes Telegram Markdown (v1) control characters.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
