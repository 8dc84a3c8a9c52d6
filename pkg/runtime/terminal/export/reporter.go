package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/de-tools/recon-atlas/pkg/models/api"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

type TableConfig struct {
	RuleWidth  int
	TypeWidth  int
	ValueWidth int
	ScoreWidth int
	TextWidth  int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		RuleWidth:  8,
		TypeWidth:  14,
		ValueWidth: 14,
		ScoreWidth: 7,
		TextWidth:  60,
	}
}

type Reporter struct {
	writer io.Writer
	format Format
	config TableConfig
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{
		writer: writer,
		format: FormatText,
		config: DefaultTableConfig(),
	}
}

func (c *Reporter) SetFormat(f Format) {
	c.format = f
}

func (c *Reporter) funcs() template.FuncMap {
	cfg := c.config
	cell := func(width int, v any) string {
		s := fmt.Sprint(v)
		if len(s) > width {
			s = s[:width-1] + "~"
		}
		return fmt.Sprintf("%-*s", width, s)
	}
	return template.FuncMap{
		"matchRow": func(code, typ, src, tgt, diff string, score float64, tier, text string) string {
			return fmt.Sprintf("| %s | %s | %*s | %*s | %*s | %*.2f | %-7s | %s |",
				cell(cfg.RuleWidth, code),
				cell(cfg.TypeWidth, typ),
				cfg.ValueWidth, src,
				cfg.ValueWidth, tgt,
				cfg.ValueWidth, diff,
				cfg.ScoreWidth, score,
				tier,
				cell(cfg.TextWidth, text))
		},
		"matchHeader": func() string {
			return fmt.Sprintf("| %s | %s | %*s | %*s | %*s | %*s | %-7s | %s |",
				cell(cfg.RuleWidth, "Rule"),
				cell(cfg.TypeWidth, "Type"),
				cfg.ValueWidth, "Source",
				cfg.ValueWidth, "Target",
				cfg.ValueWidth, "Difference",
				cfg.ScoreWidth, "Score",
				"Tier",
				cell(cfg.TextWidth, "Explanation"))
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+%s+%s+%s+%s+%s+%s+",
				strings.Repeat("-", cfg.RuleWidth+2),
				strings.Repeat("-", cfg.TypeWidth+2),
				strings.Repeat("-", cfg.ValueWidth+2),
				strings.Repeat("-", cfg.ValueWidth+2),
				strings.Repeat("-", cfg.ValueWidth+2),
				strings.Repeat("-", cfg.ScoreWidth+2),
				strings.Repeat("-", 9),
				strings.Repeat("-", cfg.TextWidth+2))
		},
	}
}

const sessionTmpl = `Session {{.ID}}
Property: {{.PropertyID}}  Period: {{.PeriodID}}
Status: {{.Status}}  Health: {{printf "%.2f" .HealthScore}}
{{- if .Override}}
Override: {{.Override.Actor}}: {{.Override.Justification}}{{end}}
{{- if .Error}}
Error: {{.Error}}{{end}}
`

const reportTmpl = `{{template "session" .Session}}
Matches: {{.Summary.TotalMatches}}  Failed rules: {{.Summary.FailedRules}}  Material: {{.Summary.MaterialMatches}}  Open discrepancies: {{.Summary.OpenDiscrepancies}}
{{- range $tier, $n := .Summary.ByTier}}
  {{$tier}}: {{$n}}{{end}}

{{separator}}
{{matchHeader}}
{{separator}}
{{range .Matches}}{{matchRow .RuleCode .MatchType .SourceValue .TargetValue .Difference .ConfidenceScore .Tier .Explanation}}
{{end}}{{separator}}
{{if .Discrepancies}}
=== Discrepancies ===
{{range .Discrepancies}}- {{.ID}} match={{.MatchID}} severity={{.Severity}} status={{.ResolutionStatus}}{{if .ResolutionAction}} action={{.ResolutionAction}}{{end}}{{with .ManualValue}} value={{.}}{{end}}{{if .ResolvedBy}} by={{.ResolvedBy}}{{end}}
{{end}}{{end}}`

const rulesTmpl = `{{range .}}{{.Code}}	{{if .Enabled}}on {{else}}off{{end}}	{{.Relationship}}	{{.Source}} -> {{.Target}}	threshold={{.Threshold}}{{if .Tolerance}} tolerance={{.Tolerance}}{{end}}{{if .Critical}} critical{{end}}{{if .Blocking}} blocking{{end}}	{{.Name}}
{{end}}`

const auditTmpl = `{{range .}}{{.CreatedAt.Format "2006-01-02 15:04:05"}}	{{.EntityType}}/{{.EntityID}}	{{.Action}}	{{.Actor}}{{if .Notes}}	{{.Notes}}{{end}}
{{end}}`

const matchTmpl = `{{.RuleCode}} {{.MatchType}} {{.Status}} confidence={{printf "%.2f" .ConfidenceScore}} ({{.Tier}})
  {{.SourceDocument}} {{.SourceValue}} vs {{.TargetDocument}} {{.TargetValue}} difference {{.Difference}}
  {{.Explanation}}{{if .Error}}
  error: {{.Error}}{{end}}
`

const discrepancyTmpl = `{{.ID}} match={{.MatchID}} severity={{.Severity}} status={{.ResolutionStatus}}{{if .ResolutionAction}} action={{.ResolutionAction}}{{end}}{{with .ManualValue}} value={{.}}{{end}}
`

func (c *Reporter) render(name, body string, data any) error {
	if c.format == FormatJSON {
		enc := json.NewEncoder(c.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	t, err := template.New(name).Funcs(c.funcs()).Parse(body)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	if _, err := t.New("session").Parse(sessionTmpl); err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return t.ExecuteTemplate(c.writer, name, data)
}

func (c *Reporter) Report(r api.Report) error {
	return c.render("report", reportTmpl, r)
}

func (c *Reporter) Session(s api.Session) error {
	return c.render("session-only", `{{template "session" .}}`, s)
}

func (c *Reporter) Rules(rules []api.Rule) error {
	return c.render("rules", rulesTmpl, rules)
}

func (c *Reporter) Audit(entries []api.AuditEntry) error {
	return c.render("audit", auditTmpl, entries)
}

func (c *Reporter) Match(m api.Match) error {
	return c.render("match", matchTmpl, m)
}

func (c *Reporter) Discrepancy(d api.Discrepancy) error {
	return c.render("discrepancy", discrepancyTmpl, d)
}

// Count prints a one-line summary of a bulk operation.
func (c *Reporter) Count(action string, n int) error {
	return c.render("count", `{{.Action}}: {{.Count}}
`, struct {
		Action string `json:"action"`
		Count  int    `json:"count"`
	}{action, n})
}
