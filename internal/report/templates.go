package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"tareas/api/internal/analytics"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(template.New("area_report.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.UTC().Format(layout)
	},
	"percent": func(v float64) string {
		return fmt.Sprintf("%.0f%%", v*100)
	},
	"areaName": func(id string) string { return id },
}).ParseFS(templateFS, "templates/area_report.html"))

// TemplateData holds data for report template rendering
type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	Areas       []AreaRow
	Alerts      []analytics.Alert
	Bottlenecks []analytics.Bottleneck
	Load        []analytics.AssigneeLoad
	// AreaNames maps area ids to display names; unknown ids render as-is.
	AreaNames map[string]string
}

// RenderHTML renders the report template with provided data
func RenderHTML(data TemplateData) (string, error) {
	tmpl, err := reportTemplate.Clone()
	if err != nil {
		return "", err
	}
	tmpl.Funcs(template.FuncMap{
		"areaName": func(id string) string {
			if name, ok := data.AreaNames[id]; ok && name != "" {
				return name
			}
			return id
		},
	})
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
