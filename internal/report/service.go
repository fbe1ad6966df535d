package report

import (
	"context"
	"fmt"
	"time"

	"tareas/api/internal/analytics"
	"tareas/api/internal/store"
)

// Service builds area reports.
type Service struct {
	pdf func(ctx context.Context, html string) ([]byte, error)
}

// NewService returns a service that prints PDFs with headless Chrome.
func NewService() *Service {
	return &Service{pdf: printPDF}
}

// Build computes the analytics for the snapshot and renders it.
func (s *Service) Build(ctx context.Context, req Request) (*Result, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	title := req.Title
	if title == "" {
		title = "Reporte de áreas"
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = analytics.DefaultOverloadThreshold
	}

	data := BuildTemplateData(title, req.Areas, req.Tasks, threshold, now)
	html, err := RenderHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	filename := sanitizeFilename(title) + "-" + now.Format("2006-01-02")
	switch req.Format {
	case FormatHTML:
		return &Result{Data: []byte(html), Filename: filename + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPDF, "":
		pdfData, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: pdfData, Filename: filename + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

// BuildTemplateData derives every report section from one task snapshot.
// Areas without tasks still get a row so inactive areas are visible.
func BuildTemplateData(title string, areas []store.Area, tasks []store.Task, threshold int, now time.Time) TemplateData {
	byArea := analytics.GroupByArea(tasks)
	names := make(map[string]string, len(areas))
	for _, area := range areas {
		names[area.ID] = area.Name
		if _, ok := byArea[area.ID]; !ok {
			byArea[area.ID] = nil
		}
	}

	summaries := analytics.SummarizeAreas(byArea, now)
	rows := make([]AreaRow, 0, len(summaries))
	for _, summary := range summaries {
		name := names[summary.AreaID]
		if name == "" {
			name = summary.AreaID
		}
		rows = append(rows, AreaRow{AreaSummary: summary, Name: name})
	}

	return TemplateData{
		Title:       title,
		GeneratedAt: now,
		Areas:       rows,
		Alerts:      analytics.ComputeAlerts(byArea, now, analytics.DefaultAlertOptions()),
		Bottlenecks: analytics.DetectBottlenecks(tasks, now, analytics.DefaultBottleneckWindow),
		Load:        analytics.ComputeLoadDistribution(tasks, threshold, now),
		AreaNames:   names,
	}
}
