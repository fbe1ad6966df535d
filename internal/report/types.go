// Package report renders area analytics as HTML and PDF.
package report

import (
	"errors"
	"time"

	"tareas/api/internal/analytics"
	"tareas/api/internal/store"
)

// Format represents the report output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Request holds the snapshot a report is built from.
type Request struct {
	Title     string
	Format    Format
	Areas     []store.Area
	Tasks     []store.Task
	Threshold int
	Now       time.Time
}

// Result contains the rendered report
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates headless Chrome is not installed.
	ErrPDFDependencyMissing = errors.New("report pdf dependency missing")
	ErrUnsupportedFormat    = errors.New("unsupported report format")
)

// AreaRow is one line of the summary table.
type AreaRow struct {
	analytics.AreaSummary
	Name string
}
