package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campusplan/timetable-api/internal/models"
	"github.com/campusplan/timetable-api/pkg/config"
	appErrors "github.com/campusplan/timetable-api/pkg/errors"
	"github.com/campusplan/timetable-api/pkg/export"
)

// ExportFormat names the supported export encodings.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

var exportHeaders = []string{"Date", "Start", "End", "Course", "Event", "Method", "Registered"}

type instanceLister interface {
	ListDetails(ctx context.Context, q InstanceQuery) ([]models.InstanceDetail, error)
}

// ExportService renders resolved timetable windows as downloadable documents.
type ExportService struct {
	instances instanceLister
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	cfg       config.ExportConfig
	logger    *zap.Logger
}

// NewExportService instantiates ExportService.
func NewExportService(instances instanceLister, cfg config.ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		instances: instances,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		cfg:       cfg,
		logger:    logger,
	}
}

// Render resolves the query and encodes the result. The returned content type
// matches the chosen format.
func (s *ExportService) Render(ctx context.Context, q InstanceQuery, format ExportFormat, title string) ([]byte, string, error) {
	if !s.cfg.Enabled {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "exports are disabled")
	}

	details, err := s.instances.ListDetails(ctx, q)
	if err != nil {
		return nil, "", err
	}
	if s.cfg.MaxRows > 0 && len(details) > s.cfg.MaxRows {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("result exceeds the export limit of %d rows", s.cfg.MaxRows))
	}

	dataset := buildDataset(details)

	switch format {
	case ExportPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return payload, "application/pdf", nil
	case ExportCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// ParseExportFormat normalises a format name, defaulting to CSV.
func ParseExportFormat(raw string) ExportFormat {
	if strings.EqualFold(raw, string(ExportPDF)) {
		return ExportPDF
	}
	return ExportCSV
}

func buildDataset(details []models.InstanceDetail) export.Dataset {
	rows := make([]map[string]string, 0, len(details))
	for _, d := range details {
		event := ""
		if d.EventName != nil {
			event = *d.EventName
		}
		rows = append(rows, map[string]string{
			"Date":       d.Date.Format("2006-01-02"),
			"Start":      d.StartTime,
			"End":        d.EndTime,
			"Course":     d.CourseName,
			"Event":      event,
			"Method":     d.MethodName,
			"Registered": fmt.Sprintf("%d", d.Registered),
		})
	}
	return export.Dataset{Headers: exportHeaders, Rows: rows}
}
