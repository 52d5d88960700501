package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusplan/timetable-api/internal/service"
	appErrors "github.com/campusplan/timetable-api/pkg/errors"
	"github.com/campusplan/timetable-api/pkg/response"
)

// ExportHandler renders timetable windows as downloadable files.
type ExportHandler struct {
	exports *service.ExportService
	query   *InstanceHandler
}

// NewExportHandler constructs the handler.
func NewExportHandler(exports *service.ExportService, query *InstanceHandler) *ExportHandler {
	return &ExportHandler{exports: exports, query: query}
}

// Export godoc
// @Summary Export a timetable window
// @Description Renders the resolved window as CSV or PDF. Accepts the same filters as the instance query.
// @Tags Export
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf, defaults to csv"
// @Param title query string false "Document title for PDF exports"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /export/timetable [get]
func (h *ExportHandler) Export(c *gin.Context) {
	query, err := h.query.parseExportQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := service.ParseExportFormat(c.Query("format"))
	title := c.Query("title")
	if title == "" {
		title = "Timetable"
	}

	payload, contentType, err := h.exports.Render(c.Request.Context(), query, format, title)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("timetable-%s.%s", time.Now().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, payload)
}

// parseExportQuery mirrors parseQuery but resolves interval windows with
// export semantics, where quarter windows snap to the start of the week.
func (h *InstanceHandler) parseExportQuery(c *gin.Context) (service.InstanceQuery, error) {
	query, err := h.parseQuery(c)
	if err != nil {
		return query, err
	}

	if c.Query("start") != "" && c.Query("end") != "" {
		return query, nil
	}

	ref := time.Now()
	if date := c.Query("date"); date != "" {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
		}
		ref = parsed
	}

	interval := service.ParseInterval(c.Query("interval"))
	window, err := h.grid.Resolve(c.Request.Context(), ref, interval, true)
	if err != nil {
		return query, err
	}
	query.Filter.StartDate = window.Start
	query.Filter.EndDate = window.End
	return query, nil
}
