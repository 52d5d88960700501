package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusplan/timetable-api/internal/models"
	"github.com/campusplan/timetable-api/internal/service"
	appErrors "github.com/campusplan/timetable-api/pkg/errors"
	"github.com/campusplan/timetable-api/pkg/response"
)

const dateLayout = "2006-01-02"

// InstanceHandler exposes timetable query and participation endpoints.
type InstanceHandler struct {
	instances    *service.InstanceService
	availability *service.AvailabilityService
	grid         *service.GridService
}

// NewInstanceHandler constructs the handler.
func NewInstanceHandler(instances *service.InstanceService, availability *service.AvailabilityService, grid *service.GridService) *InstanceHandler {
	return &InstanceHandler{instances: instances, availability: availability, grid: grid}
}

// List godoc
// @Summary Query timetable instances
// @Description Resolve instances inside a date window using hierarchical filters
// @Tags Instances
// @Produce json
// @Param date query string false "Reference date (YYYY-MM-DD), defaults to today"
// @Param interval query string false "Window size: day, week, month, quarter, half, term"
// @Param start query string false "Explicit window start, overrides interval"
// @Param end query string false "Explicit window end, overrides interval"
// @Param events query string false "Comma-separated event ids"
// @Param subjects query string false "Comma-separated subject ids"
// @Param units query string false "Comma-separated unit ids"
// @Param courses query string false "Comma-separated course ids"
// @Param groups query string false "Comma-separated group ids"
// @Param categories query string false "Comma-separated category ids"
// @Param organizations query string false "Comma-separated organization ids"
// @Param persons query string false "Comma-separated person ids"
// @Param rooms query string false "Comma-separated room ids"
// @Param program query string false "Program id resolved through the curriculum"
// @Param pool query string false "Pool id narrowing the program scope"
// @Param role query string false "Person role id"
// @Param status query string false "Delta mode: NORMAL, CURRENT, NEW, REMOVED, CHANGED"
// @Param cutoff query string false "Delta cutoff date (YYYY-MM-DD)"
// @Param view query string false "Set to mine for the personal timetable"
// @Param mode query string false "Personal view mode: REGISTRATIONS or BOOKMARKS"
// @Param unpublished query bool false "Include unpublished timetables (planners only)"
// @Success 200 {object} response.Envelope
// @Router /instances [get]
func (h *InstanceHandler) List(c *gin.Context) {
	query, err := h.parseQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	details, err := h.instances.ListDetails(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// Get godoc
// @Summary Get one instance
// @Tags Instances
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id} [get]
func (h *InstanceHandler) Get(c *gin.Context) {
	detail, err := h.instances.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Jump godoc
// @Summary Find the nearest date with matching instances
// @Description Probes outside the current window for the nearest block date
// @Tags Instances
// @Produce json
// @Param direction query string true "next or previous"
// @Success 200 {object} response.Envelope
// @Router /instances/jump [get]
func (h *InstanceHandler) Jump(c *gin.Context) {
	query, err := h.parseQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var date *time.Time
	switch strings.ToLower(c.Query("direction")) {
	case "previous":
		date, err = h.instances.PreviousDate(c.Request.Context(), query)
	default:
		date, err = h.instances.NextDate(c.Request.Context(), query)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	if date == nil {
		response.JSON(c, http.StatusOK, gin.H{"date": nil}, nil)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"date": date.Format(dateLayout)}, nil)
}

// Availability godoc
// @Summary Capacity figures for an instance
// @Description Capacity, registrations, interest and presence over the sibling pool
// @Tags Availability
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/availability [get]
func (h *InstanceHandler) Availability(c *gin.Context) {
	availability, err := h.availability.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, availability, nil)
}

// Register godoc
// @Summary Register for an instance
// @Tags Availability
// @Produce json
// @Param id path string true "Instance ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /instances/{id}/register [post]
func (h *InstanceHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.availability.Register(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Deregister godoc
// @Summary Remove a registration
// @Tags Availability
// @Produce json
// @Param id path string true "Instance ID"
// @Success 204 {object} response.Envelope
// @Router /instances/{id}/register [delete]
func (h *InstanceHandler) Deregister(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.availability.Deregister(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Bookmark godoc
// @Summary Set or clear a bookmark
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param payload body map[string]bool true "Bookmark flag"
// @Success 204 {object} response.Envelope
// @Router /instances/{id}/bookmark [post]
func (h *InstanceHandler) Bookmark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Bookmarked bool `json:"bookmarked"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bookmark payload"))
		return
	}

	if err := h.availability.Bookmark(c.Request.Context(), c.Param("id"), claims.UserID, payload.Bookmarked); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Busy godoc
// @Summary Check schedule conflicts
// @Description Reports whether the current user has a registered block overlapping the window
// @Tags Availability
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param start query string true "Start time (HH:MM)"
// @Param end query string true "End time (HH:MM)"
// @Success 200 {object} response.Envelope
// @Router /schedule/busy [get]
func (h *InstanceHandler) Busy(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	date, err := time.Parse(dateLayout, c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	start, end := c.Query("start"), c.Query("end")
	if start == "" || end == "" || start >= end {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "start must precede end"))
		return
	}

	busy, err := h.availability.IsBusy(c.Request.Context(), claims.UserID, date, start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"busy": busy}, nil)
}

// parseQuery builds an InstanceQuery from the request. The window comes from
// either an explicit start/end pair or a reference date plus interval.
func (h *InstanceHandler) parseQuery(c *gin.Context) (service.InstanceQuery, error) {
	var query service.InstanceQuery
	filter := &query.Filter

	window, err := h.parseWindow(c)
	if err != nil {
		return query, err
	}
	filter.StartDate = window.Start
	filter.EndDate = window.End

	filter.EventIDs = splitParam(c.Query("events"))
	filter.SubjectIDs = splitParam(c.Query("subjects"))
	filter.UnitIDs = splitParam(c.Query("units"))
	filter.CourseIDs = splitParam(c.Query("courses"))
	filter.GroupIDs = splitParam(c.Query("groups"))
	filter.CategoryIDs = splitParam(c.Query("categories"))
	filter.OrganizationIDs = splitParam(c.Query("organizations"))
	filter.PersonIDs = splitParam(c.Query("persons"))
	filter.RoomIDs = splitParam(c.Query("rooms"))
	filter.RoleID = c.Query("role")

	query.ProgramID = c.Query("program")
	query.PoolID = c.Query("pool")

	if status := strings.ToUpper(c.Query("status")); status != "" {
		filter.Status = models.StatusFilter(status)
	}
	if cutoff := c.Query("cutoff"); cutoff != "" {
		parsed, err := time.Parse(dateLayout, cutoff)
		if err != nil {
			return query, appErrors.Clone(appErrors.ErrValidation, "cutoff must be YYYY-MM-DD")
		}
		filter.DeltaCutoff = &parsed
	}

	claims := claimsFromContext(c)

	if strings.EqualFold(c.Query("view"), "mine") {
		my := &models.MyContext{Mode: models.MyMode(strings.ToUpper(c.Query("mode")))}
		if claims != nil {
			my.UserID = claims.UserID
		}
		filter.My = my
	}

	// Unpublished timetables are visible to planning staff only.
	if raw := c.Query("unpublished"); raw != "" {
		if want, err := strconv.ParseBool(raw); err == nil && want && claims != nil {
			switch claims.Role {
			case models.RoleAdmin, models.RolePlanner:
				filter.ShowUnpublished = true
			}
		}
	}

	return query, nil
}

func (h *InstanceHandler) parseWindow(c *gin.Context) (service.Window, error) {
	if start, end := c.Query("start"), c.Query("end"); start != "" && end != "" {
		from, err := time.Parse(dateLayout, start)
		if err != nil {
			return service.Window{}, appErrors.Clone(appErrors.ErrValidation, "start must be YYYY-MM-DD")
		}
		to, err := time.Parse(dateLayout, end)
		if err != nil {
			return service.Window{}, appErrors.Clone(appErrors.ErrValidation, "end must be YYYY-MM-DD")
		}
		if to.Before(from) {
			return service.Window{}, appErrors.Clone(appErrors.ErrValidation, "end must not precede start")
		}
		return service.Window{Start: from, End: to}, nil
	}

	ref := time.Now()
	if date := c.Query("date"); date != "" {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			return service.Window{}, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
		}
		ref = parsed
	}

	interval := service.ParseInterval(c.Query("interval"))
	return h.grid.Resolve(c.Request.Context(), ref, interval, false)
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
