package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusplan/timetable-api/internal/models"
	"github.com/campusplan/timetable-api/internal/service"
	appErrors "github.com/campusplan/timetable-api/pkg/errors"
	"github.com/campusplan/timetable-api/pkg/response"
)

// CurriculumHandler exposes the curriculum hierarchy endpoints.
type CurriculumHandler struct {
	service *service.CurriculumService
}

// NewCurriculumHandler constructs the handler.
func NewCurriculumHandler(svc *service.CurriculumService) *CurriculumHandler {
	return &CurriculumHandler{service: svc}
}

// RangesFor godoc
// @Summary Curriculum nodes for a resource
// @Description Lists every curriculum node the resource is mapped to
// @Tags Curriculum
// @Produce json
// @Param resource query string true "Resource type: program, pool or subject"
// @Param id query string true "Resource id"
// @Success 200 {object} response.Envelope
// @Router /curriculum/ranges [get]
func (h *CurriculumHandler) RangesFor(c *gin.Context) {
	resource := models.RangeResource(c.Query("resource"))
	switch resource {
	case models.ResourceProgram, models.ResourcePool, models.ResourceSubject:
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "resource must be program, pool or subject"))
		return
	}

	ranges, err := h.service.RangesFor(c.Request.Context(), resource, c.Query("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ranges, nil)
}

// Children godoc
// @Summary Direct children of a curriculum node
// @Tags Curriculum
// @Produce json
// @Param id path string true "Range ID"
// @Success 200 {object} response.Envelope
// @Router /curriculum/ranges/{id}/children [get]
func (h *CurriculumHandler) Children(c *gin.Context) {
	children, err := h.service.Children(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, children, nil)
}

// Descendants godoc
// @Summary Full subtree of a curriculum node
// @Tags Curriculum
// @Produce json
// @Param id path string true "Range ID"
// @Success 200 {object} response.Envelope
// @Router /curriculum/ranges/{id}/descendants [get]
func (h *CurriculumHandler) Descendants(c *gin.Context) {
	descendants, err := h.service.Descendants(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, descendants, nil)
}

// Ancestors godoc
// @Summary Containment chain above a curriculum node
// @Tags Curriculum
// @Produce json
// @Param id path string true "Range ID"
// @Success 200 {object} response.Envelope
// @Router /curriculum/ranges/{id}/ancestors [get]
func (h *CurriculumHandler) Ancestors(c *gin.Context) {
	ancestors, err := h.service.Ancestors(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ancestors, nil)
}

// Map godoc
// @Summary Map a resource into the curriculum
// @Description Inserts a new node for the resource under the given parent
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body handler.mapResourceRequest true "Mapping payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curriculum/ranges [post]
func (h *CurriculumHandler) Map(c *gin.Context) {
	var req mapResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid mapping payload"))
		return
	}

	node, err := h.service.MapResource(c.Request.Context(), req.ParentRangeID, models.RangeResource(req.Resource), req.ResourceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, node)
}

// Unmap godoc
// @Summary Remove a curriculum node and its subtree
// @Tags Curriculum
// @Produce json
// @Param id path string true "Range ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curriculum/ranges/{id} [delete]
func (h *CurriculumHandler) Unmap(c *gin.Context) {
	if err := h.service.UnmapResource(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Subjects godoc
// @Summary Subject scope of a program
// @Description Resolves subject ids under a program, optionally narrowed to a pool
// @Tags Curriculum
// @Produce json
// @Param program query string true "Program id"
// @Param pool query string false "Pool id"
// @Success 200 {object} response.Envelope
// @Router /curriculum/subjects [get]
func (h *CurriculumHandler) Subjects(c *gin.Context) {
	program := c.Query("program")
	if program == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "program is required"))
		return
	}

	subjects, err := h.service.SubjectScope(c.Request.Context(), program, c.Query("pool"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

type mapResourceRequest struct {
	ParentRangeID string `json:"parent_range_id" binding:"required"`
	Resource      string `json:"resource" binding:"required,oneof=program pool subject"`
	ResourceID    string `json:"resource_id" binding:"required"`
}
