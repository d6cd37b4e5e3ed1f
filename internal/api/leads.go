package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/eternisai/leadgen-assistant/internal/errors"
	"github.com/eternisai/leadgen-assistant/internal/leads"
)

// LeadsPage is the response of GET /api/leads.
type LeadsPage struct {
	leads.PageResult
	Filters    leads.Filters `json:"filters"`
	Sort       leads.Sort    `json:"sort"`
	Fetched    int           `json:"fetched"`
	Industries []string      `json:"industries"`
	Selected   []string      `json:"selected"`
	Error      string        `json:"error,omitempty"`
}

// StatusRequest is the body of the status update endpoints. IDs is only read
// by the bulk endpoint, where an empty list means the current selection.
type StatusRequest struct {
	IDs    []string            `json:"ids"`
	Status leads.ContactStatus `json:"status" binding:"required"`
}

// IDsRequest is the body of the bulk endpoints without further parameters.
type IDsRequest struct {
	IDs []string `json:"ids"`
}

// SortRequest is the body of PUT /api/leads/sort.
type SortRequest struct {
	Field string `json:"field" binding:"required"`
}

// ListLeads handles GET /api/leads?page=&size=
func (h *Handler) ListLeads(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		apperrors.AbortWithBadRequest(c, "page must be a number", nil)
		return
	}
	size, err := queryInt(c, "size", 25)
	if err != nil {
		apperrors.AbortWithBadRequest(c, "size must be a number", nil)
		return
	}

	c.JSON(http.StatusOK, h.leadsPage(page, size))
}

// LeadsState handles GET /api/leads/state
func (h *Handler) LeadsState(c *gin.Context) {
	c.JSON(http.StatusOK, h.leads.Snapshot())
}

// ReloadLeads handles POST /api/leads/reload
func (h *Handler) ReloadLeads(c *gin.Context) {
	if err := h.leads.Load(c.Request.Context()); err != nil {
		h.abortWithError(c, err, "Failed to load leads")
		return
	}
	c.JSON(http.StatusOK, h.leadsPage(1, 0))
}

// ListTags handles GET /api/leads/tags, fetching the catalogue when asked to.
func (h *Handler) ListTags(c *gin.Context) {
	if c.Query("refresh") == "true" || len(h.leads.Tags()) == 0 {
		if err := h.leads.LoadTags(c.Request.Context()); err != nil {
			h.abortWithError(c, err, "Failed to load tags")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"tags": h.leads.Tags()})
}

// UpdateLeadStatus handles PATCH /api/leads/:id/status
func (h *Handler) UpdateLeadStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithBadRequest(c, "status is required", nil)
		return
	}

	id := c.Param("id")
	if err := h.leads.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		h.abortWithError(c, err, "Failed to update lead")
		return
	}

	lead, ok := h.leads.Lead(id)
	if !ok {
		// Removed by a concurrent reload.
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, lead)
}

// DeleteLead handles DELETE /api/leads/:id?confirm=true
func (h *Handler) DeleteLead(c *gin.Context) {
	if err := h.leads.Delete(c.Request.Context(), c.Param("id"), confirmFrom(c)); err != nil {
		h.abortWithError(c, err, "Failed to delete lead")
		return
	}
	c.Status(http.StatusNoContent)
}

// BulkUpdateStatus handles POST /api/leads/bulk/status
func (h *Handler) BulkUpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithBadRequest(c, "status is required", nil)
		return
	}

	ids := h.idsOrSelection(req.IDs)
	if err := h.leads.BulkUpdateStatus(c.Request.Context(), ids, req.Status); err != nil {
		h.abortWithError(c, err, "Failed to update leads")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(ids)})
}

// BulkDelete handles POST /api/leads/bulk/delete?confirm=true
func (h *Handler) BulkDelete(c *gin.Context) {
	var req IDsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.AbortWithBadRequest(c, "invalid request body", nil)
			return
		}
	}

	ids := h.idsOrSelection(req.IDs)
	if err := h.leads.BulkDelete(c.Request.Context(), ids, confirmFrom(c)); err != nil {
		h.abortWithError(c, err, "Failed to delete leads")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(ids)})
}

// BulkTag handles POST /api/leads/bulk/tags/:tagId
func (h *Handler) BulkTag(c *gin.Context) {
	var req IDsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.AbortWithBadRequest(c, "invalid request body", nil)
			return
		}
	}

	ids := h.idsOrSelection(req.IDs)
	if err := h.leads.BulkTag(c.Request.Context(), ids, c.Param("tagId")); err != nil {
		h.abortWithError(c, err, "Failed to update lead tags")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tagged": len(ids)})
}

// SetFilters handles PUT /api/leads/filters with a partial filter update.
func (h *Handler) SetFilters(c *gin.Context) {
	var patch leads.FilterPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		apperrors.AbortWithBadRequest(c, "invalid filters", nil)
		return
	}
	filters := h.leads.SetFilters(patch)
	c.JSON(http.StatusOK, gin.H{"filters": filters, "count": h.leads.Count()})
}

// ClearFilters handles DELETE /api/leads/filters
func (h *Handler) ClearFilters(c *gin.Context) {
	h.leads.ClearFilters()
	c.JSON(http.StatusOK, gin.H{"filters": h.leads.Filters(), "count": h.leads.Count()})
}

// SetSort handles PUT /api/leads/sort. Picking the current field flips the direction.
func (h *Handler) SetSort(c *gin.Context) {
	var req SortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithBadRequest(c, "field is required", nil)
		return
	}
	field, err := leads.ParseSortField(req.Field)
	if err != nil {
		apperrors.AbortWithBadRequest(c, err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sort": h.leads.SetSort(field)})
}

// ToggleSelection handles POST /api/leads/:id/select
func (h *Handler) ToggleSelection(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.leads.Lead(id); !ok {
		h.abortWithError(c, leads.ErrLeadNotFound, "Lead not found")
		return
	}
	selected := h.leads.ToggleSelection(id)
	c.JSON(http.StatusOK, gin.H{"id": id, "selected": selected, "selection": h.leads.Selected()})
}

// SelectAll handles POST /api/leads/selection/all
func (h *Handler) SelectAll(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"selection": h.leads.SelectAll()})
}

// ClearSelection handles DELETE /api/leads/selection
func (h *Handler) ClearSelection(c *gin.Context) {
	h.leads.ClearSelection()
	c.Status(http.StatusNoContent)
}

// TagLead handles POST /api/leads/:id/tags/:tagId
func (h *Handler) TagLead(c *gin.Context) {
	if err := h.leads.TagLead(c.Request.Context(), c.Param("id"), c.Param("tagId")); err != nil {
		h.abortWithError(c, err, "Failed to update lead tags")
		return
	}
	c.Status(http.StatusNoContent)
}

// UntagLead handles DELETE /api/leads/:id/tags/:tagId
func (h *Handler) UntagLead(c *gin.Context) {
	if err := h.leads.UntagLead(c.Request.Context(), c.Param("id"), c.Param("tagId")); err != nil {
		h.abortWithError(c, err, "Failed to update lead tags")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) leadsPage(page, size int) LeadsPage {
	state := h.leads.Snapshot()
	return LeadsPage{
		PageResult: h.leads.Page(page, size),
		Filters:    state.Filters,
		Sort:       state.Sort,
		Fetched:    state.Total,
		Industries: h.leads.Industries(),
		Selected:   state.Selected,
		Error:      state.Error,
	}
}

func (h *Handler) idsOrSelection(ids []string) []string {
	if len(ids) > 0 {
		return ids
	}
	return h.leads.Selected()
}

// confirmFrom turns ?confirm=true into the confirmation the view-model asks for.
func confirmFrom(c *gin.Context) leads.ConfirmFunc {
	ok, _ := strconv.ParseBool(c.Query("confirm"))
	return func(string) bool { return ok }
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
