package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/drafts/internal/reconcile"
	"example.com/backstage/services/drafts/internal/search"
	"example.com/backstage/services/drafts/internal/services"
)

// Query parameters that steer the list rather than filter it
const (
	paramRefresh = "refresh"
	paramPage    = "page"
)

// CatalogHandler serves the accumulated material lists
type CatalogHandler struct {
	catalog *services.CatalogService
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// RegisterRoutes registers the handler's routes
func (h *CatalogHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/api/v1/catalog/:session/:list", h.HandleNextPage)
	router.DELETE("/api/v1/catalog/:session", h.HandleForget)
}

// HandleNextPage loads the next page of a list. Any query parameter other
// than page and refresh is a filter; changing the filters restarts the list.
func (h *CatalogHandler) HandleNextPage(c *gin.Context) {
	programID, err := strconv.ParseInt(c.Query(search.FilterProgram), 10, 64)
	if err != nil || programID <= 0 {
		WriteError(c, NewError("program_id is required", http.StatusBadRequest, "INVALID_REQUEST"), ErrInvalidRequest)
		return
	}

	session, list := c.Param("session"), c.Param("list")
	if refresh, _ := strconv.ParseBool(c.Query(paramRefresh)); refresh {
		h.catalog.Refresh(session, list)
	}

	page, err := h.catalog.Next(c.Request.Context(), session, list, programID, filtersOf(c))
	if err != nil {
		WriteError(c, err, ErrCatalogFailed)
		return
	}
	c.JSON(http.StatusOK, page)
}

// HandleForget drops every list of a browse session
func (h *CatalogHandler) HandleForget(c *gin.Context) {
	h.catalog.Forget(c.Param("session"))
	c.Status(http.StatusNoContent)
}

func filtersOf(c *gin.Context) reconcile.Filters {
	filters := make(reconcile.Filters)
	for key, values := range c.Request.URL.Query() {
		if key == paramRefresh || key == paramPage || len(values) == 0 {
			continue
		}
		filters[key] = values[0]
	}
	return filters
}
