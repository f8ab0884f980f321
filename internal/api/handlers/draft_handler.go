package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"

	"example.com/backstage/services/drafts/internal/draft"
	"example.com/backstage/services/drafts/internal/services"
	"example.com/backstage/services/drafts/internal/tracing"
)

// DraftHandler handles draft-related HTTP requests
type DraftHandler struct {
	drafts *services.DraftService
	tracer tracing.Tracer
}

// NewDraftHandler creates a new draft handler
func NewDraftHandler(drafts *services.DraftService, tracer tracing.Tracer) *DraftHandler {
	return &DraftHandler{
		drafts: drafts,
		tracer: tracer,
	}
}

// SelectRequest picks the activity and entity a draft is scoped to
type SelectRequest struct {
	ActivityID int64 `json:"activity_id" binding:"required,gt=0"`
	EntityID   int64 `json:"entity_id" binding:"gte=0"`
}

// SelectResponse carries the guard decision with the resulting draft
type SelectResponse struct {
	Decision draft.Decision      `json:"decision"`
	Draft    services.DraftState `json:"draft"`
}

// RemoveResponse reports how many items a delete removed
type RemoveResponse struct {
	Removed int                 `json:"removed"`
	Draft   services.DraftState `json:"draft"`
}

// RegisterRoutes registers the handler's routes
func (h *DraftHandler) RegisterRoutes(router gin.IRouter) {
	g := router.Group("/api/v1/drafts/:type/:program")
	g.GET("", h.HandleGetDraft)
	g.DELETE("", h.HandleDeleteAll)
	g.POST("/context", h.HandleSelect)
	g.POST("/context/confirm", h.HandleConfirmSwitch)
	g.POST("/context/cancel", h.HandleCancelSwitch)
	g.PUT("/items", h.HandleSaveItem)
	g.DELETE("/items/:key", h.HandleRemoveItem)
	g.DELETE("/parents/:material/items", h.HandleRemoveChildren)
	g.GET("/review", h.HandleReview)
	g.POST("/submit", h.HandleSubmit)
	g.POST("/close", h.HandleClose)
}

// HandleGetDraft returns the draft, restoring it from storage if needed
func (h *DraftHandler) HandleGetDraft(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	state, err := h.drafts.Open(c.Request.Context(), t, programID)
	if err != nil {
		WriteError(c, err, ErrInternalServer)
		return
	}
	c.JSON(http.StatusOK, state)
}

// HandleSelect runs the context guard for a new selection
func (h *DraftHandler) HandleSelect(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, NewError(err.Error(), http.StatusBadRequest, "INVALID_REQUEST"), ErrInvalidRequest)
		return
	}

	next := draft.Context{Type: t, ProgramID: programID, ActivityID: req.ActivityID, EntityID: req.EntityID}
	decision, state, err := h.drafts.Select(c.Request.Context(), t, programID, next)
	if err != nil {
		WriteError(c, err, ErrInternalServer)
		return
	}
	c.JSON(http.StatusOK, SelectResponse{Decision: decision, Draft: state})
}

// HandleConfirmSwitch discards the draft and activates the pending context
func (h *DraftHandler) HandleConfirmSwitch(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	state, err := h.drafts.ConfirmSwitch(c.Request.Context(), t, programID)
	if err != nil {
		WriteError(c, err, ErrInternalServer)
		return
	}
	c.JSON(http.StatusOK, state)
}

// HandleCancelSwitch keeps the draft and drops the pending context
func (h *DraftHandler) HandleCancelSwitch(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	state, err := h.drafts.CancelSwitch(c.Request.Context(), t, programID)
	if err != nil {
		WriteError(c, err, ErrInternalServer)
		return
	}
	c.JSON(http.StatusOK, state)
}

// HandleSaveItem validates and upserts an item
func (h *DraftHandler) HandleSaveItem(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	var item draft.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		WriteError(c, NewError(err.Error(), http.StatusBadRequest, "INVALID_REQUEST"), ErrInvalidRequest)
		return
	}
	if _, err := draft.ParseKey(string(item.Key)); err != nil {
		WriteError(c, NewError(err.Error(), http.StatusBadRequest, "INVALID_KEY"), ErrInvalidRequest)
		return
	}
	h.tracer.AddAttribute(nrgin.Transaction(c), "item_key", string(item.Key))

	state, err := h.drafts.SaveItem(c.Request.Context(), t, programID, item)
	if err != nil {
		WriteError(c, err, ErrInternalServer)
		return
	}
	c.JSON(http.StatusOK, state)
}

// HandleRemoveItem deletes one item. Removing an absent key succeeds.
func (h *DraftHandler) HandleRemoveItem(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	key, err := draft.ParseKey(c.Param("key"))
	if err != nil {
		WriteError(c, NewError(err.Error(), http.StatusBadRequest, "INVALID_KEY"), ErrInvalidRequest)
		return
	}

	removed, state, err := h.drafts.RemoveItem(c.Request.Context(), t, programID, key)
	if err != nil {
		WriteError(c, err, ErrInternalServer)
		return
	}

	n := 0
	if removed {
		n = 1
	}
	c.JSON(http.StatusOK, RemoveResponse{Removed: n, Draft: state})
}

// HandleRemoveChildren deletes every item under a parent material
func (h *DraftHandler) HandleRemoveChildren(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	parentID, err := strconv.ParseInt(c.Param("material"), 10, 64)
	if err != nil || parentID <= 0 {
		WriteError(c, NewError("invalid parent material id", http.StatusBadRequest, "INVALID_REQUEST"), ErrInvalidRequest)
		return
	}

	n, state, err := h.drafts.RemoveChildren(c.Request.Context(), t, programID, parentID)
	if err != nil {
		WriteError(c, err, ErrInternalServer)
		return
	}
	c.JSON(http.StatusOK, RemoveResponse{Removed: n, Draft: state})
}

// HandleDeleteAll empties the draft
func (h *DraftHandler) HandleDeleteAll(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	state, err := h.drafts.DeleteAll(c.Request.Context(), t, programID)
	if err != nil {
		WriteError(c, err, ErrInternalServer)
		return
	}
	c.JSON(http.StatusOK, state)
}

// HandleReview returns the composed draft tree
func (h *DraftHandler) HandleReview(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	review, err := h.drafts.Review(c.Request.Context(), t, programID)
	if err != nil {
		WriteError(c, err, ErrCatalogFailed)
		return
	}
	c.JSON(http.StatusOK, review)
}

// HandleSubmit sends the draft to the submission queue. On failure the
// draft stays as it was so the user can retry.
func (h *DraftHandler) HandleSubmit(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	txn := nrgin.Transaction(c)
	receipt, err := h.drafts.Submit(c.Request.Context(), t, programID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		WriteError(c, err, ErrSubmissionFailed)
		return
	}
	h.tracer.AddAttribute(txn, "submission_id", receipt.ID)
	c.JSON(http.StatusOK, receipt)
}

// HandleClose drops the in-memory draft. With discard=true the persisted
// copy is removed too.
func (h *DraftHandler) HandleClose(c *gin.Context) {
	t, programID, ok := h.scope(c)
	if !ok {
		return
	}

	discard, _ := strconv.ParseBool(c.Query("discard"))
	h.drafts.Close(c.Request.Context(), t, programID, discard)
	c.Status(http.StatusNoContent)
}

// scope parses the draft type and program from the path
func (h *DraftHandler) scope(c *gin.Context) (draft.Type, int64, bool) {
	t, err := draft.ParseType(c.Param("type"))
	if err != nil {
		WriteError(c, err, ErrInvalidRequest)
		return "", 0, false
	}

	programID, err := strconv.ParseInt(c.Param("program"), 10, 64)
	if err != nil || programID <= 0 {
		WriteError(c, NewError("invalid program id", http.StatusBadRequest, "INVALID_REQUEST"), ErrInvalidRequest)
		return "", 0, false
	}

	txn := nrgin.Transaction(c)
	h.tracer.AddAttribute(txn, "draft_type", string(t))
	h.tracer.AddAttribute(txn, "program_id", programID)
	return t, programID, true
}
