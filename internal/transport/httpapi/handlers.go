package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/provfund/benefits-engine/internal/apperr"
	"github.com/provfund/benefits-engine/internal/application/service"
	"github.com/provfund/benefits-engine/internal/domain/entity"
	"go.uber.org/zap"
)

// Handlers contains all HTTP request handlers. Authentication is upstream;
// the resolved identity arrives in the X-Actor-ID and X-Actor-Role headers
// and handlers only pass it through to the engine.
type Handlers struct {
	requestService  service.RequestService
	approvalService service.ApprovalService
	logger          *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	requestService service.RequestService,
	approvalService service.ApprovalService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		requestService:  requestService,
		approvalService: approvalService,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateRequestBody is the payload for submitting a new application.
type CreateRequestBody struct {
	Kind                string `json:"request_kind" binding:"required"`
	AmountCents         int64  `json:"amount_cents" binding:"required"`
	TermMonths          int    `json:"term_months"`
	Category            string `json:"category"`
	ConsentAcknowledged bool   `json:"consent_acknowledged"`
}

// RemarksBody carries optional free-text remarks.
type RemarksBody struct {
	Remarks string `json:"remarks"`
}

// AssignApproversBody is the payload for installing the approver chain.
type AssignApproversBody struct {
	Assignments []service.Assignment `json:"assignments" binding:"required"`
}

// DecisionBody is the payload for an approve/reject decision.
type DecisionBody struct {
	Approve  bool   `json:"approve"`
	Comments string `json:"comments"`
}

// ReleaseBody carries the payment reference recorded on release.
type ReleaseBody struct {
	Reference string `json:"reference" binding:"required"`
}

type actor struct {
	ID   string
	Role entity.Role
}

// actorFrom reads the resolved identity headers. Missing identity is a
// bad request: the engine has no anonymous operations.
func actorFrom(c *gin.Context) (actor, bool) {
	id := c.GetHeader("X-Actor-ID")
	role := entity.Role(c.GetHeader("X-Actor-Role"))
	if id == "" || role == "" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "missing X-Actor-ID or X-Actor-Role header",
		})
		return actor{}, false
	}
	return actor{ID: id, Role: role}, true
}

func requestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request ID",
		})
		return 0, false
	}
	return id, true
}

// writeError maps the engine's error taxonomy to HTTP status codes.
func (h *Handlers) writeError(c *gin.Context, err error) {
	var (
		verr *apperr.ValidationError
		ierr *apperr.IneligibleError
	)

	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.As(err, &verr):
		status, message = http.StatusBadRequest, verr.Error()
	case errors.As(err, &ierr):
		status, message = http.StatusUnprocessableEntity, ierr.Error()
	case errors.Is(err, apperr.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, apperr.ErrNotAuthorized):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, apperr.ErrInvalidTransition):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, apperr.ErrTransitionConflict):
		status, message = http.StatusConflict, err.Error()
	default:
		h.logger.Error("Unhandled error", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	c.JSON(status, Response{Success: false, Error: message})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	ok(c, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	})
}

// CreateRequest handles POST /api/requests. The authenticated actor is the
// subject of the new application.
func (h *Handlers) CreateRequest(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}

	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	req, err := h.requestService.Create(c.Request.Context(), service.CreateInput{
		SubjectUserID:       act.ID,
		Kind:                entity.RequestKind(body.Kind),
		AmountCents:         body.AmountCents,
		TermMonths:          body.TermMonths,
		Category:            entity.WithdrawalCategory(body.Category),
		ConsentAcknowledged: body.ConsentAcknowledged,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	id, valid := requestID(c)
	if !valid {
		return
	}

	req, err := h.requestService.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, req)
}

// ListRequests handles GET /api/requests. The actor sees their own
// applications.
func (h *Handlers) ListRequests(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}

	requests, err := h.requestService.ListBySubject(c.Request.Context(), act.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, requests)
}

// GetEligibility handles GET /api/eligibility
func (h *Handlers) GetEligibility(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}

	kind := entity.RequestKind(c.Query("request_kind"))
	category := entity.WithdrawalCategory(c.DefaultQuery("category", string(entity.CategoryGeneral)))

	result, err := h.requestService.Evaluate(c.Request.Context(), act.ID, kind, category)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, result)
}

// MarkReady handles POST /api/requests/:id/ready
func (h *Handlers) MarkReady(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}
	id, valid := requestID(c)
	if !valid {
		return
	}

	req, err := h.requestService.MarkReady(c.Request.Context(), id, act.ID, act.Role)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, req)
}

// MarkIncomplete handles POST /api/requests/:id/incomplete
func (h *Handlers) MarkIncomplete(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}
	id, valid := requestID(c)
	if !valid {
		return
	}

	var body RemarksBody
	_ = c.ShouldBindJSON(&body)

	req, err := h.requestService.MarkIncomplete(c.Request.Context(), id, act.ID, act.Role, body.Remarks)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, req)
}

// MoveToReview handles POST /api/requests/:id/review
func (h *Handlers) MoveToReview(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}
	id, valid := requestID(c)
	if !valid {
		return
	}

	req, err := h.requestService.MoveToReview(c.Request.Context(), id, act.ID, act.Role)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, req)
}

// AssignApprovers handles POST /api/requests/:id/approvers
func (h *Handlers) AssignApprovers(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}
	id, valid := requestID(c)
	if !valid {
		return
	}

	var body AssignApproversBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	steps, err := h.approvalService.AssignApprovers(c.Request.Context(), id, act.ID, body.Assignments)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, steps)
}

// GetChain handles GET /api/requests/:id/steps
func (h *Handlers) GetChain(c *gin.Context) {
	id, valid := requestID(c)
	if !valid {
		return
	}

	steps, err := h.approvalService.GetChain(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, steps)
}

// ReviewApproval handles POST /api/requests/:id/approval. The acting
// approver decides the current step of a loan chain.
func (h *Handlers) ReviewApproval(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}
	id, valid := requestID(c)
	if !valid {
		return
	}

	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	result, err := h.approvalService.ReviewApproval(c.Request.Context(), id, act.ID, body.Approve, body.Comments)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, result)
}

// DecideReview handles POST /api/requests/:id/decision. The assigned
// officer decides a withdrawal under review.
func (h *Handlers) DecideReview(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}
	id, valid := requestID(c)
	if !valid {
		return
	}

	var body DecisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	req, err := h.approvalService.DecideReview(c.Request.Context(), id, act.ID, body.Approve, body.Comments)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, req)
}

// Release handles POST /api/requests/:id/release
func (h *Handlers) Release(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}
	id, valid := requestID(c)
	if !valid {
		return
	}

	var body ReleaseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	req, err := h.requestService.Release(c.Request.Context(), id, act.ID, body.Reference)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, req)
}

// Cancel handles POST /api/requests/:id/cancel
func (h *Handlers) Cancel(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}
	id, valid := requestID(c)
	if !valid {
		return
	}

	var body RemarksBody
	_ = c.ShouldBindJSON(&body)

	req, err := h.requestService.Cancel(c.Request.Context(), id, act.ID, act.Role, body.Remarks)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, req)
}

// GetAccess handles GET /api/requests/:id/access
func (h *Handlers) GetAccess(c *gin.Context) {
	act, authed := actorFrom(c)
	if !authed {
		return
	}
	id, valid := requestID(c)
	if !valid {
		return
	}

	caps, err := h.requestService.GetAccess(c.Request.Context(), id, act.ID, act.Role)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, caps)
}

// GetHistory handles GET /api/requests/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, valid := requestID(c)
	if !valid {
		return
	}

	history, err := h.requestService.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	ok(c, history)
}
