package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quoteflow/cpq-backend/internal/application/service"
	"github.com/quoteflow/cpq-backend/internal/domain/entity"
	"github.com/quoteflow/cpq-backend/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	quoteService    service.QuoteService
	workflowService service.WorkflowService
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	quoteService service.QuoteService,
	workflowService service.WorkflowService,
	logger Logger,
) *Handlers {
	return &Handlers{
		quoteService:    quoteService,
		workflowService: workflowService,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// Stable machine-readable error codes returned alongside HTTP status
const (
	codeValidation    = "validation_error"
	codeInvalidState  = "invalid_state"
	codeAuthorization = "not_authorized"
	codeOutOfTurn     = "out_of_turn"
	codeTemporaryID   = "temporary_identifier"
	codeConflict      = "conflict"
	codeNotFound      = "not_found"
	codeInternal      = "internal_error"
)

// writeError maps domain sentinel errors onto HTTP status plus a stable
// error code. Unknown errors are never echoed back to the client.
func (h *Handlers) writeError(c *gin.Context, err error) {
	var (
		status = http.StatusInternalServerError
		code   = codeInternal
		msg    = "internal server error"
	)

	switch {
	case errors.Is(err, workflow.ErrValidation), errors.Is(err, workflow.ErrEmptyQuote):
		status, code, msg = http.StatusBadRequest, codeValidation, err.Error()
	case errors.Is(err, workflow.ErrTemporaryIdentifier):
		status, code, msg = http.StatusBadRequest, codeTemporaryID, err.Error()
	case errors.Is(err, workflow.ErrAuthorization):
		status, code, msg = http.StatusForbidden, codeAuthorization, err.Error()
	case errors.Is(err, workflow.ErrNotFound):
		status, code, msg = http.StatusNotFound, codeNotFound, err.Error()
	case errors.Is(err, workflow.ErrOutOfTurn):
		status, code, msg = http.StatusConflict, codeOutOfTurn, err.Error()
	case errors.Is(err, workflow.ErrConflict):
		status, code, msg = http.StatusConflict, codeConflict, err.Error()
	case errors.Is(err, workflow.ErrInvalidState), errors.Is(err, workflow.ErrAlreadyMaterialized):
		status, code, msg = http.StatusConflict, codeInvalidState, err.Error()
	default:
		h.logger.Error("Unhandled error", "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, Response{
		Success: false,
		Error:   msg,
		Code:    code,
	})
}

// actorID reads the caller identity header; empty means unauthenticated
func actorID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

func (h *Handlers) requireActor(c *gin.Context) (string, bool) {
	actor := actorID(c)
	if actor == "" {
		c.JSON(http.StatusForbidden, Response{
			Success: false,
			Error:   "X-User-ID header is required",
			Code:    codeAuthorization,
		})
		return "", false
	}
	return actor, true
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// QuoteItemRequest is a line item in a create or update payload
type QuoteItemRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity" binding:"required"`
	UnitPrice   float64 `json:"unit_price"`
}

// CreateQuoteRequest is the payload for POST /api/quotes
type CreateQuoteRequest struct {
	CustomerName       string             `json:"customer_name" binding:"required"`
	CustomerEmail      string             `json:"customer_email"`
	CustomerCompany    string             `json:"customer_company"`
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	DiscountPercent    float64            `json:"discount_percent"`
	CustomPaymentTerms bool               `json:"custom_payment_terms"`
	Items              []QuoteItemRequest `json:"items"`
}

// UpdateQuoteRequest is the payload for PUT /api/quotes/:id
type UpdateQuoteRequest struct {
	CustomerName       *string            `json:"customer_name"`
	CustomerEmail      *string            `json:"customer_email"`
	CustomerCompany    *string            `json:"customer_company"`
	Title              *string            `json:"title"`
	Description        *string            `json:"description"`
	DiscountPercent    *float64           `json:"discount_percent"`
	CustomPaymentTerms *bool              `json:"custom_payment_terms"`
	Items              []QuoteItemRequest `json:"items"`
}

// ListQuotesRequest represents query parameters for listing quotes.
// A persona filter selects quotes waiting on that persona's decision.
type ListQuotesRequest struct {
	Persona string `form:"persona"`
	Status  string `form:"status"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}

// UpdateWorkflowRequest is the payload for PUT /api/quotes/:id/workflow
type UpdateWorkflowRequest struct {
	Personas []string `json:"personas" binding:"required"`
}

// DecisionRequest is the payload for step approve and reject calls
type DecisionRequest struct {
	Persona  string `json:"persona" binding:"required"`
	Comments string `json:"comments"`
	Reason   string `json:"reason"`
}

// TerminateRequest is the payload for POST /api/quotes/:id/terminate
type TerminateRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CreateQuote handles POST /api/quotes
func (h *Handlers) CreateQuote(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
			Code:    codeValidation,
		})
		return
	}

	quote, err := h.quoteService.Create(c.Request.Context(), service.CreateQuoteInput{
		OwnerID:            actor,
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		CustomerCompany:    req.CustomerCompany,
		Title:              req.Title,
		Description:        req.Description,
		DiscountPercent:    req.DiscountPercent,
		CustomPaymentTerms: req.CustomPaymentTerms,
		Items:              toItemInputs(req.Items),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: quote})
}

// ListQuotes handles GET /api/quotes
func (h *Handlers) ListQuotes(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req ListQuotesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
			Code:    codeValidation,
		})
		return
	}

	var (
		quotes []*entity.Quote
		err    error
	)
	switch {
	case req.Persona != "":
		pending, ok := entity.PendingStatusFor(entity.Persona(req.Persona))
		if !ok {
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "persona " + req.Persona + " has no approval queue",
				Code:    codeValidation,
			})
			return
		}
		quotes, err = h.quoteService.ListByStatus(c.Request.Context(), pending, req.Limit, req.Offset)
	case req.Status != "":
		quotes, err = h.quoteService.ListByStatus(c.Request.Context(), entity.QuoteStatus(req.Status), req.Limit, req.Offset)
	default:
		quotes, err = h.quoteService.List(c.Request.Context(), actor, req.Limit, req.Offset)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: quotes})
}

// GetQuote handles GET /api/quotes/:id, returning the quote with its
// line items and workflow steps
func (h *Handlers) GetQuote(c *gin.Context) {
	quote, err := h.quoteService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	steps, err := h.workflowService.Steps(c.Request.Context(), quote.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: QuoteWithSteps{Quote: quote, Steps: steps}})
}

// UpdateQuote handles PUT /api/quotes/:id
func (h *Handlers) UpdateQuote(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req UpdateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
			Code:    codeValidation,
		})
		return
	}

	input := service.UpdateQuoteInput{
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		CustomerCompany:    req.CustomerCompany,
		Title:              req.Title,
		Description:        req.Description,
		DiscountPercent:    req.DiscountPercent,
		CustomPaymentTerms: req.CustomPaymentTerms,
	}
	if req.Items != nil {
		input.Items = toItemInputs(req.Items)
	}

	quote, err := h.quoteService.Update(c.Request.Context(), c.Param("id"), actor, input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: quote})
}

// DeleteQuote handles DELETE /api/quotes/:id
func (h *Handlers) DeleteQuote(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	if err := h.quoteService.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// PreviewWorkflow handles GET /api/quotes/:id/workflow/preview.
// Preview steps intentionally carry no identifiers.
func (h *Handlers) PreviewWorkflow(c *gin.Context) {
	preview, err := h.workflowService.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: preview})
}

// UpdateWorkflow handles PUT /api/quotes/:id/workflow
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req UpdateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
			Code:    codeValidation,
		})
		return
	}

	personas := make([]entity.Persona, 0, len(req.Personas))
	for _, p := range req.Personas {
		personas = append(personas, entity.Persona(p))
	}

	preview, err := h.workflowService.UpdateDraftConfiguration(c.Request.Context(), c.Param("id"), actor, personas)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: preview})
}

// GetWorkflowStatus handles GET /api/quotes/:id/workflow
func (h *Handlers) GetWorkflowStatus(c *gin.Context) {
	persona := entity.Persona(c.Query("persona"))

	status, err := h.workflowService.Status(c.Request.Context(), c.Param("id"), persona)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: status})
}

// QuoteWithSteps bundles a quote and its chain in mutation responses
type QuoteWithSteps struct {
	Quote *entity.Quote          `json:"quote"`
	Steps []*entity.WorkflowStep `json:"steps"`
}

// SubmitQuote handles POST /api/quotes/:id/submit
func (h *Handlers) SubmitQuote(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	quote, steps, err := h.workflowService.Submit(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: QuoteWithSteps{Quote: quote, Steps: steps}})
}

// TerminateQuote handles POST /api/quotes/:id/terminate
func (h *Handlers) TerminateQuote(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req TerminateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
			Code:    codeValidation,
		})
		return
	}

	quote, err := h.workflowService.Terminate(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: quote})
}

// ReopenQuote handles POST /api/quotes/:id/reopen
func (h *Handlers) ReopenQuote(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	quote, err := h.workflowService.Reopen(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: quote})
}

// ApproveStep handles POST /api/steps/:id/approve
func (h *Handlers) ApproveStep(c *gin.Context) {
	h.decideStep(c, service.ActionApprove)
}

// RejectStep handles POST /api/steps/:id/reject
func (h *Handlers) RejectStep(c *gin.Context) {
	h.decideStep(c, service.ActionReject)
}

func (h *Handlers) decideStep(c *gin.Context, action service.Action) {
	if _, ok := h.requireActor(c); !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
			Code:    codeValidation,
		})
		return
	}

	// Preview chains carry no identifiers, so anything that is not a
	// durable step ID is rejected here before touching state.
	stepID, err := workflow.ParseStepID(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	text := req.Comments
	if action == service.ActionReject {
		text = req.Reason
	}

	quote, steps, err := h.workflowService.Act(c.Request.Context(), stepID, entity.Persona(req.Persona), action, text)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: QuoteWithSteps{Quote: quote, Steps: steps}})
}

func toItemInputs(items []QuoteItemRequest) []service.QuoteItemInput {
	inputs := make([]service.QuoteItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, service.QuoteItemInput{
			ProductName: item.Name,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return inputs
}
