package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/numbering"
	"github.com/tidebooks/tidebooks/internal/platform/httpx"
	"github.com/tidebooks/tidebooks/internal/shared"
)

// Handler wires HTTP endpoints for the payments module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs payments handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers payments routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.remove)
	r.Post("/{id}/allocations", h.addAllocation)
	r.Delete("/{id}/allocations/{allocID}", h.removeAllocation)
}

type allocationRequest struct {
	InvoiceID int64  `json:"invoice_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

type paymentRequest struct {
	Kind         string              `json:"kind" validate:"required,oneof=RECEIPT PAYMENT"`
	PartyID      string              `json:"party_id" validate:"required"`
	Mode         string              `json:"mode"`
	Amount       string              `json:"amount" validate:"required"`
	PaidAt       string              `json:"paid_at"`
	Remark       string              `json:"remark"`
	Allocations  []allocationRequest `json:"allocations"`
	AutoAllocate bool                `json:"auto_allocate"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := PaymentInput{
		Kind:         PaymentKind(req.Kind),
		PartyID:      req.PartyID,
		Mode:         req.Mode,
		Remark:       req.Remark,
		AutoAllocate: req.AutoAllocate,
	}
	var err error
	if input.Amount, err = decimal.NewFromString(req.Amount); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount is not a number")
		return
	}
	if req.PaidAt != "" {
		if input.PaidAt, err = time.Parse("2006-01-02", req.PaidAt); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "paid_at must be YYYY-MM-DD")
			return
		}
	}
	for _, a := range req.Allocations {
		amount, err := decimal.NewFromString(a.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "allocation amount is not a number")
			return
		}
		input.Allocations = append(input.Allocations, AllocationInput{InvoiceID: a.InvoiceID, Amount: amount})
	}
	payment, err := h.service.Create(r.Context(), tenantID, input, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	payment, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	filter := PaymentFilter{
		Kind:    PaymentKind(r.URL.Query().Get("kind")),
		PartyID: r.URL.Query().Get("party_id"),
	}
	payments, err := h.service.List(r.Context(), tenantID, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	warnings, err := h.service.Delete(r.Context(), tenantID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true, "warnings": warnings})
}

func (h *Handler) addAllocation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	var req allocationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount is not a number")
		return
	}
	payment, err := h.service.AddAllocation(r.Context(), tenantID, id, AllocationInput{InvoiceID: req.InvoiceID, Amount: amount})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) removeAllocation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payment id")
		return
	}
	allocID, err := strconv.ParseInt(chi.URLParam(r, "allocID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid allocation id")
		return
	}
	payment, err := h.service.RemoveAllocation(r.Context(), tenantID, id, allocID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrAllocationNotFound):
		httpx.ProblemKind(w, http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, ErrInvoiceNotFound):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "InvoiceNotFound", err.Error())
	case errors.Is(err, ErrAllocationExceedsPayment):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "AllocationExceedsPayment", err.Error())
	case errors.Is(err, ErrAllocationExceedsDue):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "AllocationExceedsDue", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrPartyMismatch), errors.Is(err, ErrKindMismatch):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.ProblemKind(w, http.StatusConflict, "DuplicateRequest", err.Error())
	case errors.Is(err, numbering.ErrAllocationFailed):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "AllocationFailed", err.Error())
	case errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
	default:
		h.logger.Error("payments request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
