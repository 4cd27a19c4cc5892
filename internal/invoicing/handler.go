package invoicing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/inventory"
	"github.com/tidebooks/tidebooks/internal/numbering"
	"github.com/tidebooks/tidebooks/internal/platform/httpx"
	"github.com/tidebooks/tidebooks/internal/shared"
)

// Handler wires HTTP endpoints for the invoicing module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs invoicing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers invoicing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

type lineRequest struct {
	ItemID      int64  `json:"item_id" validate:"required"`
	Description string `json:"description"`
	Qty         string `json:"qty" validate:"required"`
	Rate        string `json:"rate"`
}

type invoiceRequest struct {
	Kind     string        `json:"kind" validate:"required,oneof=SALES PURCHASE"`
	PartyID  string        `json:"party_id" validate:"required"`
	Mode     string        `json:"mode"`
	IssuedAt string        `json:"issued_at"`
	Discount string        `json:"discount"`
	Remark   string        `json:"remark"`
	Lines    []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) decodeInput(r *http.Request) (InvoiceInput, error) {
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return InvoiceInput{}, err
	}
	if err := h.validator.Struct(req); err != nil {
		return InvoiceInput{}, err
	}
	input := InvoiceInput{
		Kind:    InvoiceKind(req.Kind),
		PartyID: req.PartyID,
		Mode:    req.Mode,
		Remark:  req.Remark,
	}
	if req.IssuedAt != "" {
		issued, err := time.Parse("2006-01-02", req.IssuedAt)
		if err != nil {
			return InvoiceInput{}, errors.New("issued_at must be YYYY-MM-DD")
		}
		input.IssuedAt = issued
	}
	var err error
	if input.Discount, err = parseDecimal(req.Discount); err != nil {
		return InvoiceInput{}, errors.New("discount is not a number")
	}
	for _, line := range req.Lines {
		li := LineInput{ItemID: line.ItemID, Description: line.Description}
		if li.Qty, err = decimal.NewFromString(line.Qty); err != nil {
			return InvoiceInput{}, errors.New("line qty is not a number")
		}
		if li.Rate, err = parseDecimal(line.Rate); err != nil {
			return InvoiceInput{}, errors.New("line rate is not a number")
		}
		input.Lines = append(input.Lines, li)
	}
	return input, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	input, err := h.decodeInput(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, err := h.service.Create(r.Context(), tenantID, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	input, err := h.decodeInput(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, warnings, err := h.service.Update(r.Context(), tenantID, id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "warnings": warnings})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	warnings, err := h.service.Delete(r.Context(), tenantID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true, "warnings": warnings})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	filter := InvoiceFilter{
		Kind:    InvoiceKind(r.URL.Query().Get("kind")),
		PartyID: r.URL.Query().Get("party_id"),
	}
	invoices, err := h.service.List(r.Context(), tenantID, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		httpx.ProblemKind(w, http.StatusNotFound, "InvoiceNotFound", err.Error())
	case errors.Is(err, inventory.ErrItemNotFound):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "ItemNotFound", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.ProblemKind(w, http.StatusConflict, "InsufficientStock", err.Error())
	case errors.Is(err, ErrInvalidKind), errors.Is(err, ErrNoLines), errors.Is(err, ErrInvalidQty):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrRestoreFailed):
		h.logger.Error("invoice restore failed", slog.Any("error", err))
		httpx.ProblemKind(w, http.StatusInternalServerError, "RestoreFailed", err.Error())
	case errors.Is(err, numbering.ErrAllocationFailed):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "AllocationFailed", err.Error())
	case errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
	default:
		h.logger.Error("invoicing request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
