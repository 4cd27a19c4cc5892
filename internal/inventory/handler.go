package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/platform/httpx"
	"github.com/tidebooks/tidebooks/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createItem)
	r.Get("/", h.listItems)
	r.Get("/{id}", h.getItem)
	r.Get("/{id}/movements", h.listMovements)
	r.Post("/{id}/adjustments", h.postAdjustment)
}

type itemRequest struct {
	SKU          string `json:"sku"`
	Name         string `json:"name" validate:"required"`
	Unit         string `json:"unit"`
	OpeningQty   string `json:"opening_qty"`
	PurchaseRate string `json:"purchase_rate"`
	SalesRate    string `json:"sales_rate"`
}

type adjustmentRequest struct {
	Qty       string `json:"qty" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=IN OUT"`
	Note      string `json:"note"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ItemInput{SKU: req.SKU, Name: req.Name, Unit: req.Unit}
	var err error
	if input.OpeningQty, err = parseDecimal(req.OpeningQty); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "opening_qty is not a number")
		return
	}
	if input.PurchaseRate, err = parseDecimal(req.PurchaseRate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "purchase_rate is not a number")
		return
	}
	if input.SalesRate, err = parseDecimal(req.SalesRate); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sales_rate is not a number")
		return
	}
	item, err := h.service.CreateItem(r.Context(), tenantID, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	items, err := h.service.ListItems(r.Context(), tenantID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	item, err := h.service.GetItem(r.Context(), tenantID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	filter := MovementFilter{ItemID: id}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		if filter.From, err = time.Parse("2006-01-02", from); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
	}
	if to := q.Get("to"); to != "" {
		if filter.To, err = time.Parse("2006-01-02", to); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	movements, err := h.service.ListMovements(r.Context(), tenantID, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty is not a number")
		return
	}
	var newQty decimal.Decimal
	if req.Direction == "IN" {
		newQty, err = h.service.Increase(r.Context(), tenantID, id, qty, KindAdjustment, nil)
	} else {
		newQty, err = h.service.Decrease(r.Context(), tenantID, id, qty, KindAdjustment, nil)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"on_hand": newQty.String()})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.ProblemKind(w, http.StatusNotFound, "ItemNotFound", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.ProblemKind(w, http.StatusConflict, "InsufficientStock", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.ProblemKind(w, http.StatusBadRequest, "InvalidQuantity", err.Error())
	case errors.Is(err, ErrInvalidKind):
		httpx.ProblemKind(w, http.StatusBadRequest, "InvalidMovementKind", err.Error())
	case errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
