package directory

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/platform/httpx"
	"github.com/tidebooks/tidebooks/internal/shared"
)

// Handler wires HTTP endpoints for the directory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs directory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/companies", h.createCompany)
	r.Get("/companies", h.listCompanies)
	r.Get("/companies/{id}", h.getCompany)
	r.Post("/parties", h.createParty)
	r.Get("/parties", h.listParties)
	r.Get("/parties/{id}", h.getParty)
}

type companyRequest struct {
	Name         string `json:"name" validate:"required"`
	NumberPrefix string `json:"number_prefix" validate:"omitempty,max=5"`
	FiscalStart  int    `json:"fiscal_start" validate:"omitempty,min=1,max=12"`
}

type partyRequest struct {
	Name           string `json:"name" validate:"required"`
	Role           string `json:"role" validate:"required"`
	OpeningBalance string `json:"opening_balance" validate:"omitempty"`
}

func (h *Handler) createCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	company, err := h.service.CreateCompany(r.Context(), CompanyInput{
		Name:         req.Name,
		NumberPrefix: req.NumberPrefix,
		FiscalStart:  time.Month(req.FiscalStart),
	})
	if err != nil {
		h.logger.Error("create company", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, company)
}

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.service.ListCompanies(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, companies)
}

func (h *Handler) getCompany(w http.ResponseWriter, r *http.Request) {
	company, err := h.service.GetCompany(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, company)
}

func (h *Handler) createParty(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	var req partyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	opening := decimal.Zero
	if req.OpeningBalance != "" {
		parsed, err := decimal.NewFromString(req.OpeningBalance)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "opening_balance is not a number")
			return
		}
		opening = parsed
	}
	party, err := h.service.CreateParty(r.Context(), PartyInput{
		CompanyID:      companyID,
		Name:           req.Name,
		Role:           PartyRole(req.Role),
		OpeningBalance: opening,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, party)
}

func (h *Handler) listParties(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	parties, err := h.service.ListParties(r.Context(), companyID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, parties)
}

func (h *Handler) getParty(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", shared.ErrTenantRequired.Error())
		return
	}
	party, err := h.service.GetParty(r.Context(), companyID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, party)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCompanyNotFound), errors.Is(err, ErrPartyNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidRole):
		httpx.ProblemKind(w, http.StatusBadRequest, "InvalidRole", err.Error())
	default:
		h.logger.Error("directory request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
