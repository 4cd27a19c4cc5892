package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tidebooks/tidebooks/internal/directory"
	"github.com/tidebooks/tidebooks/internal/inventory"
	"github.com/tidebooks/tidebooks/internal/invoicing"
	"github.com/tidebooks/tidebooks/internal/ledger"
	"github.com/tidebooks/tidebooks/internal/observability"
	"github.com/tidebooks/tidebooks/internal/payments"
	"github.com/tidebooks/tidebooks/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	DirectoryHandler *directory.Handler
	InventoryHandler *inventory.Handler
	InvoicingHandler *invoicing.Handler
	PaymentsHandler  *payments.Handler
	LedgerHandler    *ledger.Handler
	JobsHandler      *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/directory", params.DirectoryHandler.MountRoutes)
	r.Route("/items", params.InventoryHandler.MountRoutes)
	r.Route("/invoices", params.InvoicingHandler.MountRoutes)
	r.Route("/payments", params.PaymentsHandler.MountRoutes)
	r.Route("/ledger", params.LedgerHandler.MountRoutes)
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
