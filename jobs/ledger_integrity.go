package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tidebooks/tidebooks/internal/observability"
)

// LedgerIntegrityChecker cross-checks invoice paid/due amounts against the
// allocation rows that should explain them. It never repairs; drift is
// logged for operators.
type LedgerIntegrityChecker struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLedgerIntegrityChecker constructs the checker.
func NewLedgerIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *LedgerIntegrityChecker {
	return &LedgerIntegrityChecker{pool: pool, logger: logger, metrics: metrics}
}

// Handle adapts the checker to an Asynq handler.
func (c *LedgerIntegrityChecker) Handle(ctx context.Context, t *asynq.Task) error {
	drift, err := c.Run(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else if drift > 0 {
		outcome = "drift"
	}
	c.metrics.RecordJob(TaskLedgerIntegrity, outcome)
	return err
}

// Run reports invoices whose paid amount disagrees with their allocations
// or whose due amount disagrees with grand total minus paid.
func (c *LedgerIntegrityChecker) Run(ctx context.Context) (int, error) {
	rows, err := c.pool.Query(ctx, `SELECT i.company_id, i.id, i.number, i.grand_total, i.paid_amount, i.due_amount,
       COALESCE(SUM(a.amount), 0) AS allocated
FROM invoices i
LEFT JOIN payment_allocations a ON a.invoice_id = i.id
GROUP BY i.company_id, i.id, i.number, i.grand_total, i.paid_amount, i.due_amount
HAVING i.paid_amount <> COALESCE(SUM(a.amount), 0)
    OR i.due_amount <> GREATEST(i.grand_total - i.paid_amount, 0)`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	drift := 0
	for rows.Next() {
		var companyID, number string
		var id int64
		var grand, paid, due, allocated decimal.Decimal
		if err := rows.Scan(&companyID, &id, &number, &grand, &paid, &due, &allocated); err != nil {
			return drift, err
		}
		drift++
		c.logger.Warn("ledger drift",
			slog.String("company_id", companyID),
			slog.String("invoice", number),
			slog.String("paid", paid.String()),
			slog.String("allocated", allocated.String()),
			slog.String("due", due.String()),
			slog.String("grand_total", grand.String()))
	}
	if err := rows.Err(); err != nil {
		return drift, err
	}
	if drift == 0 {
		c.logger.Info("ledger integrity clean")
	}
	return drift, nil
}
