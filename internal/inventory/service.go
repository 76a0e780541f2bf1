package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/antonminaichev/shop-settlement/internal/metrics"
	"github.com/antonminaichev/shop-settlement/internal/storage"
	"github.com/antonminaichev/shop-settlement/internal/types/order"
)

type Result struct {
	Applied     bool
	Decremented map[string]int
	Oversold    []string
}

type Reservation struct {
	log *slog.Logger
}

func NewReservation(log *slog.Logger) *Reservation {
	return &Reservation{log: log}
}

// Settle applies the stock consequences of a paid order. It flips the
// order's settlement marker first; if the marker was already set nothing is
// decremented. Stock is clamped at zero and short lines are reported as
// oversold rather than failing, since the charge has already been captured.
func (r *Reservation) Settle(ctx context.Context, stock storage.StockWriter, o *order.Order) (Result, error) {
	marked, err := stock.MarkInventorySettled(ctx, o.ID)
	if err != nil {
		return Result{}, fmt.Errorf("mark settled: %w", err)
	}
	if !marked {
		return Result{}, nil
	}

	res := Result{Applied: true, Decremented: make(map[string]int, len(o.Items))}
	for _, it := range o.Items {
		n, err := stock.DecrementStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return Result{}, fmt.Errorf("decrement %s: %w", it.ProductID, err)
		}
		res.Decremented[it.ProductID] += n
		if n < it.Quantity {
			res.Oversold = append(res.Oversold, it.ProductID)
			metrics.InventoryOversold.Inc()
			r.log.Warn("inventory oversold",
				"reference", o.Reference,
				"product_id", it.ProductID,
				"ordered", it.Quantity,
				"decremented", n,
			)
		}
	}
	return res, nil
}

// SettleFunc adapts Settle to the storage callback, handing the result to
// report once the stock writes succeeded.
func (r *Reservation) SettleFunc(report func(Result)) storage.SettleFunc {
	return func(ctx context.Context, stock storage.StockWriter, o *order.Order) error {
		res, err := r.Settle(ctx, stock, o)
		if err != nil {
			return err
		}
		if report != nil {
			report(res)
		}
		return nil
	}
}
