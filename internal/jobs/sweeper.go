// Package jobs runs the periodic status sweeps: sent invoices past their
// due date become overdue and active leases past their end date expire.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Go-ku/landlord-app-sub001/prometheus"
	"go.uber.org/zap"
)

// OverdueMarker flags unpaid invoices past their due date.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) (int64, error)
}

// LeaseExpirer expires leases past their end date.
type LeaseExpirer interface {
	ExpireDue(ctx context.Context) (int64, error)
}

// Result counts the rows each sweep changed.
type Result struct {
	OverdueInvoices int64
	ExpiredLeases   int64
}

// Sweeper runs the sweeps on an interval.
type Sweeper struct {
	invoices OverdueMarker
	leases   LeaseExpirer
	interval time.Duration
	log      *zap.Logger
}

// NewSweeper creates a sweeper. A nil logger discards output.
func NewSweeper(invoices OverdueMarker, leases LeaseExpirer, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{invoices: invoices, leases: leases, interval: interval, log: log}
}

// RunOnce runs every sweep once. A failing sweep does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var (
		result Result
		errs   []error
	)

	n, err := s.invoices.MarkOverdue(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("mark overdue invoices: %w", err))
	} else {
		result.OverdueInvoices = n
		prometheus.RecordSweep("overdue_invoices", n)
	}

	n, err = s.leases.ExpireDue(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire leases: %w", err))
	} else {
		result.ExpiredLeases = n
		prometheus.RecordSweep("expired_leases", n)
	}

	return result, errors.Join(errs...)
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("Sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	result, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error("Sweep failed", zap.Error(err))
	}
	if result.OverdueInvoices > 0 || result.ExpiredLeases > 0 {
		s.log.Info("Sweep completed",
			zap.Int64("overdue_invoices", result.OverdueInvoices),
			zap.Int64("expired_leases", result.ExpiredLeases),
			zap.Duration("took", time.Since(start)))
	}
}
