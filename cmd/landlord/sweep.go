package main

import (
	"fmt"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/jobs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark overdue invoices and expire ended leases once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			sweeper := jobs.NewSweeper(a.svc.Invoices, a.svc.Leases, a.cfg.Jobs.SweepInterval, a.log)
			result, err := sweeper.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "overdue invoices: %d\nexpired leases: %d\n",
				result.OverdueInvoices, result.ExpiredLeases)
			return err
		},
	}
}

func reconcileCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the mobile-money provider for payments still pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if a.mobileMoney == nil {
				return fmt.Errorf("mobile money is not configured; set MOBILE_MONEY_URL")
			}
			settled, err := a.svc.Payments.ReconcileMobileMoney(cmd.Context(), a.mobileMoney, olderThan)
			a.log.Info("Reconciliation finished", zap.Int("settled", settled), zap.Error(err))
			fmt.Fprintf(cmd.OutOrStdout(), "settled payments: %d\n", settled)
			return err
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "only poll payments pending for longer than this")
	return cmd
}
