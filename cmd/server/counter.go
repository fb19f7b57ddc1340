package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/service"
)

// cliActor runs counter maintenance with admin rights.
var cliActor = domain.Actor{UserID: "cli", Role: domain.RoleAdmin, DisplayName: "cli"}

func newCounterCmd() *cobra.Command {
	counter := &cobra.Command{
		Use:   "counter",
		Short: "Inspect or seed the invoice counter without starting HTTP",
	}
	counter.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Print the next invoice number and the number of recorded sales",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
					return printCounterStatus(ctx, svc, cmd.OutOrStdout())
				})
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Seed the invoice counter from existing sales if it is absent",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
					return initCounter(ctx, svc, cmd.OutOrStdout())
				})
			},
		},
	)
	return counter
}

func withService(ctx context.Context, fn func(context.Context, *service.Service) error) error {
	ctx, cfg, err := setup(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	return fn(service.WithActor(ctx, cliActor), newService(cfg, b))
}

func printCounterStatus(ctx context.Context, svc *service.Service, out io.Writer) error {
	status, err := svc.InvoiceCounterStatus(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "next invoice: %s\nrecorded sales: %d\n", status.NextInvoiceNumber, status.TotalSalesCount)
	return err
}

func initCounter(ctx context.Context, svc *service.Service, out io.Writer) error {
	result, err := svc.InitInvoiceCounter(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "current sequence: %d\n", result.CurrentSequence)
	return err
}
