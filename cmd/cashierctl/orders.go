package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fatflowers/cashier-stripe/internal/app/service/order"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect orders",
	}
	cmd.AddCommand(ordersListCmd())
	return cmd
}

func ordersListCmd() *cobra.Command {
	var (
		status  string
		pending bool
		size    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest orders",
		Example: `  cashierctl orders list --status review_necessary
  cashierctl orders list --pending`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &types.PageRequest{Size: size, SortBy: "created_at", SortOrder: types.SortOrderDesc}
			if status != "" {
				req.Filters = append(req.Filters, &types.CommonFilter{
					Field: "payment_status", Operator: types.CommonFilterOperatorEq, Values: []any{status},
				})
			}

			var orders *order.Service
			return withApp(cmd.Context(), func() error {
				res, err := orders.ScanOrders(cmd.Context(), req)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NUMBER\tSTATUS\tMETHOD\tAMOUNT\tTRANSACTION\tCREATED")
				shown := 0
				for _, o := range res.Items {
					if pending && !o.HasPendingTransaction() {
						continue
					}
					shown++
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", o.Number, o.PaymentStatus, o.MethodID,
						types.FormatAmount(o.Amount, o.Currency), o.TransactionID, o.CreatedAt.Format("2006-01-02 15:04"))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d shown, %d total\n", shown, res.Total)
				return nil
			}, &orders)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by payment status")
	cmd.Flags().BoolVar(&pending, "pending", false, "only orders still waiting for their charge")
	cmd.Flags().IntVarP(&size, "size", "n", 20, "page size")
	return cmd
}
