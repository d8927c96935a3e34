package main

import (
	"fmt"
	"monallopay/internal/addrcodec"
	"monallopay/internal/history"
	"monallopay/internal/models"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	q := models.TransferQuery{}
	cmd := &cobra.Command{
		Use:   "history ADDRESS",
		Short: "List the transfer history of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.history(cmd, args[0], q)
		},
	}
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.Limit, "limit", 10, "transfers per page")
	cmd.Flags().StringVar(&q.Search, "search", "", "match sender, recipient or tx hash")
	cmd.Flags().StringVar(&q.Currency, "currency", "", "only this asset")
	return cmd
}

func (a *app) history(cmd *cobra.Command, address string, q models.TransferQuery) error {
	out := cmd.OutOrStdout()
	cfg := a.cfg

	owner, err := addrcodec.Normalize(cfg.Chain.AddressPrefix, address)
	if err != nil {
		_, _ = fmt.Fprintln(out, a.t("InvalidAddressFormat", nil))
		return err
	}
	q.UserAddress = owner

	client := history.NewClient(cfg.API.BaseURL, cfg.HTTP.RateLimit, cfg.HTTP.MaxRetries,
		cfg.HTTP.RetryDelay, cfg.HTTP.Timeout, a.logger)
	defer client.Close()

	page, err := client.ListTransactions(cmd.Context(), q)
	if err != nil {
		_, _ = fmt.Fprintln(out, a.t("FetchTransactionsFailed", nil))
		return err
	}
	if len(page.Transactions) == 0 {
		_, _ = fmt.Fprintln(out, a.t("NoTransactions", nil))
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tASSET\tAMOUNT\tFROM\tTO\tTX")
	for _, rec := range page.Transactions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
			rec.Asset,
			rec.Amount,
			addrcodec.Truncate(rec.Sender, 6, 4),
			addrcodec.Truncate(rec.Recipient, 6, 4),
			addrcodec.Truncate(rec.TxHash, 10, 8),
		)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(out, "page %d/%d, %d transfers\n",
		page.Pagination.CurrentPage, page.Pagination.TotalPages, page.Pagination.TotalItems)
	return nil
}
