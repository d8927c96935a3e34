package main

import (
	"context"
	"fmt"
	"io"
	"monallopay/internal/addrcodec"
	"monallopay/internal/assets"
	"monallopay/internal/balance"
	"monallopay/internal/models"
	"monallopay/internal/rates"
	"monallopay/internal/wallet"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newBalancesCmd(a *app) *cobra.Command {
	var (
		address string
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show IMUA and token balances and the estimated total value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.balances(cmd, address, watch)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "account to inspect (imua1... or 0x...); defaults to the configured wallet key")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling and reprint balances every BALANCE_POLL_INTERVAL")
	return cmd
}

func (a *app) balances(cmd *cobra.Command, address string, watch bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.cfg
	out := cmd.OutOrStdout()

	registry, err := assets.NewRegistry(cfg.Assets)
	if err != nil {
		return err
	}

	var opts []wallet.Option
	if address == "" {
		key, err := wallet.LoadKey(cfg.Wallet.PrivateKey, cfg.Wallet.KeystorePath, cfg.Wallet.Passphrase, promptPassphrase)
		if err != nil {
			_, _ = fmt.Fprintln(out, a.t("WalletNotConnected", nil))
			return err
		}
		opts = append(opts, wallet.WithKey(key))
	}

	w, err := wallet.Dial(ctx, cfg.Chain.RpcEndpoint, cfg.Chain.ChainID, a.logger, opts...)
	if err != nil {
		return err
	}
	defer w.Close()

	if address == "" {
		account, err := w.Account(ctx)
		if err != nil {
			return err
		}
		address = account.Hex()
	}
	owner, err := addrcodec.Normalize(cfg.Chain.AddressPrefix, address)
	if err != nil {
		_, _ = fmt.Fprintln(out, a.t("InvalidAddressFormat", nil))
		return err
	}

	poller := balance.NewPoller(w, registry, cfg.Chain.PollInterval, a.logger)
	poller.SetAccount(owner)
	if err := poller.Refresh(ctx); err != nil {
		return err
	}

	display, _ := addrcodec.ToChainAddress(cfg.Chain.AddressPrefix, owner)
	_, _ = fmt.Fprintf(out, "%s (%s)\n", display, owner)

	balances := poller.Balances()
	printBalances(out, balances)
	for _, asset := range models.Assets() {
		if registry.ComingSoon(asset) {
			_, _ = fmt.Fprintln(out, a.t("AssetComingSoon", map[string]interface{}{"Asset": asset.String()}))
		}
	}

	nativeRate := decimal.NewFromInt(1)
	if cfg.Rates.Enabled {
		client := rates.NewClient(cfg.Rates.BaseURL, cfg.Rates.APIKey, cfg.Rates.SecretKey,
			cfg.Rates.Passphrase, cfg.HTTP.Timeout, a.logger)
		quotes := rates.NewPoller(client, cfg.Rates.Pair, cfg.Rates.Interval, a.logger)
		if err := quotes.Refresh(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Using default exchange rate")
		}
		nativeRate = quotes.Rate()
	}
	_, _ = fmt.Fprintf(out, "%s: %s\n", a.t("TotalValue", nil), balance.TotalValue(balances, nativeRate).StringFixed(2))

	if !watch {
		return nil
	}
	return watchBalances(ctx, poller, out)
}

// watchBalances reprints the balances after every poll until ctx is done.
func watchBalances(ctx context.Context, p *balance.Poller, out io.Writer) error {
	p.OnUpdate(func(balances map[models.Asset]string) {
		_, _ = fmt.Fprintf(out, "-- %s\n", time.Now().Format("15:04:05"))
		printBalances(out, balances)
	})
	return p.Run(ctx)
}

// printBalances lists balances in display order. Assets without an entry
// are skipped.
func printBalances(out io.Writer, balances map[models.Asset]string) {
	for _, asset := range models.Assets() {
		if v, ok := balances[asset]; ok {
			_, _ = fmt.Fprintf(out, "%-8s %s\n", asset, v)
		}
	}
}
