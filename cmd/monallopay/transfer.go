package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"monallopay/internal/assets"
	"monallopay/internal/balance"
	"monallopay/internal/events"
	"monallopay/internal/history"
	"monallopay/internal/models"
	"monallopay/internal/session"
	"monallopay/internal/transfer"
	"monallopay/internal/wallet"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type transferOptions struct {
	asset   string
	amount  string
	to      string
	contact string
	yes     bool
}

func newTransferCmd(a *app) *cobra.Command {
	opts := &transferOptions{}
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send IMUA or a token to an imua1... or 0x... address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.transfer(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.asset, "asset", models.IMUA.String(), "asset to send (IMUA, maoUSDT, maoUSDC, maoEURC)")
	cmd.Flags().StringVar(&opts.amount, "amount", "", "amount in display units, e.g. 1.5")
	cmd.Flags().StringVar(&opts.to, "to", "", "recipient address")
	cmd.Flags().StringVar(&opts.contact, "contact", "", "recipient contact name from the address book")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.MarkFlagsMutuallyExclusive("to", "contact")
	return cmd
}

func (a *app) transfer(cmd *cobra.Command, opts *transferOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.cfg
	out := cmd.OutOrStdout()

	registry, err := assets.NewRegistry(cfg.Assets)
	if err != nil {
		return err
	}

	key, err := wallet.LoadKey(cfg.Wallet.PrivateKey, cfg.Wallet.KeystorePath, cfg.Wallet.Passphrase, promptPassphrase)
	if err != nil {
		if errors.Is(err, wallet.ErrNoKey) {
			_, _ = fmt.Fprintln(out, a.t("WalletNotConnected", nil))
		}
		return err
	}

	sess := session.New(a.lang)
	walletOpts := []wallet.Option{wallet.WithKey(key)}
	if !opts.yes {
		walletOpts = append(walletOpts, wallet.WithConfirm(func(ctx context.Context, _ wallet.TxRequest) (bool, error) {
			asset, amount, recipient := sess.Form()
			return promptYesNo(ctx, cmd.InOrStdin(), out, a.t("ConfirmTransfer", map[string]interface{}{
				"Amount":    amount,
				"Asset":     asset,
				"Recipient": recipient,
			}))
		}))
	}

	w, err := wallet.Dial(ctx, cfg.Chain.RpcEndpoint, cfg.Chain.ChainID, a.logger, walletOpts...)
	if err != nil {
		a.printTransferError(out, err)
		return err
	}
	defer w.Close()

	poller := balance.NewPoller(w, registry, cfg.Chain.PollInterval, a.logger)
	unsubscribe := sess.OnAccountChange(poller.SetAccount)
	defer unsubscribe()

	account, err := w.Account(ctx)
	if err != nil {
		return err
	}
	sess.SetAccount(account.Hex())
	if !sess.Connected() {
		_, _ = fmt.Fprintln(out, a.t("WalletNotConnected", nil))
		return transfer.ErrNotConnected
	}
	defer sess.Disconnect()

	// The periodic poll keeps running next to the attempt; its refreshes and
	// the post-transfer refresh race and the last one wins.
	pollCtx, stopPolling := context.WithCancel(ctx)
	var polling errgroup.Group
	polling.Go(func() error { return poller.Run(pollCtx) })
	defer func() {
		stopPolling()
		_ = polling.Wait()
	}()

	hist := history.NewClient(cfg.API.BaseURL, cfg.HTTP.RateLimit, cfg.HTTP.MaxRetries,
		cfg.HTTP.RetryDelay, cfg.HTTP.Timeout, a.logger)
	defer hist.Close()

	recipient := opts.to
	if opts.contact != "" {
		if recipient, err = lookupContact(ctx, hist, account.Hex(), opts.contact); err != nil {
			_, _ = fmt.Fprintln(out, a.t("ContactNotFound", nil))
			return err
		}
	}

	sess.SetAsset(opts.asset)
	sess.SetRecipient(recipient)
	if !sess.SetAmount(strings.TrimSpace(opts.amount)) {
		_, _ = fmt.Fprintln(out, a.t("TransferInvalidInput", nil))
		return fmt.Errorf("%w: amount %q", transfer.ErrValidation, opts.amount)
	}

	svc := transfer.NewService(w, registry, a.logger,
		transfer.WithRecorder(hist),
		transfer.WithNotifier(&printNotifier{out: out, tr: a.translator, lang: sess.Language()}),
		transfer.WithRefresher(poller),
		transfer.WithForm(sess),
		transfer.WithAddressPrefix(cfg.Chain.AddressPrefix),
		transfer.WithStateHook(func(s transfer.State) {
			if s == transfer.AwaitingConfirmation {
				_, _ = fmt.Fprintln(out, a.t("AwaitingConfirmation", nil))
			}
		}),
	)

	asset, amount, to := sess.Form()
	res, err := svc.Transfer(ctx, transfer.Request{
		Asset:     models.Asset(asset),
		Amount:    amount,
		Recipient: to,
	})
	if err != nil {
		a.printTransferError(out, err)
		return err
	}
	if !res.Success {
		return nil
	}

	_, _ = fmt.Fprintln(out, a.t("TransferSuccess", nil))
	_, _ = fmt.Fprintf(out, "tx: %s\n", res.TxHash)
	if link := events.ExplorerURL(cfg.Chain.ExplorerBaseURL, res.TxHash); link != "" {
		_, _ = fmt.Fprintln(out, link)
	}
	for _, warning := range res.Warnings {
		_, _ = fmt.Fprintln(out, a.t(warning, nil))
	}
	printBalances(out, poller.Balances())
	return nil
}

// printTransferError renders err as the localized status line, with a hint
// when submitting the same transfer again may succeed.
func (a *app) printTransferError(out io.Writer, err error) {
	kind := transfer.KindOf(err)
	_, _ = fmt.Fprintln(out, a.t(kind.MessageID(), nil))
	if kind.Retryable() {
		_, _ = fmt.Fprintln(out, a.t("RetryHint", nil))
	}
}

// lookupContact resolves a contact name from the owner's address book. The
// address is checked later by the transfer itself.
func lookupContact(ctx context.Context, hist *history.Client, owner, name string) (string, error) {
	contacts, err := hist.Contacts(ctx, strings.ToLower(owner))
	if err != nil {
		return "", err
	}
	for _, c := range contacts {
		if strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name)) {
			return c.Address, nil
		}
	}
	return "", fmt.Errorf("contact %q not found", name)
}
