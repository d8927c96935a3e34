package main

import (
	"fmt"
	"io"
	"monallopay/internal/config"
	"monallopay/internal/i18n"
	"monallopay/internal/logger"
	"monallopay/internal/transfer"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfg        *config.Config
	logger     *zerolog.Logger
	translator *i18n.Translator
	lang       string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var lang string

	root := &cobra.Command{
		Use:          "monallopay",
		Short:        "MonalloPay wallet backend and command line wallet",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger.Init(cfg.LogLevel, cfg.LogFormat)

			tr, err := i18n.New()
			if err != nil {
				return fmt.Errorf("failed to load translations: %w", err)
			}

			a.cfg = cfg
			a.logger = logger.GetLogger()
			a.translator = tr
			a.lang = tr.Match(lang, cfg.Language)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&lang, "lang", "", "display language (en, zh); defaults to LANGUAGE")

	root.AddCommand(
		newServeCmd(a),
		newTransferCmd(a),
		newBalancesCmd(a),
		newHistoryCmd(a),
		newAddressCmd(a),
	)
	return root
}

func (a *app) t(messageID string, data map[string]interface{}) string {
	return a.translator.T(a.lang, messageID, data)
}

// printNotifier shows transfer notices on the terminal.
type printNotifier struct {
	out  io.Writer
	tr   *i18n.Translator
	lang string
}

func (n *printNotifier) Notify(notice transfer.Notice) {
	_, _ = fmt.Fprintln(n.out, n.tr.T(n.lang, notice.MessageID, map[string]interface{}{
		"Asset": notice.Asset.String(),
	}))
}
