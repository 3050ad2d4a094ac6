// Command arbscanner watches Cardano DEX prices for arbitrage and, when
// serving, executes trades through a browser or hot wallet.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/app"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/config"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/wallet"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "arbscanner",
		Short:         "Cardano DEX arbitrage scanner",
		Long:          `Scans Cardano DEXes for price discrepancies, scores them net of fees and optionally executes two-leg swaps.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (TOML)")

	rootCmd.AddCommand(
		serveCmd(),
		scanCmd(),
		pnlCmd(),
		exportCmd(),
		keygenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// setup loads and validates configuration and installs the JSON logger.
func setup(mode string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %q: %w", cfgFile, err)
	}
	if mode != "" {
		cfg.Mode = mode
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// Logs go to stderr so subcommand output on stdout stays clean.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger.Debug("configuration loaded", slog.Any("config", config.Redacted(cfg)))
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runMode(mode string) error {
	cfg, logger, err := setup(mode)
	if err != nil {
		return err
	}

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signalContext()
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("arbscanner stopped")
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scanner, trade pipeline and dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode("serve")
		},
	}
}

func scanCmd() *cobra.Command {
	var (
		once      bool
		tradeSize float64
		minSpread float64
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Watch for opportunities without trading",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !once {
				return runMode("scan")
			}
			cfg, logger, err := setup("scan")
			if err != nil {
				return err
			}
			application := app.New(cfg, logger)
			defer application.Close()

			ctx, stop := signalContext()
			defer stop()

			report, err := application.ScanOnce(ctx, tradeSize, minSpread)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "scan once, print the report as JSON and exit")
	cmd.Flags().Float64Var(&tradeSize, "trade-size", 1000, "trade size in ADA for --once")
	cmd.Flags().Float64Var(&minSpread, "min-spread", 0, "minimum spread percent for --once")
	return cmd
}

func pnlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pnl",
		Short: "Print today's P&L and lifetime trade stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup("")
			if err != nil {
				return err
			}
			application := app.New(cfg, logger)
			defer application.Close()

			summary, err := application.PnL(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
}

func exportCmd() *cobra.Command {
	var (
		out  string
		toS3 bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trade history as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup("")
			if err != nil {
				return err
			}
			application := app.New(cfg, logger)
			defer application.Close()

			ctx := cmd.Context()
			if toS3 {
				key, err := application.ExportToS3(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return application.Export(ctx, w)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "-", "output file, - for stdout")
	cmd.Flags().BoolVar(&toS3, "s3", false, "upload to the configured S3 bucket instead")
	return cmd
}

func keygenCmd() *cobra.Command {
	var (
		path       string
		passphrase string
		seedHex    string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create an encrypted hot wallet key file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				passphrase = os.Getenv("ARBSCAN_WALLET_KEY_PASSPHRASE")
			}
			if passphrase == "" {
				return errors.New("keygen: --passphrase or ARBSCAN_WALLET_KEY_PASSPHRASE is required")
			}

			var (
				seed []byte
				err  error
			)
			if seedHex != "" {
				seed, err = wallet.ParseSeed(seedHex)
			} else {
				seed, err = wallet.GenerateSeed()
			}
			if err != nil {
				return err
			}
			if err := wallet.WriteKey(path, seed, passphrase); err != nil {
				return err
			}

			pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
			fmt.Fprintf(cmd.OutOrStdout(), "key written to %s\npublic key: %s\n", path, hex.EncodeToString(pub))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "out", "wallet.key", "key file path")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "encryption passphrase")
	cmd.Flags().StringVar(&seedHex, "seed", "", "import an existing hex ed25519 seed instead of generating one")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
