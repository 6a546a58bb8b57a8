// Command wagerd is the entry point for the wagerbook settlement service. It
// loads configuration, validates it, wires dependencies, sets up signal
// handling, and starts the application in the configured mode.
//
// Usage:
//
//	wagerd [-config path] [serve]
//	wagerd [-config path] fund -account ID [-owner ID] -amount N
//	wagerd [-config path] sign-reading -feed ID -value V [-at RFC3339]
//	wagerd [-config path] seal-key -out path
//	wagerd [-config path] archive-show -path key
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/wagerbook/internal/app"
	"github.com/alanyoungcy/wagerbook/internal/config"
	"github.com/alanyoungcy/wagerbook/internal/units"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file (empty for defaults and environment only)")
	flag.Parse()

	// Bootstrap logger until the configured one is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	cmd, args := "serve", []string(nil)
	if flag.NArg() > 0 {
		cmd, args = flag.Arg(0), flag.Args()[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, application, cfg, logger, *configPath)
	case "fund":
		err = fund(ctx, application, cfg, args)
	case "sign-reading":
		err = signReading(application, args)
	case "seal-key":
		err = sealKey(application, args)
	case "archive-show":
		err = archiveShow(ctx, application, args)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		application.Close()
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func serve(ctx context.Context, application *app.App, cfg *config.Config, logger *slog.Logger, configPath string) error {
	logger.Info("wagerbook starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
	)

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if !errors.Is(err, context.Canceled) {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			return err
		}
		logger.Info("application shut down gracefully")
	}

	logger.Info("wagerbook stopped")
	return nil
}

func fund(ctx context.Context, application *app.App, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fund", flag.ExitOnError)
	account := fs.String("account", "", "custody account id (usually the user identity)")
	owner := fs.String("owner", "", "account owner, defaults to -account")
	amount := fs.String("amount", "", "amount in base units")
	display := fs.String("display", "", "amount in display units, e.g. 12.5")
	_ = fs.Parse(args)

	var base uint64
	var err error
	switch {
	case *amount != "":
		base, err = strconv.ParseUint(*amount, 10, 64)
	case *display != "":
		base, err = units.Parse(*display, cfg.Settlement.AssetDecimals)
	default:
		err = errors.New("one of -amount or -display is required")
	}
	if err != nil {
		return fmt.Errorf("fund: %w", err)
	}

	acct, err := application.Fund(ctx, *account, *owner, base)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"account": acct.ID,
		"owner":   acct.Owner,
		"asset":   acct.Asset,
		"balance": strconv.FormatUint(acct.Balance, 10),
		"display": units.Format(acct.Balance, cfg.Settlement.AssetDecimals),
	})
}

func signReading(application *app.App, args []string) error {
	fs := flag.NewFlagSet("sign-reading", flag.ExitOnError)
	feedID := fs.String("feed", "", "feed id")
	value := fs.String("value", "", "result code: -1 unfinished, 0 away, 1 home, 2 draw")
	at := fs.String("at", "", "reading time as RFC3339, defaults to now")
	_ = fs.Parse(args)

	var ts time.Time
	if *at != "" {
		var err error
		if ts, err = time.Parse(time.RFC3339, *at); err != nil {
			return fmt.Errorf("sign-reading: -at: %w", err)
		}
	}
	reading, err := application.SignReading(*feedID, *value, ts)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"feed_id":   reading.FeedID,
		"value":     reading.Value,
		"timestamp": reading.Timestamp.Unix(),
		"signer":    reading.Signer,
		"signature": hexutil.Encode(reading.Signature),
	})
}

func sealKey(application *app.App, args []string) error {
	fs := flag.NewFlagSet("seal-key", flag.ExitOnError)
	out := fs.String("out", "oracle.key", "where to write the encrypted key file")
	_ = fs.Parse(args)

	addr, err := application.SealOracleKey(*out)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"address": addr, "key_file": *out})
}

func archiveShow(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("archive-show", flag.ExitOnError)
	path := fs.String("path", "", "archive object key, e.g. markets/2026/03/01/<id>.jsonl")
	_ = fs.Parse(args)

	m, positions, err := application.InspectArchive(ctx, *path)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"market": m, "positions": positions})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
