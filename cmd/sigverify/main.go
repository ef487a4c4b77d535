// sigverify sweeps every stored electronic signature, recomputes its hashes
// and reports records altered after signing. It exits with status 2 when any
// tampered signature is found.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"archivist/internal/platform/config"
	"archivist/internal/platform/logger"
	platformpg "archivist/internal/platform/postgres"
	storepg "archivist/internal/storage/postgres"
)

type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		var coded exitError
		if errors.As(err, &coded) {
			os.Exit(coded.code)
		}
		fmt.Fprintf(os.Stderr, "sigverify: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	var format string
	flagSet := pflag.NewFlagSet("sigverify", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Database.URL, "database-url", cfg.Database.URL, "Postgres connection URL (default: $DATABASE_URL)")
	flagSet.StringVarP(&format, "format", "f", "text", "output format: text or json")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("a database URL is required (--database-url or DATABASE_URL)")
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q", format)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := platformpg.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := sweep(ctx, storepg.New(db))
	if err != nil {
		return err
	}
	log.Info("signature sweep finished",
		"checked", report.Checked,
		"invalidated", report.Invalidated,
		"tampered", report.Tampered,
	)
	if err := writeReport(stdout, report, format); err != nil {
		return err
	}
	if report.Tampered > 0 {
		return exitError{code: 2}
	}
	return nil
}
