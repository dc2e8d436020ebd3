// Command quantbox ingests Chinese futures and stock market data from the
// configured vendor and saves it into the document store. It runs either
// as a one-shot CLI verb or, with --daemon, as a long-running process on a
// cron schedule with an HTTP health/metrics surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"quantbox/internal/config"
	"quantbox/internal/kernel"
	"quantbox/internal/orchestrator"
	"quantbox/internal/pipeline"
	"quantbox/internal/store"
	"quantbox/internal/vendorfactory"
	"quantbox/pkg/logger"
)

func main() {
	configPath := flag.String("config", "quantbox.toml", "path to the TOML configuration file")
	vendor := flag.String("vendor", "", "vendor to use (overrides the default in config)")
	daemon := flag.Bool("daemon", false, "run as a long-lived daemon on the configured schedule")
	exchangesFlag := flag.String("exchanges", "", "comma-separated exchange codes to restrict this verb to (default: every configured exchange)")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols; narrows future_daily/future_holdings/future_contracts to this set")
	startDateFlag := flag.String("start-date", "", "bounded window start, YYYYMMDD (requires --end-date)")
	endDateFlag := flag.String("end-date", "", "bounded window end, YYYYMMDD (requires --start-date)")
	dateFlag := flag.String("date", "", "single as-of date, YYYYMMDD (future_contracts; mutually exclusive with --start-date/--end-date)")
	listStatusFlag := flag.String("list-status", "", "stock_list status filter: L, D, or P")
	flag.Parse()

	verb := "save_all"
	if flag.NArg() > 0 {
		verb = flag.Arg(0)
	}

	reg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "quantbox: config:", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: reg.LogLevel(), Pretty: !*daemon})

	vendorName := *vendor
	if vendorName == "" {
		vendorName = "V-T"
	}
	ds, closer, err := vendorfactory.Build(vendorName, reg, log)
	if err != nil {
		log.Fatal().Err(err).Str("vendor", vendorName).Msg("failed to build vendor adapter")
	}
	defer closer.Close()

	db, err := store.Open(reg.DatabaseURI())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open document store")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate document store schema")
	}

	gateway := store.NewGateway(db)
	snapshots := store.NewSnapshotStore(db)

	tuning := reg.Tuning()
	var opts []pipeline.Option
	if tuning.AuditRawResponses {
		opts = append(opts, pipeline.WithSnapshots(snapshots))
	}
	pl := pipeline.New(ds, gateway, reg, log, opts...)

	exporter, err := buildExporter(ctx, tuning.S3Export, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure snapshot exporter")
	}
	orch := orchestrator.New(ds, pl, exporter, log)

	if *daemon {
		runDaemon(ctx, reg, db, orch, log)
		return
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	exchanges := reg.Exchanges()
	if *exchangesFlag != "" {
		exchanges = splitCSV(*exchangesFlag)
	}
	runOpts, err := parseRunOptions(*symbolsFlag, *startDateFlag, *endDateFlag, *dateFlag, *listStatusFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "quantbox:", err)
		os.Exit(1)
	}

	if err := dispatch(ctx, verb, exchanges, runOpts, pl, orch); err != nil {
		log.Fatal().Err(err).Str("verb", verb).Msg("command failed")
	}
}

// splitCSV splits a comma-separated flag value, dropping empty segments
// produced by stray whitespace or a trailing comma.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseRunOptions turns the --symbols/--start-date/--end-date/--date/
// --list-status flags into a pipeline.RunOptions, rejecting a date string
// that isn't a valid YYYYMMDD (or YYYY-MM-DD) calendar date.
func parseRunOptions(symbols, startDate, endDate, date, listStatus string) (pipeline.RunOptions, error) {
	var opts pipeline.RunOptions
	opts.Symbols = splitCSV(symbols)
	opts.ListStatus = listStatus

	parse := func(flagName, v string) (*int, error) {
		if v == "" {
			return nil, nil
		}
		n, err := kernel.DateToInt(v)
		if err != nil {
			return nil, fmt.Errorf("--%s: %q is not a YYYYMMDD date", flagName, v)
		}
		return &n, nil
	}

	var err error
	if opts.StartDate, err = parse("start-date", startDate); err != nil {
		return opts, err
	}
	if opts.EndDate, err = parse("end-date", endDate); err != nil {
		return opts, err
	}
	if opts.Date, err = parse("date", date); err != nil {
		return opts, err
	}
	return opts, nil
}

func dispatch(ctx context.Context, verb string, exchanges []string, opts pipeline.RunOptions, pl *pipeline.Pipeline, orch *orchestrator.Orchestrator) error {
	switch verb {
	case "save_all":
		results := orch.SaveAll(ctx, exchanges)
		for dataset, acc := range results {
			fmt.Printf("%s: inserted=%d modified=%d skipped=%d errors=%d\n",
				dataset, acc.Inserted(), acc.Modified(), acc.Skipped(), len(acc.Errors()))
		}
	case "save_trade_calendar":
		acc := pl.RunCalendar(ctx, exchanges, opts)
		printAccumulator(acc)
	case "save_future_contracts":
		acc := pl.RunContracts(ctx, exchanges, opts)
		printAccumulator(acc)
	case "save_future_daily":
		acc := pl.RunDaily(ctx, exchanges, opts)
		printAccumulator(acc)
	case "save_future_holdings":
		acc := pl.RunHoldings(ctx, exchanges, opts)
		printAccumulator(acc)
	case "save_stock_list":
		acc := pl.RunStockList(ctx, exchanges, opts)
		printAccumulator(acc)
	case "quit", "exit":
		return nil
	default:
		return fmt.Errorf("unknown command %q", verb)
	}
	return nil
}

// buildExporter returns nil, nil when export is disabled; a nil *store.Exporter
// disables the Orchestrator's best-effort post-save snapshot upload.
func buildExporter(ctx context.Context, cfg config.S3ExportConfig, log zerolog.Logger) (*store.Exporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})
	return store.NewExporter(client, cfg.Bucket, cfg.Prefix, log), nil
}

type accumulatorSummary interface {
	Inserted() int
	Modified() int
	Skipped() int
	Errors() []error
}

func printAccumulator(acc accumulatorSummary) {
	fmt.Printf("inserted=%d modified=%d skipped=%d errors=%d\n",
		acc.Inserted(), acc.Modified(), acc.Skipped(), len(acc.Errors()))
	for _, e := range acc.Errors() {
		fmt.Println("  -", e)
	}
}
