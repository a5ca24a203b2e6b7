package server

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/toicours/fundme-go/cli/options"
	"github.com/toicours/fundme-go/pkg/config"
	"github.com/toicours/fundme-go/pkg/core/ledger"
	"github.com/toicours/fundme-go/pkg/core/storage"
	"github.com/toicours/fundme-go/pkg/oracle"
	"github.com/toicours/fundme-go/pkg/rpc/server"
	"github.com/toicours/fundme-go/pkg/services/metrics"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// NewCommands returns 'node' and 'db' commands.
func NewCommands() []cli.Command {
	cfgFlags := []cli.Flag{options.ConfigFile, options.Debug}
	var cfgCountOutFlags = make([]cli.Flag, len(cfgFlags), len(cfgFlags)+1)
	copy(cfgCountOutFlags, cfgFlags)
	cfgCountOutFlags = append(cfgCountOutFlags, cli.StringFlag{
		Name:  "out, o",
		Usage: "Output file (stdout if not given)",
	})
	var cfgCountInFlags = make([]cli.Flag, len(cfgFlags), len(cfgFlags)+1)
	copy(cfgCountInFlags, cfgFlags)
	cfgCountInFlags = append(cfgCountInFlags, cli.StringFlag{
		Name:  "in, i",
		Usage: "Input file (stdin if not given)",
	})
	return []cli.Command{
		{
			Name:   "node",
			Usage:  "start a FundMe node",
			Action: startServer,
			Flags:  cfgFlags,
		},
		{
			Name:  "db",
			Usage: "database manipulations",
			Subcommands: []cli.Command{
				{
					Name:   "dump",
					Usage:  "dump ledger state to a file",
					Action: dumpDB,
					Flags:  cfgCountOutFlags,
				},
				{
					Name:   "restore",
					Usage:  "restore ledger state from a file",
					Action: restoreDB,
					Flags:  cfgCountInFlags,
				},
			},
		},
	}
}

func newPriceSource(cfg config.OracleConfiguration, log *zap.Logger) (oracle.PriceSource, error) {
	switch cfg.Type {
	case "feed":
		if cfg.Endpoint == "" {
			return nil, errors.New("price feed endpoint is not configured")
		}
		return oracle.NewFeed(cfg.Endpoint, cfg.RequestTimeout*time.Second, log), nil
	case "static":
		price, ok := new(big.Int).SetString(cfg.StaticPrice, 10)
		if !ok || price.Sign() <= 0 {
			return nil, fmt.Errorf("invalid static price %q", cfg.StaticPrice)
		}
		value, overflow := uint256.FromBig(price)
		if overflow {
			return nil, fmt.Errorf("static price %q is too big", cfg.StaticPrice)
		}
		return oracle.NewStatic(value, cfg.StaticDecimals, cfg.StaticVersion), nil
	default:
		return nil, fmt.Errorf("unknown oracle type %q", cfg.Type)
	}
}

// initLedger opens the configured store and builds a ledger on top of it.
// The returned function closes both.
func initLedger(cfg config.Config, log *zap.Logger) (*ledger.Ledger, func(), error) {
	store, err := storage.NewStore(cfg.ApplicationConfiguration.DBConfiguration)
	if err != nil {
		return nil, nil, fmt.Errorf("could not initialize storage: %w", err)
	}

	src, err := newPriceSource(cfg.ApplicationConfiguration.Oracle, log)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	ld, err := ledger.New(ledger.Config{
		Owner:      cfg.LedgerConfiguration.Owner,
		MinimumUSD: cfg.LedgerConfiguration.MinimumUSD,
	}, store, src, nil, log)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("could not initialize ledger: %w", err)
	}

	closer := func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close the DB", zap.Error(err))
		}
	}
	return ld, closer, nil
}

func startServer(ctx *cli.Context) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	log, logLevel, err := options.HandleLoggingParams(ctx.Bool("debug"), cfg.ApplicationConfiguration)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer log.Sync()

	ld, closeLedger, err := initLedger(cfg, log)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer closeLedger()

	errChan := make(chan error)
	rpcServer := server.New(ld, cfg, log)
	prometheus := metrics.NewPrometheusService(cfg.ApplicationConfiguration.Prometheus, log)
	pprof := metrics.NewPprofService(cfg.ApplicationConfiguration.Pprof, log)

	go rpcServer.Start(errChan)
	go prometheus.Start()
	go pprof.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	var shutdownErr error
Main:
	for {
		select {
		case err := <-errChan:
			shutdownErr = fmt.Errorf("server error: %w", err)
			break Main

		case sig := <-sigCh:
			log.Info("signal received", zap.Stringer("name", sig))
			switch sig {
			case syscall.SIGHUP:
				// Toggle between the configured level and debug.
				if logLevel.Level() == zap.DebugLevel {
					logLevel.SetLevel(zap.InfoLevel)
				} else {
					logLevel.SetLevel(zap.DebugLevel)
				}
				log.Warn("using new logging level", zap.Stringer("level", logLevel))
			case syscall.SIGINT, syscall.SIGTERM:
				break Main
			}
		}
	}

	if serr := rpcServer.Shutdown(); serr != nil && shutdownErr == nil {
		shutdownErr = serr
	}
	prometheus.ShutDown()
	pprof.ShutDown()

	if shutdownErr != nil {
		return cli.NewExitError(shutdownErr, 1)
	}
	return nil
}

func dumpDB(ctx *cli.Context) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	log, _, err := options.HandleLoggingParams(ctx.Bool("debug"), cfg.ApplicationConfiguration)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer log.Sync()

	out := os.Stdout
	if fileName := ctx.String("out"); fileName != "" {
		out, err = os.Create(fileName)
		if err != nil {
			return cli.NewExitError(fmt.Errorf("failed to create output file: %w", err), 1)
		}
		defer out.Close()
	}

	ld, closeLedger, err := initLedger(cfg, log)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer closeLedger()

	if err := ld.DumpState(out); err != nil {
		return cli.NewExitError(fmt.Errorf("failed to dump ledger state: %w", err), 1)
	}
	return nil
}

func restoreDB(ctx *cli.Context) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	log, _, err := options.HandleLoggingParams(ctx.Bool("debug"), cfg.ApplicationConfiguration)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer log.Sync()

	in := os.Stdin
	if fileName := ctx.String("in"); fileName != "" {
		in, err = os.Open(fileName)
		if err != nil {
			return cli.NewExitError(fmt.Errorf("failed to open input file: %w", err), 1)
		}
		defer in.Close()
	}

	ld, closeLedger, err := initLedger(cfg, log)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer closeLedger()

	if err := ld.RestoreState(in); err != nil {
		return cli.NewExitError(fmt.Errorf("failed to restore ledger state: %w", err), 1)
	}
	return nil
}
