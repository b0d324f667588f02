package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kb9vqg/ipsclink/pkg/config"
	"github.com/kb9vqg/ipsclink/pkg/eventlog"
	"github.com/kb9vqg/ipsclink/pkg/ipsc"
	"github.com/kb9vqg/ipsclink/pkg/ipsc/ipscerr"
	"github.com/kb9vqg/ipsclink/pkg/logger"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.StringVar(&configFile, "c", "", "Path to configuration file (shorthand)")

	var logLevel string
	flag.StringVar(&logLevel, "log_level", "", "Override logging.level from the config file")
	flag.StringVar(&logLevel, "ll", "", "Override logging.level (shorthand)")

	var logHandle string
	flag.StringVar(&logHandle, "log_handle", "", "Override logging.format from the config file")
	flag.StringVar(&logHandle, "lh", "", "Override logging.format (shorthand)")

	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ipsclink %s\n", version)
		fmt.Printf("Git Commit: %s\n", gitCommit)
		fmt.Printf("Built: %s\n", buildTime)
		os.Exit(0)
	}

	log := logger.New(logger.Config{Level: "info", Format: "text"})

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logHandle != "" {
		cfg.Logging.Format = logHandle
	}

	log = logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Info("ipsclink starting",
		logger.String("version", version),
		logger.String("commit", gitCommit),
		logger.String("build_time", buildTime))

	db, err := eventlog.NewDB(eventlog.Config{Path: "data/ipsclink.db"}, log.WithComponent("eventlog"))
	if err != nil {
		log.Error("failed to initialize event log", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	repo := eventlog.NewRepository(db.GetDB())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var systems []*ipsc.System

	for name, raw := range cfg.Systems {
		if !raw.Enabled {
			log.Info("system disabled, skipping", logger.String("system", name))
			continue
		}

		sysCfg, err := raw.ToIPSC(name)
		if err != nil {
			log.Error("invalid system configuration", logger.String("system", name), logger.Error(err))
			os.Exit(1)
		}

		cb := ipsc.NewLoggingCallbacks(log, repo)
		sys := ipsc.NewSystem(sysCfg, cb, log)

		mu.Lock()
		systems = append(systems, sys)
		mu.Unlock()

		wg.Add(1)
		go func(name string, sys *ipsc.System) {
			defer wg.Done()
			if err := sys.Start(ctx); err != nil && err != context.Canceled {
				log.Error("system stopped with error", logger.String("system", name), logger.Error(err))
				if errors.Is(err, ipscerr.ErrFatalInit) {
					os.Exit(1)
				}
			}
		}(name, sys)

		log.Info("system started",
			logger.String("system", name),
			logger.Bool("master_peer", sysCfg.MasterPeer))
	}

	if len(systems) == 0 {
		log.Warn("no enabled systems configured, exiting")
		os.Exit(0)
	}

	sig := <-sigChan
	log.Info("received shutdown signal", logger.String("signal", sig.String()))

	mu.Lock()
	for _, sys := range systems {
		sys.Shutdown()
	}
	mu.Unlock()

	cancel()
	wg.Wait()

	log.Info("ipsclink stopped")
}
