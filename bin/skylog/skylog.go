package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/app_config"
	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/httpserver"
	"github.com/SkylogUAS/Skylog/media_store"
	"github.com/SkylogUAS/Skylog/pyroscope"
	"github.com/SkylogUAS/Skylog/stats_collector"
	"github.com/SkylogUAS/Skylog/version"
	"github.com/SkylogUAS/Skylog/webhook_sender"
	"github.com/SkylogUAS/Skylog/zone_index"
)

const (
	DEFAULT_CONFIG_FILENAME = "configs/skylog.toml"
)

func usage(flagSet *flag.FlagSet, output io.Writer) {
	fmt.Fprintf(output, "** Skylog drone flight logbook. Version %s **\n", version.APP_VERSION)
	fmt.Fprintf(output, "Usage: %s [-debug] [-help] [-f <config-filename>]\n", os.Args[0])
	fmt.Fprint(output, "\n")
	fmt.Fprint(output, "Options:\n")
	flagSet.SetOutput(output)
	flagSet.PrintDefaults()
	fmt.Fprint(output, "\n")
}

func logLevel(cfg *app_config.Config, debug bool) logrus.Level {
	if debug || cfg.Logging.Debug {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

func main() {
	flagSet := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	helpFlag := flagSet.Bool("help", false, "help!")
	debugFlag := flagSet.Bool("debug", false, "override config and turn on debug logging")
	flagSet.BoolVar(helpFlag, "h", false, "help!")
	configFileFlag := flagSet.String("f", DEFAULT_CONFIG_FILENAME, "config file to use")

	err := flagSet.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s", err)
		usage(flagSet, os.Stderr)
		os.Exit(2)
	}

	if *helpFlag {
		usage(flagSet, os.Stdout)
		os.Exit(0)
	}

	if len(flagSet.Args()) != 0 {
		usage(flagSet, os.Stderr)
		os.Exit(1)
	}

	defaultConfig := app_config.GetDefaultConfig()
	configFilename := *configFileFlag
	if _, err := os.Stat(configFilename); err != nil && configFilename == DEFAULT_CONFIG_FILENAME {
		// defaults plus SKYLOG_* env are enough to run
		configFilename = ""
	}

	cfg, err := app_config.LoadConfig(configFilename, defaultConfig)
	if err != nil {
		log.Fatal(err)
	}

	if *debugFlag {
		cfg.Logging.Debug = true
	}

	logger, err := cfg.CreateLogger(true, nil)
	if err != nil {
		log.Fatal(err)
	}
	logger.Infof("STARTUP: Version %s. Config loaded.", version.APP_VERSION)

	statsCollector := stats_collector.GetStatsCollector(cfg)
	logger.Infof("STARTUP: using %s stats collector", statsCollector.Name())

	if cfg.Pyroscope.Enabled() {
		profiler, err := pyroscope.Run(logger, cfg.Pyroscope)
		if err != nil {
			logger.Errorf("STARTUP: Failed to initialize pyroscope: %v", err)
		} else {
			logger.Info("STARTUP: Initialized pyroscope")
			defer profiler.Stop()
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancelFn()

		sig_ch := make(chan os.Signal, 1)
		signal.Notify(sig_ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ctx.Done():
			// something else told us to exit
		case sig := <-sig_ch:
			logger.Infof("received signal '%s'", sig.String())
		}
	}()

	logger.Debugf("STARTUP: signal handler installed.")

	dbStore, err := db_store.NewSkylogDBStore(cfg.DB, logger)
	if err != nil {
		logger.Fatalf("failed to create dbStore: %v", err)
	}
	defer dbStore.Close()

	if err := dbStore.Migrate(cfg.DB.MigrationsPath); err != nil {
		logger.Fatalf("failed to run db migrations: %v", err)
	}

	logger.Debugf("STARTUP: store inited.")

	mediaStore, err := media_store.NewMediaStore(logger, cfg.Media)
	if err != nil {
		logger.Fatalf("failed to create media store: %v", err)
	}

	logger.Infof("STARTUP: storing media in '%s'", mediaStore.Dir())

	zoneIndex := zone_index.NewZoneIndex(logger, dbStore)
	if err := zoneIndex.Reload(ctx); err != nil {
		// lookups retry the load
		logger.Errorf("STARTUP: %v", err)
	}

	alertSender, err := webhook_sender.GetSender(logger, cfg.Webhooks, cfg.WebhookSettings, statsCollector.AddZoneAlerts)
	if err != nil {
		logger.Fatal(err)
	}

	reloadFn := func() error {
		newCfg, err := app_config.LoadConfig(configFilename, defaultConfig)
		if err != nil {
			return fmt.Errorf("failed to reload config file: %w", err)
		}

		logger.SetLevel(logLevel(newCfg, *debugFlag))

		if webhookSender, ok := alertSender.(*webhook_sender.WebhookSender); ok {
			if err := webhookSender.Reconfigure(newCfg.Webhooks, newCfg.WebhookSettings); err != nil {
				return fmt.Errorf("failed to reconfigure webhooks: %w", err)
			}
		} else if len(newCfg.Webhooks) > 0 {
			logger.Warnf("webhooks were added to the config: restart to start sending them")
		}

		zoneIndex.Invalidate()
		return nil
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancelFn()

		sig_ch := make(chan os.Signal, 1)
		signal.Notify(sig_ch, syscall.SIGHUP)
		for {
			select {
			case <-ctx.Done():
				// something else told us to exit
				return
			case sig := <-sig_ch:
				logger.Infof("received signal '%s' -- Reloading config.", sig.String())
				err := reloadFn()
				if err == nil {
					logger.Infof("config reloaded")
				} else {
					logger.Error(err)
				}
			}
		}
	}()
	logger.Debugf("STARTUP: installed reload (SIGHUP) handler")

	wg.Add(1)
	go func() {
		defer wg.Done()
		// shut down everything else if this bails early
		defer cancelFn()

		if err := alertSender.Run(ctx); err != nil {
			logger.Errorf("webhook sender stopped: %v", err)
		}
	}()

	logger.Debugf("STARTUP: webhook sender started.")

	httpServer, err := httpserver.NewHTTPServer(
		logger,
		cfg.HTTP,
		dbStore,
		mediaStore,
		zoneIndex,
		statsCollector,
		alertSender,
	)
	if err != nil {
		logger.Fatalf("failed to create http server: %v", err)
	}

	logger.Infof("STARTUP: starting http server on %s (final step)", cfg.HTTP.Addr)
	err = httpServer.Run(ctx, cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout())
	if err != nil {
		logger.Fatalf("failed to run http server: %v", err)
	}

	// http server could have shut down early or not started. The defers
	// above will cancel and wait for things to shutdown cleanly.
}
