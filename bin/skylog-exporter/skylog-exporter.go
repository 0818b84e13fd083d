package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/goccy/go-json"

	"github.com/SkylogUAS/Skylog/app_config"
	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/exporters"
	"github.com/SkylogUAS/Skylog/media_store"
	"github.com/SkylogUAS/Skylog/version"
)

const (
	LOGFILE_NAME            = "logs/skylog-exporter.log"
	DEFAULT_CONFIG_FILENAME = "configs/skylog.toml"
)

func usage(flagSet *flag.FlagSet, output io.Writer) {
	fmt.Fprintf(output, `** Skylog exporter. Version %s **
Usage: %s [-help] [-debug] [-f configfile] flights|photos|zones
       %s [-help] [-debug] [-f configfile] -flight-id <id>

%s exports flights, photos or zones from the DB as a GeoJSON
FeatureCollection, or a single flight path as a GeoJSON Feature.

Output will go to stdout, so just redirect output to a file. Logging
will go to stderr and to a logfile.
`,
		version.APP_VERSION, os.Args[0], os.Args[0], os.Args[0])

	fmt.Fprint(output, "Options:\n")
	flagSet.SetOutput(output)
	flagSet.PrintDefaults()

	fmt.Fprintf(output, `
Examples:
%s flights > flights.geojson
%s -flight-id 12 > flight_12.geojson
`,
		os.Args[0], os.Args[0])
}

func main() {
	flagSet := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	helpFlag := flagSet.Bool("help", false, "help!")
	debugFlag := flagSet.Bool("debug", false, "override config and turn on debug logging")
	flagSet.BoolVar(helpFlag, "h", false, "help!")
	configFileFlag := flagSet.String("f", DEFAULT_CONFIG_FILENAME, "config file to use")
	flightIdFlag := flagSet.Int64("flight-id", 0, "export only 1 flight")
	versionFlag := flagSet.Bool("version", false, "print the version of this tool and exit")

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

	if *versionFlag {
		fmt.Fprintf(os.Stdout, "%s\n", version.APP_VERSION)
		os.Exit(0)
	}

	var what string

	switch args := flagSet.Args(); {
	case *flightIdFlag != 0 && len(args) > 0:
		fmt.Fprint(os.Stderr, "Error: do not give a collection name if '-flight-id' is given\n")
		fmt.Fprintf(os.Stderr, "Try %s -help for help.\n", os.Args[0])
		os.Exit(1)
	case *flightIdFlag == 0 && len(args) != 1:
		fmt.Fprint(os.Stderr, "Error: one of 'flights', 'photos', 'zones' or '-flight-id' is required\n")
		fmt.Fprintf(os.Stderr, "Try %s -help for help.\n", os.Args[0])
		os.Exit(1)
	case len(args) == 1:
		what = args[0]
	}

	defaultConfig := app_config.GetDefaultConfig()
	configFilename := *configFileFlag
	if _, err := os.Stat(configFilename); err != nil && configFilename == DEFAULT_CONFIG_FILENAME {
		configFilename = ""
	}

	cfg, err := app_config.LoadConfig(configFilename, defaultConfig)
	if err != nil {
		log.Fatal(err)
	}
	cfg.Logging.Filename = filepath.FromSlash(LOGFILE_NAME)

	if *debugFlag {
		cfg.Logging.Debug = true
	}

	logger, err := cfg.CreateLogger(true, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}
	logger.Infof("STARTUP: Version %s. Config loaded.", version.APP_VERSION)

	dbStore, err := db_store.NewSkylogDBStore(cfg.DB, logger)
	if err != nil {
		logger.Fatalf("failed to create dbStore: %v", err)
	}
	defer dbStore.Close()

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

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetEscapeHTML(false)

	if *flightIdFlag != 0 {
		flight, err := dbStore.GetFlightByID(ctx, *flightIdFlag)
		if err != nil {
			logger.Fatalf("failed to get flight from DB: %v", err)
		}

		if flight == nil {
			logger.Fatalf("flight %d not found", *flightIdFlag)
		}

		photos, err := dbStore.GetPhotosByFlight(ctx, flight.Id)
		if err != nil {
			logger.Fatalf("failed to get photos of flight %d: %v", flight.Id, err)
		}

		feature, err := exporters.FlightFeature(flight, len(photos))
		if err != nil {
			logger.Fatalf("flight %d: %v", flight.Id, err)
		}

		if err := encoder.Encode(feature); err != nil {
			logger.Fatal(err)
		}
		return
	}

	var exporter exporters.Exporter

	switch what {
	case "flights":
		exporter = exporters.NewFlightsExporter(logger, dbStore, dbStore)
	case "photos":
		mediaStore, err := media_store.NewMediaStore(logger, cfg.Media)
		if err != nil {
			logger.Fatalf("failed to create media store: %v", err)
		}
		exporter = exporters.NewPhotosExporter(dbStore, func(relPath string) string {
			u := mediaStore.URL(relPath)
			if strings.HasPrefix(u, "/") && cfg.HTTP.BaseURL != "" {
				u = strings.TrimRight(cfg.HTTP.BaseURL, "/") + u
			}
			return u
		})
	case "zones":
		exporter = exporters.NewZonesExporter(logger, dbStore)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown collection '%s'\n", what)
		fmt.Fprintf(os.Stderr, "Try %s -help for help.\n", os.Args[0])
		os.Exit(1)
	}

	fc, err := exporters.FeatureCollection(ctx, exporter)
	if err != nil {
		logger.Fatalf("failed to export %s: %v", exporter.ExporterName(), err)
	}

	if err := encoder.Encode(fc); err != nil {
		logger.Fatal(err)
	}

	logger.Infof("exported %d %s feature(s)", len(fc.Features), exporter.ExporterName())
}
