package main

import (
	"context"
	"errors"
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

	"github.com/sirupsen/logrus"

	"github.com/SkylogUAS/Skylog/app_config"
	"github.com/SkylogUAS/Skylog/db_store"
	"github.com/SkylogUAS/Skylog/exporters"
	"github.com/SkylogUAS/Skylog/importer"
	"github.com/SkylogUAS/Skylog/importers"
	"github.com/SkylogUAS/Skylog/overpass"
	"github.com/SkylogUAS/Skylog/version"
)

const (
	LOGFILE_NAME            = "logs/skylog-zone-importer.log"
	DEFAULT_CONFIG_FILENAME = "configs/skylog.toml"
)

func usage(flagSet *flag.FlagSet, output io.Writer) {
	fmt.Fprintf(output, `** Skylog zone importer. Version %s **
Usage: %s [-help] [-debug] [-f configfile] [-src geojson|osm|overpass|demo] [-file <filename>] [-bbox <bbox>] [-keep-existing]

%s loads UAS zones into the database. Unless -keep-existing is given,
all existing zones are deleted first.

`,
		version.APP_VERSION, os.Args[0], os.Args[0])

	fmt.Fprint(output, "Options:\n")
	flagSet.SetOutput(output)
	flagSet.PrintDefaults()

	fmt.Fprintf(output, `
Examples:
%s
%s -file my-zones.geojson -keep-existing
%s -src osm -file zones.osm
%s -src overpass -bbox -3.9,40.3,-3.5,40.6
%s -src demo -count 50
%s -src geojson,demo
`,
		os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

var errUnknownSource = errors.New("unknown -src")

type sourceOptions struct {
	file  string
	bbox  string
	count int
}

func newSource(logger *logrus.Logger, cfg *app_config.Config, opts sourceOptions, name string) (exporters.Exporter, error) {
	switch strings.TrimSpace(name) {
	case "geojson":
		filename := opts.file
		if filename == "" {
			filename = cfg.Zones.DefaultFile
		}
		return exporters.NewFileExporter(logger, filename)
	case "osm":
		if opts.file == "" {
			return nil, errors.New("'-src osm' needs a -file")
		}
		return exporters.NewOSMExporter(logger, opts.file)
	case "overpass":
		bound, err := overpass.ParseBBox(opts.bbox)
		if err != nil {
			return nil, fmt.Errorf("'-src overpass' needs a valid -bbox: %w", err)
		}
		client, err := overpass.NewClient(logger, cfg.Overpass)
		if err != nil {
			return nil, err
		}
		return exporters.NewOverpassExporter(logger, client, bound)
	case "demo":
		count := cfg.Zones.DemoCount
		if opts.count > 0 {
			count = opts.count
		}
		return exporters.NewDemoExporter(count), nil
	default:
		return nil, fmt.Errorf("%w '%s'", errUnknownSource, name)
	}
}

func main() {
	flagSet := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	helpFlag := flagSet.Bool("help", false, "help!")
	debugFlag := flagSet.Bool("debug", false, "override config and turn on debug logging")
	flagSet.BoolVar(helpFlag, "h", false, "help!")
	configFileFlag := flagSet.String("f", DEFAULT_CONFIG_FILENAME, "config file to use")
	srcFlag := flagSet.String("src", "geojson", "where zones come from: 'geojson', 'osm', 'overpass' or 'demo', comma separated for several")
	bboxFlag := flagSet.String("bbox", "", "minLon,minLat,maxLon,maxLat to search with '-src overpass'")
	fileFlag := flagSet.String("file", "", "GeoJSON or OSM XML file to import (default: zones.default_file from config)")
	keepExistingFlag := flagSet.Bool("keep-existing", false, "don't delete existing zones before importing")
	countFlag := flagSet.Int("count", 0, "number of zones for '-src demo' (default: zones.demo_count from config)")

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

	if len(flagSet.Args()) > 0 {
		usage(flagSet, os.Stderr)
		os.Exit(1)
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

	zonesConfig := cfg.Zones
	if *keepExistingFlag {
		zonesConfig.KeepExisting = true
	}

	opts := sourceOptions{
		file:  *fileFlag,
		bbox:  *bboxFlag,
		count: *countFlag,
	}

	var exporter exporters.Exporter

	srcNames := strings.Split(*srcFlag, ",")
	if len(srcNames) == 1 {
		exporter, err = newSource(logger, cfg, opts, srcNames[0])
	} else {
		var multi exporters.MultiExporter
		for _, name := range srcNames {
			var source exporters.Exporter
			if source, err = newSource(logger, cfg, opts, name); err != nil {
				break
			}
			multi.Append(source)
		}
		exporter = multi
	}

	if err != nil {
		if errors.Is(err, errUnknownSource) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Try %s -help for help.\n", os.Args[0])
			os.Exit(1)
		}
		logger.Fatalf("failed to create zone source: %v", err)
	}

	dbStore, err := db_store.NewSkylogDBStore(cfg.DB, logger)
	if err != nil {
		logger.Fatalf("failed to create dbStore: %v", err)
	}
	defer dbStore.Close()

	if err := dbStore.Migrate(cfg.DB.MigrationsPath); err != nil {
		logger.Fatalf("failed to run db migrations: %v", err)
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

	runner, err := importer.NewImportRunner(
		logger,
		zonesConfig,
		importers.NewDBZoneImporter(logger, dbStore),
		exporter,
		dbStore,
	)
	if err != nil {
		logger.Fatal(err)
	}

	result, err := runner.Import(ctx)
	if err != nil {
		logger.Fatalf("import failed: %v", err)
	}

	if zonesConfig.KeepExisting {
		fmt.Fprintf(os.Stdout, "Created %d zone(s), keeping existing zones.\n", result.Created)
	} else {
		fmt.Fprintf(os.Stdout, "Deleted %d existing zone(s). Created %d zone(s).\n", result.Deleted, result.Created)
	}
}
