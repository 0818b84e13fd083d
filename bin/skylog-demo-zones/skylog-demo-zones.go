package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/SkylogUAS/Skylog/exporters"
	"github.com/SkylogUAS/Skylog/importer"
	"github.com/SkylogUAS/Skylog/logging"
	"github.com/SkylogUAS/Skylog/version"
)

func usage(flagSet *flag.FlagSet, output io.Writer) {
	fmt.Fprintf(output, `** Skylog demo zone generator. Version %s **
Usage: %s [-help] [-debug] [-file <filename>] [-count <n>]

%s appends generated demo zones over Spain to an existing GeoJSON
FeatureCollection file. Features already in the file are kept.

`,
		version.APP_VERSION, os.Args[0], os.Args[0])

	fmt.Fprint(output, "Options:\n")
	flagSet.SetOutput(output)
	flagSet.PrintDefaults()
}

func main() {
	flagSet := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	helpFlag := flagSet.Bool("help", false, "help!")
	debugFlag := flagSet.Bool("debug", false, "turn on debug logging")
	flagSet.BoolVar(helpFlag, "h", false, "help!")
	fileFlag := flagSet.String("file", importer.DEFAULT_ZONES_FILE, "GeoJSON file to append to")
	countFlag := flagSet.Int("count", exporters.DEFAULT_DEMO_ZONE_COUNT, "number of demo zones to add")

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

	if len(flagSet.Args()) > 0 || *countFlag <= 0 {
		usage(flagSet, os.Stderr)
		os.Exit(1)
	}

	logConfig := logging.Config{Debug: *debugFlag}
	logger, err := logConfig.CreateLogger(false, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}

	before, after, err := importer.AppendFeaturesToFile(
		context.Background(),
		logger,
		*fileFlag,
		exporters.NewDemoExporter(*countFlag),
	)
	if err != nil {
		logger.Fatal(err)
	}

	fmt.Fprintf(os.Stdout, "Added %d demo zone(s) to '%s' (%d -> %d features).\n", after-before, *fileFlag, before, after)
}
