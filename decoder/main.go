package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlx "github.com/jmoiron/sqlx"
	"github.com/next-exp/citiroc_decoder/internal/logging"
	decoder "github.com/next-exp/citiroc_decoder/pkg"
)

var configuration decoder.Configuration

var (
	logger         logging.Logger
	VerbosityLevel int
)

func init() {
	logger = logging.New()
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -config <file> [extra input files...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	var err error
	configuration, err = LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	decoder.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}

	opts, err := configuration.StreamOptions()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	inputs := inputFiles(configuration.FileIn, flag.Args())
	if len(inputs) == 0 {
		logger.Error("No input files")
		os.Exit(1)
	}

	jobs, err := prepareJobs(inputs, configuration.FileOut, opts)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	start := time.Now()
	results := startWorkers(min(configuration.NumWorkers, len(jobs)), opts, jobs)
	failed := processWorkerResults(results, configuration.WriteData, configuration.CompressionLevel)

	if VerbosityLevel > 0 {
		duration := time.Since(start)
		message := fmt.Sprintf("Total time: %d ms", duration.Milliseconds())
		logger.Info(message, "main")
	}
	if failed > 0 {
		logger.Error(fmt.Sprintf("%d of %d files failed", failed, len(jobs)))
		os.Exit(1)
	}
}

func inputFiles(fileIn string, extra []string) []string {
	inputs := make([]string, 0, len(extra)+1)
	if fileIn != "" {
		inputs = append(inputs, fileIn)
	}
	return append(inputs, extra...)
}

// outputFilename derives one output per input when several inputs are given:
// out.h5 and run_12.bin become out_run_12.h5.
func outputFilename(fileOut string, fileIn string, nFiles int) string {
	if nFiles == 1 {
		return fileOut
	}
	ext := filepath.Ext(fileOut)
	if ext == "" {
		ext = ".h5"
	}
	base := strings.TrimSuffix(fileOut, filepath.Ext(fileOut))
	inName := strings.TrimSuffix(filepath.Base(fileIn), filepath.Ext(fileIn))
	return fmt.Sprintf("%s_%s%s", base, inName, ext)
}

// prepareJobs loads the channel lookup for every input before any decoding
// starts. Files of the same run share one lookup.
func prepareJobs(inputs []string, fileOut string, opts decoder.Options) ([]WorkerData, error) {
	jobs := make([]WorkerData, len(inputs))

	if configuration.LookupSource == decoder.LookupFromASCII {
		lookup, err := decoder.LoadLookupFromASCII(configuration.ParamsFile)
		if err != nil {
			return nil, fmt.Errorf("Error reading parameters file: %w", err)
		}
		if VerbosityLevel > 0 {
			message := fmt.Sprintf("Channel lookup read from %s: %d channels", configuration.ParamsFile, lookup.Len())
			logger.Info(message, "main")
		}
		if VerbosityLevel > 2 {
			printLookup(lookup)
		}
		for i, filename := range inputs {
			jobs[i] = WorkerData{FileIndex: i, Filename: filename, FileOut: outputFilename(fileOut, filename, len(inputs)), Lookup: lookup}
		}
		return jobs, nil
	}

	dbConn, err := decoder.ConnectToDatabase(configuration.User, configuration.Passwd, configuration.Host, configuration.DBName)
	if err != nil {
		return nil, fmt.Errorf("Error connection to database: %w", err)
	}
	defer dbConn.Close()

	lookups := make(map[uint16]*decoder.ChannelLookup)
	for i, filename := range inputs {
		header, err := decoder.ReadFileHeader(filename, opts.HeaderByteOrder)
		if err != nil {
			return nil, err
		}
		lookup, err := lookupForRun(dbConn, lookups, header.RunNumber)
		if err != nil {
			return nil, err
		}
		jobs[i] = WorkerData{FileIndex: i, Filename: filename, FileOut: outputFilename(fileOut, filename, len(inputs)), Lookup: lookup}
	}
	return jobs, nil
}

func lookupForRun(dbConn *sqlx.DB, lookups map[uint16]*decoder.ChannelLookup, runNumber uint16) (*decoder.ChannelLookup, error) {
	if lookup, ok := lookups[runNumber]; ok {
		return lookup, nil
	}
	lookup, err := decoder.LoadLookupFromDB(dbConn, int(runNumber), VerbosityLevel)
	if err != nil {
		return nil, err
	}
	if VerbosityLevel > 2 {
		printLookup(lookup)
	}
	lookups[runNumber] = lookup
	return lookup, nil
}

func printLookup(lookup *decoder.ChannelLookup) {
	for _, entry := range lookup.Entries() {
		message := fmt.Sprintf("Board 0x%02x Channel %2d -> Module %d Sipm %2d", entry.Board, entry.Channel, entry.Module, entry.Sipm)
		logger.Info(message, "lookup")
	}
}
