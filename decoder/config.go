package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	decoder "github.com/next-exp/citiroc_decoder/pkg"
	"github.com/next-exp/citiroc_decoder/internal/logging"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

func defaultConfiguration() decoder.Configuration {
	var config decoder.Configuration
	config.MaxEvents = 1000000000
	config.Verbosity = 0
	config.Skip = 0
	config.Discard = true
	config.SkipUnmapped = true
	config.CheckChannelMask = false
	config.CheckDeclaredSize = false
	config.StrictTermination = false
	config.HeaderByteOrder = "big"
	config.LookupSource = decoder.LookupFromASCII
	config.ParamsFile = "sabat_pars.txt"
	config.Host = "next.ific.uv.es"
	config.User = "nextreader"
	config.Passwd = "readonly"
	config.DBName = "SABAT"
	config.NumWorkers = 1
	config.WriteData = true
	config.CompressionLevel = 4
	return config
}

// LoadConfiguration reads a JSON, YAML or TOML file, chosen by extension, on
// top of the default values.
func LoadConfiguration(filename string) (decoder.Configuration, error) {
	config := defaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	case ".toml":
		err = toml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return config, fmt.Errorf("error parsing %s: %w", filename, err)
	}
	return config, validateConfiguration(config)
}

func validateConfiguration(config decoder.Configuration) error {
	if config.LookupSource != decoder.LookupFromASCII && config.LookupSource != decoder.LookupFromDatabase {
		return fmt.Errorf("unknown lookup source %q (use %q or %q)", config.LookupSource, decoder.LookupFromASCII, decoder.LookupFromDatabase)
	}
	if config.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be at least 1, got %d", config.NumWorkers)
	}
	if config.Skip < 0 || config.MaxEvents < 0 {
		return fmt.Errorf("skip (%d) and max_events (%d) cannot be negative", config.Skip, config.MaxEvents)
	}
	if config.CompressionLevel < 0 || config.CompressionLevel > 9 {
		return fmt.Errorf("compression_level must be between 0 and 9, got %d", config.CompressionLevel)
	}
	_, err := config.StreamOptions()
	return err
}

func printConfiguration(config decoder.Configuration, logger logging.Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Discard: %t", config.Discard), "config")
	logger.Info(fmt.Sprintf("Skip unmapped: %t", config.SkipUnmapped), "config")
	logger.Info(fmt.Sprintf("Check channel mask: %t", config.CheckChannelMask), "config")
	logger.Info(fmt.Sprintf("Check declared size: %t", config.CheckDeclaredSize), "config")
	logger.Info(fmt.Sprintf("Strict termination: %t", config.StrictTermination), "config")
	logger.Info(fmt.Sprintf("Header byte order: %s", config.HeaderByteOrder), "config")
	logger.Info(fmt.Sprintf("Lookup source: %s", config.LookupSource), "config")
	logger.Info(fmt.Sprintf("Params file: %s", config.ParamsFile), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
}
