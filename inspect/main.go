package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/next-exp/citiroc_decoder/internal/logging"
	decoder "github.com/next-exp/citiroc_decoder/pkg"
)

var (
	logger         logging.Logger
	VerbosityLevel int
)

func init() {
	logger = logging.New()
}

func main() {
	byteOrder := flag.String("header-byte-order", "big", "Byte order of the firmware and release header fields")
	showChannels := flag.Bool("channels", true, "Print per channel hit statistics")
	paramsFile := flag.String("params", "", "Parameters file with the [SabatLookup] section, needed for -compression")
	compression := flag.Bool("compression", false, "Measure HDF5 write time and size for every compression level")
	output := flag.String("out", "inspect_compression.h5", "Output file used by -compression")
	checkSize := flag.Bool("check-declared-size", false, "Count events whose hits do not fill the declared size as corrupt")
	verbosity := flag.Int("verbosity", 0, "Verbosity level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <file.bin>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	VerbosityLevel = *verbosity
	decoder.SetLogger(logger)

	order, err := decoder.ParseEndianness(*byteOrder)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	opts := decoder.DefaultOptions()
	opts.HeaderByteOrder = order
	opts.CheckDeclaredSize = *checkSize
	opts.Verbosity = VerbosityLevel
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	failed := false
	for _, filename := range flag.Args() {
		if err := inspectFile(filename, opts, *showChannels); err != nil {
			logger.Error(fmt.Sprintf("%s: %v", filename, err))
			failed = true
			continue
		}
		if *compression {
			if err := measureCompression(filename, *paramsFile, *output, opts); err != nil {
				logger.Error(fmt.Sprintf("%s: %v", filename, err))
				failed = true
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}

func inspectFile(filename string, opts decoder.Options, showChannels bool) error {
	file, err := os.Open(filename)
	if err != nil {
		return &decoder.SourceUnavailableError{Filename: filename, Err: err}
	}
	defer file.Close()

	summary, err := scanFile(file, opts.HeaderByteOrder, opts.CheckDeclaredSize)
	if summary != nil {
		for _, line := range summaryLines(summary) {
			logger.Info(line, filename)
		}
		if showChannels {
			for _, line := range summary.channelLines() {
				logger.Info(line, filename)
			}
		}
	}
	return err
}

func summaryLines(s *FileSummary) []string {
	h := s.Header
	return []string{
		fmt.Sprintf("Firmware 0x%04x  Release 0x%06x  Board 0x%04x  HW id 0x%08x", h.FirmwareVersion, h.ReleaseID, h.BoardID, h.HardwareID()),
		fmt.Sprintf("Run %d  AcqMode %v  Bins %d  Time unit %d  Time LSB %d ps  Run timestamp %d",
			h.RunNumber, h.AcquisitionMode, h.EnergyHistogramBins, h.TimeUnit, h.TimeLsbPs, h.RunTimestamp),
		fmt.Sprintf("Events %d  Hits %d  Corrupt events %d  Channels %d", s.Events, s.Hits, s.Corrupt, len(s.Channels)),
	}
}
