package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	decoder "github.com/next-exp/citiroc_decoder/pkg"
	"github.com/next-exp/citiroc_decoder/pkg/writer"
)

// measureCompression decodes filename once and writes it with every deflate
// level, reporting the write time and the resulting file size.
func measureCompression(filename string, paramsFile string, output string, opts decoder.Options) error {
	if paramsFile == "" {
		return errors.New("-compression needs a parameters file (-params)")
	}
	lookup, err := decoder.LoadLookupFromASCII(paramsFile)
	if err != nil {
		return err
	}

	header, events, err := decodeAll(filename, lookup, opts)
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Total events decoded: %d", len(events)), "compression")

	for compressionLevel := 0; compressionLevel < 10; compressionLevel++ {
		start := time.Now()
		if err := writeEvents(output, header, events, compressionLevel); err != nil {
			return err
		}
		duration := time.Since(start)
		fileInfo, err := os.Stat(output)
		if err != nil {
			logger.Error(fmt.Sprintf("Error getting file info: %v", err))
			continue
		}
		message := fmt.Sprintf("(hdf5, comp %d) Time: %d ms, size %d bytes", compressionLevel, duration.Milliseconds(), fileInfo.Size())
		logger.Info(message, "compression")
	}
	return nil
}

func decodeAll(filename string, lookup *decoder.ChannelLookup, opts decoder.Options) (decoder.FileHeader, []*decoder.DecodedEvent, error) {
	stream := decoder.NewEventStream(lookup, opts)
	if err := stream.Open(filename); err != nil {
		return decoder.FileHeader{}, nil, err
	}
	defer stream.Close()

	events := make([]*decoder.DecodedEvent, 0)
	for {
		event, err := stream.NextEvent()
		if err != nil {
			if errors.Is(err, decoder.ErrTruncatedRead) {
				return stream.Header(), events, err
			}
			logger.Error(fmt.Sprintf("discarding event: %v", err))
			continue
		}
		if event == nil {
			return stream.Header(), events, nil
		}
		events = append(events, event)
	}
}

func writeEvents(output string, header decoder.FileHeader, events []*decoder.DecodedEvent, compressionLevel int) error {
	w, err := writer.NewWriter(output, header.AcquisitionMode, compressionLevel)
	if err != nil {
		return err
	}
	errs := []error{w.WriteRunInfo(header)}
	for _, event := range events {
		if err := w.WriteEvent(event); err != nil {
			errs = append(errs, err)
			break
		}
	}
	errs = append(errs, w.Close())
	return errors.Join(errs...)
}
