package main

import (
	"errors"
	"fmt"
	"io"

	decoder "github.com/next-exp/citiroc_decoder/pkg"
)

// FileReader walks the events of one input file honouring skip, max_events
// and discard.
type FileReader struct {
	Filename  string
	Stream    *decoder.EventStream
	EvtCount  int
	Discarded int
	maxEvents int
	discard   bool
}

func NewFileReader(filename string, lookup *decoder.ChannelLookup, opts decoder.Options, config decoder.Configuration) (*FileReader, error) {
	stream := decoder.NewEventStream(lookup, opts)
	if err := stream.Open(filename); err != nil {
		return nil, err
	}
	reader := &FileReader{
		Filename:  filename,
		Stream:    stream,
		EvtCount:  0,
		maxEvents: config.MaxEvents,
		discard:   config.Discard,
	}

	if config.Skip > 0 {
		if err := stream.SeekToEvent(int64(config.Skip)); err != nil {
			stream.Close()
			return nil, fmt.Errorf("error skipping %d events in %s: %w", config.Skip, filename, err)
		}
		if VerbosityLevel > 0 {
			message := fmt.Sprintf("Skipped %d events in %s", config.Skip, filename)
			logger.Info(message, "fileReader")
		}
	}
	return reader, nil
}

// getNextEvent returns io.EOF once max_events events have been read or the
// stream is exhausted.
func (f *FileReader) getNextEvent() (*decoder.DecodedEvent, error) {
	for {
		if f.EvtCount >= f.maxEvents {
			if VerbosityLevel > 0 {
				logger.Info("Max events reached", "fileReader")
			}
			return nil, io.EOF
		}
		event, err := f.Stream.NextEvent()
		if err != nil {
			// Truncation leaves no event boundary to resume from
			if f.discard && !errors.Is(err, decoder.ErrTruncatedRead) {
				f.Discarded++
				message := fmt.Sprintf("%s: discarding event: %v", f.Filename, err)
				logger.Error(message)
				continue
			}
			return nil, err
		}
		if event == nil {
			return nil, io.EOF
		}
		f.EvtCount++
		if VerbosityLevel > 1 {
			message := fmt.Sprintf("Reading event %d with %d hits", event.Index, len(event.Hits))
			logger.Info(message, "fileReader")
		}
		return event, nil
	}
}

func (f *FileReader) Close() error {
	return f.Stream.Close()
}
