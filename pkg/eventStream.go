package decoder

import (
	"errors"
	"fmt"
	"io"
	"os"
)

type StreamState int

const (
	Unopened StreamState = iota
	HeaderRead
	Reading
	Exhausted
)

func (s StreamState) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case HeaderRead:
		return "header read"
	case Reading:
		return "reading"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

type Options struct {
	// Byte order of the firmware version and release id header fields
	HeaderByteOrder Endianness
	// Drop hits whose channel is not in the lookup table instead of failing the event
	SkipUnmapped bool
	// Require spectroscopy hits to belong to the event channel mask
	CheckChannelMask bool
	// Require the hits to fill the declared event size exactly. Without it
	// events are decoded by hit count and a mismatch is only logged.
	CheckDeclaredSize bool
	// Treat a source that ends without the size 0 marker as truncated
	StrictTermination bool
	Verbosity         int
}

func DefaultOptions() Options {
	return Options{
		HeaderByteOrder: BigEndian,
		SkipUnmapped:    true,
	}
}

// EventStream decodes a Citiroc binary file event by event. A stream has a
// single owner: NextEvent, CountEvents and SeekToEvent all move the same
// cursor and must not be called concurrently.
type EventStream struct {
	lookup  *ChannelLookup
	options Options

	file      io.Closer
	cursor    *ByteCursor
	header    FileHeader
	hits      HitDecoder
	dataStart int64
	state     StreamState
	nextIndex int64
	// set when the cursor cannot be moved past a failed event; returned by
	// every later NextEvent
	failure error
}

func NewEventStream(lookup *ChannelLookup, opts Options) *EventStream {
	return &EventStream{lookup: lookup, options: opts}
}

func (s *EventStream) Open(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		errMessage := &SourceUnavailableError{Filename: filename, Err: err}
		logger.Error(errMessage.Error())
		return errMessage
	}
	if s.options.Verbosity > 0 {
		message := fmt.Sprintf("Citiroc bin file open: %s", filename)
		logger.Info(message, "eventStream")
	}
	if err := s.OpenReader(file); err != nil {
		file.Close()
		return err
	}
	s.file = file
	return nil
}

// OpenReader reads the file header from source. The stream does not close
// source unless it was opened with Open.
func (s *EventStream) OpenReader(source io.ReadSeeker) error {
	if s.state != Unopened {
		return fmt.Errorf("stream already open (%v)", s.state)
	}
	if s.lookup == nil {
		return errors.New("event stream needs a channel lookup table")
	}

	cursor := NewByteCursor(source)
	header, err := DecodeFileHeader(cursor, s.options.HeaderByteOrder)
	if err != nil {
		return fmt.Errorf("error reading file header: %w", err)
	}
	if s.options.Verbosity > 0 {
		logFileHeader(header)
	}

	hits, err := NewHitDecoder(header.AcquisitionMode)
	if err != nil {
		logger.Error(err.Error())
		return err
	}

	s.cursor = cursor
	s.header = header
	s.hits = hits
	s.dataStart = cursor.Tell()
	s.state = HeaderRead
	s.nextIndex = 0
	s.failure = nil

	if s.options.Verbosity > 1 {
		if n, err := s.CountEvents(); err == nil {
			message := fmt.Sprintf("Number of events in file: %d", n)
			logger.Info(message, "eventStream")
		}
	}
	return nil
}

func (s *EventStream) Close() error {
	var err error
	if s.file != nil {
		err = s.file.Close()
		s.file = nil
	}
	s.cursor = nil
	s.state = Unopened
	s.failure = nil
	return err
}

func (s *EventStream) Header() FileHeader {
	return s.header
}

func (s *EventStream) Mode() AcquisitionMode {
	return s.header.AcquisitionMode
}

func (s *EventStream) State() StreamState {
	return s.state
}

// NextEvent decodes the next event. It returns nil and no error once the
// stream is exhausted. After a failure that is not a truncation the failed
// event keeps its index and the caller may keep reading. With
// CheckDeclaredSize the cursor moves to the end the event declares; otherwise
// it stays after the last hit record. An event whose declared size cannot hold
// the size word has no usable end, so reading resumes right after its
// envelope. CountEvents and SeekToEvent walk declared sizes and report such an
// event as corrupt.
func (s *EventStream) NextEvent() (*DecodedEvent, error) {
	switch s.state {
	case Unopened:
		return nil, ErrNotOpen
	case Exhausted:
		return nil, nil
	case HeaderRead:
		s.state = Reading
	}
	if s.failure != nil {
		return nil, s.failure
	}

	env, err := ReadEnvelope(s.cursor, s.hits.Mode())
	if err == io.EOF {
		if s.options.StrictTermination {
			return nil, &TruncatedReadError{Field: "event size", Offset: s.cursor.Tell(), Want: sizeFieldBytes}
		}
		s.state = Exhausted
		return nil, nil
	}
	if err != nil && env == nil {
		return nil, err
	}
	if err != nil {
		if !env.Framed() {
			s.nextIndex++
			return nil, err
		}
		if s.options.CheckDeclaredSize {
			s.resync(env)
			return nil, err
		}
		if s.options.Verbosity > 1 {
			logger.Info(fmt.Sprintf("Event %d: %v, decoding by hit count", s.nextIndex, err), "eventStream")
		}
	}
	if env == nil {
		if s.options.Verbosity > 1 {
			logger.Info("End of stream marker found", "eventStream")
		}
		s.state = Exhausted
		return nil, nil
	}

	if s.options.Verbosity > 1 {
		message := fmt.Sprintf("Event %d: Size 0x%04x  Board %3d  trgTS 0x%016x  trgID 0x%016x  ChMask 0x%016x  Nhits %4d  flags 0x%04x",
			s.nextIndex, env.DeclaredSize, env.BoardID, env.TriggerTimestamp, env.TriggerID, env.ChannelMask, env.HitCount(), env.Flags)
		logger.Info(message, "eventStream")
	}

	event, err := s.decodeHits(env)
	if err != nil {
		if !errors.Is(err, ErrTruncatedRead) {
			s.resync(env)
		}
		return nil, err
	}
	s.nextIndex++
	return event, nil
}

// decodeHits reads every hit record of the event even when one of them is
// rejected, so that without the declared size check the cursor still ends
// after the last hit. The first rejection is returned.
func (s *EventStream) decodeHits(env *EventEnvelope) (*DecodedEvent, error) {
	nHits := env.HitCount()
	event := &DecodedEvent{
		Index:            s.nextIndex,
		Mode:             env.Mode,
		RunNumber:        s.header.RunNumber,
		DeclaredSize:     env.DeclaredSize,
		BoardID:          env.BoardID,
		TriggerTimestamp: env.TriggerTimestamp,
		TriggerID:        env.TriggerID,
		ChannelMask:      env.ChannelMask,
		Flags:            env.Flags,
		Hits:             make([]DecodedHit, 0, nHits),
	}

	var rejected error
	budget := env.HitBudget()
	consumed := 0
	for i := 0; i < nHits; i++ {
		raw, n, err := s.hits.Decode(s.cursor)
		if err != nil {
			return nil, fmt.Errorf("event %d hit %d: %w", s.nextIndex, i, err)
		}
		consumed += n
		if s.options.CheckDeclaredSize && consumed > budget {
			return nil, &CorruptEventError{
				Offset: env.Offset,
				Reason: fmt.Sprintf("hit %d of %d overruns the declared size %d", i, nHits, env.DeclaredSize),
			}
		}
		if s.options.Verbosity > 2 {
			logger.Info(formatHit(i, env.Mode, raw), "eventStream")
		}
		if rejected != nil {
			continue
		}
		if s.options.CheckChannelMask && env.Mode == SpectroscopyMode && !env.HasChannel(raw.Channel) {
			rejected = &CorruptEventError{
				Offset: env.Offset,
				Reason: fmt.Sprintf("channel %d not set in mask 0x%016x", raw.Channel, env.ChannelMask),
			}
			continue
		}

		address, err := s.lookup.Resolve(env.BoardID, raw.Channel)
		if err != nil {
			if !s.options.SkipUnmapped {
				rejected = fmt.Errorf("event %d hit %d: %w", s.nextIndex, i, err)
				continue
			}
			errMessage := fmt.Sprintf("event %d: skipping hit: %v", s.nextIndex, err)
			logger.Error(errMessage)
			event.UnmappedHits++
			continue
		}

		event.Hits = append(event.Hits, DecodedHit{
			EventIndex:          s.nextIndex,
			TriggerTimestamp:    env.TriggerTimestamp,
			Address:             address,
			BoardID:             env.BoardID,
			Channel:             raw.Channel,
			Flags:               raw.Flags,
			TimeOfArrival:       raw.TimeOfArrival,
			TimeOverThreshold:   raw.TimeOverThreshold,
			LowGainPulseHeight:  raw.LowGainPulseHeight,
			HighGainPulseHeight: raw.HighGainPulseHeight,
		})
	}

	if err := env.CheckHitBytes(consumed); err != nil {
		if s.options.CheckDeclaredSize {
			return nil, err
		}
		if s.options.Verbosity > 1 {
			logger.Info(fmt.Sprintf("Event %d: %v", s.nextIndex, err), "eventStream")
		}
	}
	if rejected != nil {
		return nil, rejected
	}
	return event, nil
}

// resync skips the rest of a failed event. With the declared size check the
// cursor moves to the event boundary the skip scan would use; otherwise it
// stays after the last hit record read. The failed event keeps its index.
func (s *EventStream) resync(env *EventEnvelope) {
	s.nextIndex++
	if !s.options.CheckDeclaredSize {
		return
	}
	if err := s.cursor.Seek(env.End()); err != nil {
		s.failure = fmt.Errorf("error skipping corrupt event: %w", err)
		logger.Error(s.failure.Error())
	}
}

// scanEvents walks the event sizes from the first event, stopping after
// limit events (no limit if negative), at the size 0 marker or at the end of
// the source. It returns the number of events passed over.
func (s *EventStream) scanEvents(limit int64) (int64, error) {
	if err := s.cursor.Seek(s.dataStart); err != nil {
		return 0, err
	}
	var nEvents int64
	for limit < 0 || nEvents < limit {
		if s.cursor.AtEnd() {
			break
		}
		size, err := s.cursor.ReadUint16("event size")
		if err != nil {
			if errors.Is(err, ErrTruncatedRead) {
				break
			}
			return nEvents, err
		}
		if size == 0 {
			break
		}
		if err := SkipEventBody(s.cursor, size); err != nil {
			return nEvents, err
		}
		nEvents++
	}
	return nEvents, nil
}

// CountEvents counts the events in the stream by skipping over them. The
// read position is restored afterwards.
func (s *EventStream) CountEvents() (int64, error) {
	if s.state == Unopened {
		return 0, ErrNotOpen
	}
	current := s.cursor.Tell()
	nEvents, scanErr := s.scanEvents(-1)
	if err := s.cursor.Seek(current); err != nil {
		return nEvents, err
	}
	if scanErr != nil {
		return nEvents, fmt.Errorf("error counting events: %w", scanErr)
	}
	return nEvents, nil
}

// SeekToEvent positions the stream so that the next call to NextEvent
// returns event n (0 based). If the stream holds n events or fewer the
// position is left unchanged and ErrEventOutOfRange is returned.
func (s *EventStream) SeekToEvent(n int64) error {
	if s.state == Unopened {
		return ErrNotOpen
	}
	if n < 0 {
		return fmt.Errorf("%w: negative event number %d", ErrEventOutOfRange, n)
	}
	current := s.cursor.Tell()
	skipped, err := s.scanEvents(n)
	if err == nil && skipped == n {
		var found bool
		if found, err = s.atEventStart(); err == nil && found {
			s.nextIndex = n
			s.state = Reading
			s.failure = nil
			return nil
		}
	}
	if seekErr := s.cursor.Seek(current); seekErr != nil {
		return seekErr
	}
	if err != nil {
		return fmt.Errorf("error seeking to event %d: %w", n, err)
	}
	return fmt.Errorf("%w: event %d requested, stream has %d", ErrEventOutOfRange, n, skipped)
}

// atEventStart reports whether an event envelope (not the end marker or the
// end of the source) starts at the cursor. The cursor does not move.
func (s *EventStream) atEventStart() (bool, error) {
	position := s.cursor.Tell()
	size, readErr := s.cursor.ReadUint16("event size")
	if err := s.cursor.Seek(position); err != nil {
		return false, err
	}
	if readErr != nil {
		if errors.Is(readErr, ErrTruncatedRead) {
			return false, nil
		}
		return false, readErr
	}
	return size != 0, nil
}

// Process decodes up to maxEvents events (all if maxEvents is negative) and
// hands every hit to sink. It returns the number of events decoded.
func (s *EventStream) Process(sink HitSink, maxEvents int64) (int64, error) {
	var nEvents int64
	for maxEvents < 0 || nEvents < maxEvents {
		event, err := s.NextEvent()
		if err != nil {
			return nEvents, err
		}
		if event == nil {
			break
		}
		for _, hit := range event.Hits {
			if err := sink.Consume(hit); err != nil {
				return nEvents, fmt.Errorf("error handing over hits of event %d: %w", event.Index, err)
			}
		}
		nEvents++
	}
	return nEvents, nil
}
