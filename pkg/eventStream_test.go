package decoder

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func openStream(t *testing.T, b *streamBuilder, opts Options) *EventStream {
	t.Helper()
	s := NewEventStream(identityLookup(t), opts)
	if err := s.OpenReader(b.reader()); err != nil {
		t.Fatalf("unexpected error opening stream: %v", err)
	}
	return s
}

func mustNext(t *testing.T, s *EventStream) *DecodedEvent {
	t.Helper()
	event, err := s.NextEvent()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event == nil {
		t.Fatalf("unexpected end of stream")
	}
	return event
}

func mustEnd(t *testing.T, s *EventStream) {
	t.Helper()
	event, err := s.NextEvent()
	if err != nil || event != nil {
		t.Fatalf("expected end of stream, got %+v, %v", event, err)
	}
	if s.State() != Exhausted {
		t.Fatalf("stream in state %v after the last event", s.State())
	}
}

func TestTimingStreamSingleEvent(t *testing.T) {
	b := newStream(TimingMode).
		timingEvent(0, 0x1122334455667788, timingHit{channel: 5, flags: 0x30, toa: 200, tot: 40}).
		end()
	s := openStream(t, b, DefaultOptions())
	if s.State() != HeaderRead {
		t.Fatalf("stream in state %v after open", s.State())
	}

	event := mustNext(t, s)
	if s.State() != Reading {
		t.Fatalf("stream in state %v after first event", s.State())
	}
	if event.TriggerTimestamp != 0x1122334455667788 || event.RunNumber != 42 || len(event.Hits) != 1 {
		t.Fatalf("unexpected event %+v", event)
	}
	hit := event.Hits[0]
	if hit.Channel != 5 || hit.Address != (LogicalAddress{Module: 0, SipmIndex: 5}) {
		t.Fatalf("unexpected hit %+v", hit)
	}
	if toa, ok := hit.TimeOfArrival.Get(); !ok || toa != 100.0 {
		t.Fatalf("ToA %v, want 100ns", hit.TimeOfArrival)
	}
	if tot, ok := hit.TimeOverThreshold.Get(); !ok || tot != 20.0 {
		t.Fatalf("ToT %v, want 20ns", hit.TimeOverThreshold)
	}
	if hit.TriggerTimestamp != event.TriggerTimestamp || hit.EventIndex != 0 {
		t.Fatalf("hit not tied to its event: %+v", hit)
	}
	mustEnd(t, s)
	mustEnd(t, s)
}

func TestTimingStreamAbsentToT(t *testing.T) {
	b := newStream(TimingMode).
		timingEvent(0, 1, timingHit{channel: 5, flags: 0x10, toa: 200}).
		end()
	s := openStream(t, b, DefaultOptions())

	hit := mustNext(t, s).Hits[0]
	if hit.TimeOverThreshold.Valid {
		t.Fatalf("ToT should be absent, got %v", hit.TimeOverThreshold.Value)
	}
	if !hit.TimeOfArrival.Valid || hit.TimeOfArrival.Value != 100.0 {
		t.Fatalf("unexpected ToA %v", hit.TimeOfArrival)
	}
}

func TestSpectroscopyStreamMask(t *testing.T) {
	mask := uint64(0b101)
	b := newStream(SpectroscopyMode).
		spectroscopyEvent(0, 7, 1234, mask, maskedHits(mask, 0x03)...).
		end()
	s := openStream(t, b, Options{HeaderByteOrder: BigEndian, CheckChannelMask: true})
	if s.Mode() != SpectroscopyMode {
		t.Fatalf("unexpected mode %v", s.Mode())
	}

	event := mustNext(t, s)
	if len(event.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(event.Hits))
	}
	if event.Hits[0].Channel != 0 || event.Hits[1].Channel != 2 {
		t.Fatalf("unexpected channels %d %d", event.Hits[0].Channel, event.Hits[1].Channel)
	}
	if event.TriggerID != 1234 || event.ChannelMask != mask {
		t.Fatalf("unexpected event %+v", event)
	}
	if lg, ok := event.Hits[1].LowGainPulseHeight.Get(); !ok || lg != 102 {
		t.Fatalf("unexpected LG PHA %v", event.Hits[1].LowGainPulseHeight)
	}
	if hg, ok := event.Hits[1].HighGainPulseHeight.Get(); !ok || hg != 1002 {
		t.Fatalf("unexpected HG PHA %v", event.Hits[1].HighGainPulseHeight)
	}
	mustEnd(t, s)
}

func TestSpectroscopyMaskCheck(t *testing.T) {
	b := newStream(SpectroscopyMode).
		spectroscopyEvent(0, 7, 1, 0b11, spectroscopyHit{channel: 0, flags: 0x01}, spectroscopyHit{channel: 9, flags: 0x01}).
		spectroscopyEvent(0, 8, 2, 0b1, spectroscopyHit{channel: 0, flags: 0x02}).
		end()

	s := openStream(t, b, Options{HeaderByteOrder: BigEndian, CheckChannelMask: true})
	if _, err := s.NextEvent(); !errors.Is(err, ErrCorruptEvent) {
		t.Fatalf("expected ErrCorruptEvent, got %v", err)
	}
	event := mustNext(t, s)
	if event.TriggerID != 2 || event.Index != 1 {
		t.Fatalf("stream did not resume at the next event: %+v", event)
	}

	lenient := openStream(t, b, Options{HeaderByteOrder: BigEndian})
	if event := mustNext(t, lenient); len(event.Hits) != 2 {
		t.Fatalf("expected 2 hits without mask check, got %d", len(event.Hits))
	}
}

func TestUnsupportedModeFailsOpen(t *testing.T) {
	b := &streamBuilder{}
	b.header(testHeader(AcquisitionMode(0x04)), BigEndian).timingEvent(0, 1).end()

	s := NewEventStream(identityLookup(t), DefaultOptions())
	err := s.OpenReader(b.reader())
	if !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
	if s.State() != Unopened {
		t.Fatalf("stream in state %v after failed open", s.State())
	}
	if _, err := s.NextEvent(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestOpenTruncatedHeader(t *testing.T) {
	b := &streamBuilder{}
	b.raw(newStream(TimingMode).bytes()[:12]...)
	s := NewEventStream(identityLookup(t), DefaultOptions())
	if err := s.OpenReader(b.reader()); !errors.Is(err, ErrTruncatedRead) {
		t.Fatalf("expected ErrTruncatedRead, got %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	s := NewEventStream(identityLookup(t), DefaultOptions())
	err := s.Open(filepath.Join(t.TempDir(), "missing.bin"))
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	b := newStream(TimingMode).timingEvent(0, 1, timingHit{channel: 1, flags: 0x20, tot: 8}).end()
	filename := filepath.Join(t.TempDir(), "run.bin")
	if err := os.WriteFile(filename, b.bytes(), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := NewEventStream(identityLookup(t), DefaultOptions())
	if err := s.Open(filename); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	if s.Header().RunNumber != 42 {
		t.Fatalf("unexpected header %+v", s.Header())
	}
	if event := mustNext(t, s); event.Hits[0].TimeOverThreshold.Value != 4.0 {
		t.Fatalf("unexpected hit %+v", event.Hits[0])
	}
	mustEnd(t, s)
}

func buildTimingRun(nEvents int) *streamBuilder {
	b := newStream(TimingMode)
	for i := 0; i < nEvents; i++ {
		hits := make([]timingHit, 0, i%4)
		for h := 0; h < i%4; h++ {
			flags := []uint8{0x00, 0x10, 0x20, 0x30}[(i+h)%4]
			hits = append(hits, timingHit{channel: uint8(h), flags: flags, toa: uint32(i), tot: uint16(h)})
		}
		b.timingEvent(0, uint64(1000+i), hits...)
	}
	return b
}

func TestCountEventsRoundTrip(t *testing.T) {
	for _, terminated := range []bool{true, false} {
		b := buildTimingRun(25)
		if terminated {
			b.end()
		}
		s := openStream(t, b, DefaultOptions())

		n, err := s.CountEvents()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 25 {
			t.Fatalf("counted %d events, want 25", n)
		}
		for i := int64(0); i < n; i++ {
			event := mustNext(t, s)
			if event.Index != i || event.TriggerTimestamp != uint64(1000+i) {
				t.Fatalf("event %d: unexpected %+v", i, event)
			}
		}
		mustEnd(t, s)
	}
}

func TestCountEventsKeepsPosition(t *testing.T) {
	s := openStream(t, buildTimingRun(10).end(), DefaultOptions())

	mustNext(t, s)
	mustNext(t, s)
	for i := 0; i < 3; i++ {
		n, err := s.CountEvents()
		if err != nil || n != 10 {
			t.Fatalf("count %d, %v", n, err)
		}
	}
	if event := mustNext(t, s); event.Index != 2 || event.TriggerTimestamp != 1002 {
		t.Fatalf("count moved the stream: got event %+v", event)
	}

	for {
		event, err := s.NextEvent()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event == nil {
			break
		}
	}
	if n, err := s.CountEvents(); err != nil || n != 10 {
		t.Fatalf("count after exhaustion %d, %v", n, err)
	}
	mustEnd(t, s)
}

func TestEndMarkerStopsStream(t *testing.T) {
	b := buildTimingRun(3).end()
	b.timingEvent(0, 9999, timingHit{channel: 1, flags: 0x30}).end()
	s := openStream(t, b, DefaultOptions())

	n, err := s.CountEvents()
	if err != nil || n != 3 {
		t.Fatalf("count %d, %v", n, err)
	}
	for i := 0; i < 3; i++ {
		mustNext(t, s)
	}
	mustEnd(t, s)
}

func TestStrictTermination(t *testing.T) {
	s := openStream(t, buildTimingRun(2), Options{HeaderByteOrder: BigEndian, StrictTermination: true})
	mustNext(t, s)
	mustNext(t, s)
	if _, err := s.NextEvent(); !errors.Is(err, ErrTruncatedRead) {
		t.Fatalf("expected ErrTruncatedRead, got %v", err)
	}
}

func TestTruncatedEvent(t *testing.T) {
	full := buildTimingRun(4).bytes()
	b := &streamBuilder{}
	b.raw(full[:len(full)-3]...)
	s := openStream(t, b, DefaultOptions())

	for i := 0; i < 3; i++ {
		mustNext(t, s)
	}
	if _, err := s.NextEvent(); !errors.Is(err, ErrTruncatedRead) {
		t.Fatalf("expected ErrTruncatedRead, got %v", err)
	}
}

func TestSeekToEvent(t *testing.T) {
	s := openStream(t, buildTimingRun(10).end(), DefaultOptions())

	if err := s.SeekToEvent(7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event := mustNext(t, s); event.Index != 7 || event.TriggerTimestamp != 1007 {
		t.Fatalf("unexpected event after seek %+v", event)
	}

	if err := s.SeekToEvent(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event := mustNext(t, s); event.Index != 0 || event.TriggerTimestamp != 1000 {
		t.Fatalf("unexpected event after rewind %+v", event)
	}

	for _, n := range []int64{10, 11, -1} {
		if err := s.SeekToEvent(n); !errors.Is(err, ErrEventOutOfRange) {
			t.Fatalf("seek to %d: expected ErrEventOutOfRange, got %v", n, err)
		}
	}
	if event := mustNext(t, s); event.Index != 1 {
		t.Fatalf("failed seek moved the stream: got event %d", event.Index)
	}
}

func TestSeekAfterExhaustion(t *testing.T) {
	s := openStream(t, buildTimingRun(3).end(), DefaultOptions())
	for i := 0; i < 3; i++ {
		mustNext(t, s)
	}
	mustEnd(t, s)
	if err := s.SeekToEvent(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event := mustNext(t, s); event.TriggerTimestamp != 1001 {
		t.Fatalf("unexpected event %+v", event)
	}
}

// seekFailer fails the seek numbered failAt (1 based) counted from arming.
type seekFailer struct {
	io.ReadSeeker
	seeks  int
	failAt int
}

var errSeekFailed = errors.New("seek failed")

func (f *seekFailer) Seek(offset int64, whence int) (int64, error) {
	f.seeks++
	if f.failAt > 0 && f.seeks == f.failAt {
		return 0, errSeekFailed
	}
	return f.ReadSeeker.Seek(offset, whence)
}

func TestSeekToEventSeekFailure(t *testing.T) {
	source := &seekFailer{ReadSeeker: buildTimingRun(5).end().reader()}
	s := NewEventStream(identityLookup(t), DefaultOptions())
	if err := s.OpenReader(source); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustNext(t, s)

	// the scan rewinds once, then peeking at the target event seeks back
	source.seeks, source.failAt = 0, 2
	if err := s.SeekToEvent(3); !errors.Is(err, errSeekFailed) {
		t.Fatalf("expected the seek error, got %v", err)
	}
	if event := mustNext(t, s); event.Index != 1 || event.TriggerTimestamp != 1001 {
		t.Fatalf("failed seek moved the stream: %+v", event)
	}
}

func TestSizeMismatchResyncs(t *testing.T) {
	b := newStream(TimingMode)
	// declares 2 hits but the size only covers one
	b.timingEventSized(TimingEnvelopeSize+8, 0, 1, 2, timingHit{channel: 1, flags: 0x30})
	b.timingEvent(0, 2, timingHit{channel: 2, flags: 0x10, toa: 4})
	// declares more bytes than the hits use
	b.timingEventSized(TimingEnvelopeSize+4, 0, 3, 1, timingHit{channel: 3, flags: 0x00}, timingHit{channel: 0, flags: 0x00})
	b.timingEvent(0, 4)
	b.end()

	s := openStream(t, b, Options{HeaderByteOrder: BigEndian, SkipUnmapped: true, CheckDeclaredSize: true})
	n, err := s.CountEvents()
	if err != nil || n != 4 {
		t.Fatalf("count %d, %v", n, err)
	}

	if _, err := s.NextEvent(); !errors.Is(err, ErrCorruptEvent) {
		t.Fatalf("expected ErrCorruptEvent for overrun, got %v", err)
	}
	if event := mustNext(t, s); event.TriggerTimestamp != 2 || event.Index != 1 {
		t.Fatalf("unexpected event %+v", event)
	}
	if _, err := s.NextEvent(); !errors.Is(err, ErrCorruptEvent) {
		t.Fatalf("expected ErrCorruptEvent for underrun, got %v", err)
	}
	if event := mustNext(t, s); event.TriggerTimestamp != 4 || event.Index != 3 {
		t.Fatalf("unexpected event %+v", event)
	}
	mustEnd(t, s)
}

func TestDeclaredSizeBelowHits(t *testing.T) {
	// the size word covers the envelope only, as some firmware writes it
	b := newStream(TimingMode).
		timingEventSized(13, 0, 0x1122334455667788, 1, timingHit{channel: 5, flags: 0x30, toa: 200, tot: 40}).
		end()

	s := openStream(t, b, DefaultOptions())
	event := mustNext(t, s)
	if len(event.Hits) != 1 || event.DeclaredSize != 13 {
		t.Fatalf("unexpected event %+v", event)
	}
	if toa, ok := event.Hits[0].TimeOfArrival.Get(); !ok || toa != 100.0 {
		t.Fatalf("ToA %v, want 100ns", event.Hits[0].TimeOfArrival)
	}
	if tot, ok := event.Hits[0].TimeOverThreshold.Get(); !ok || tot != 20.0 {
		t.Fatalf("ToT %v, want 20ns", event.Hits[0].TimeOverThreshold)
	}
	mustEnd(t, s)

	checked := openStream(t, b, Options{HeaderByteOrder: BigEndian, SkipUnmapped: true, CheckDeclaredSize: true})
	if _, err := checked.NextEvent(); !errors.Is(err, ErrCorruptEvent) {
		t.Fatalf("expected ErrCorruptEvent with the size check, got %v", err)
	}
}

func TestSizeMismatchDecodedByHitCount(t *testing.T) {
	b := newStream(TimingMode)
	// declares more bytes than the hit uses
	b.timingEventSized(TimingEnvelopeSize+20, 0, 3, 1, timingHit{channel: 3, flags: 0x10, toa: 6})
	b.timingEvent(0, 4, timingHit{channel: 4, flags: 0x00})
	b.end()

	s := openStream(t, b, DefaultOptions())
	event := mustNext(t, s)
	if event.TriggerTimestamp != 3 || len(event.Hits) != 1 || event.Hits[0].Channel != 3 {
		t.Fatalf("unexpected event %+v", event)
	}
	event = mustNext(t, s)
	if event.TriggerTimestamp != 4 || event.Index != 1 || len(event.Hits) != 1 {
		t.Fatalf("unexpected event %+v", event)
	}
	mustEnd(t, s)
}

func TestSizeBelowSizeField(t *testing.T) {
	b := newStream(TimingMode)
	b.timingEventSized(1, 0, 1, 0)
	b.timingEvent(0, 2, timingHit{channel: 2, flags: 0x10, toa: 4})
	b.end()

	for _, opts := range []Options{
		DefaultOptions(),
		{HeaderByteOrder: BigEndian, SkipUnmapped: true, CheckDeclaredSize: true},
	} {
		s := openStream(t, b, opts)
		if _, err := s.CountEvents(); !errors.Is(err, ErrCorruptEvent) {
			t.Fatalf("expected ErrCorruptEvent counting events, got %v", err)
		}
		if _, err := s.NextEvent(); !errors.Is(err, ErrCorruptEvent) {
			t.Fatalf("expected ErrCorruptEvent, got %v", err)
		}
		event := mustNext(t, s)
		if event.TriggerTimestamp != 2 || event.Index != 1 {
			t.Fatalf("stream did not resume after the envelope: %+v", event)
		}
		mustEnd(t, s)
		if err := s.SeekToEvent(1); !errors.Is(err, ErrCorruptEvent) {
			t.Fatalf("expected ErrCorruptEvent seeking past the event, got %v", err)
		}
	}
}

func TestUnmappedChannel(t *testing.T) {
	lookup, err := NewChannelLookup([]ChannelMappingEntry{{Board: 0, Channel: 1, Module: 3, Sipm: 4}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := newStream(TimingMode).
		timingEvent(0, 1, timingHit{channel: 1, flags: 0x10, toa: 2}, timingHit{channel: 2, flags: 0x10, toa: 2}).
		timingEvent(0, 2, timingHit{channel: 1, flags: 0x00}).
		end()

	skipping := NewEventStream(lookup, Options{HeaderByteOrder: BigEndian, SkipUnmapped: true})
	if err := skipping.OpenReader(b.reader()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	event := mustNext(t, skipping)
	if len(event.Hits) != 1 || event.UnmappedHits != 1 {
		t.Fatalf("expected 1 hit and 1 unmapped, got %d and %d", len(event.Hits), event.UnmappedHits)
	}
	if event.Hits[0].Address != (LogicalAddress{Module: 3, SipmIndex: 4}) {
		t.Fatalf("unexpected address %+v", event.Hits[0].Address)
	}

	strict := NewEventStream(lookup, Options{HeaderByteOrder: BigEndian})
	if err := strict.OpenReader(b.reader()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = strict.NextEvent()
	var unmapped *UnmappedChannelError
	if !errors.As(err, &unmapped) || unmapped.Channel != 2 {
		t.Fatalf("expected UnmappedChannelError for channel 2, got %v", err)
	}
	if event := mustNext(t, strict); event.TriggerTimestamp != 2 {
		t.Fatalf("stream did not resume after unmapped channel: %+v", event)
	}
}

func TestProcessHandsHitsToSink(t *testing.T) {
	s := openStream(t, buildTimingRun(8).end(), DefaultOptions())

	var hits []DecodedHit
	sink := HitSinkFunc(func(hit DecodedHit) error {
		hits = append(hits, hit)
		return nil
	})
	n, err := s.Process(sink, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// events carry i%4 hits
	if n != 8 || len(hits) != 0+1+2+3+0+1+2+3 {
		t.Fatalf("processed %d events and %d hits", n, len(hits))
	}

	if err := s.SeekToEvent(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failing := HitSinkFunc(func(DecodedHit) error { return errors.New("disk full") })
	if _, err := s.Process(failing, -1); err == nil {
		t.Fatalf("expected sink error to be returned")
	}

	if err := s.SeekToEvent(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := s.Process(HitSinkFunc(func(DecodedHit) error { return nil }), 3); n != 3 {
		t.Fatalf("processed %d events with a limit of 3", n)
	}
}

func TestStreamNeedsLookup(t *testing.T) {
	s := NewEventStream(nil, DefaultOptions())
	if err := s.OpenReader(newStream(TimingMode).end().reader()); err == nil {
		t.Fatalf("expected error without lookup table")
	}
	if _, err := s.CountEvents(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}
