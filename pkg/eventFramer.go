package decoder

import (
	"fmt"
	"io"
	"math/bits"
)

const (
	sizeFieldBytes           = 2
	TimingEnvelopeSize       = 13 // size(2) board(1) timestamp(8) nhits(2)
	SpectroscopyEnvelopeSize = 29 // size(2) board(1) timestamp(8) trgid(8) mask(8) flags(2)
)

// EventEnvelope is the outer part of one event. DeclaredSize counts the
// whole event including the size word itself.
type EventEnvelope struct {
	Mode             AcquisitionMode
	Offset           int64
	DeclaredSize     uint16
	BoardID          uint8
	TriggerTimestamp uint64

	// timing mode
	NumHits uint16

	// spectroscopy mode
	TriggerID   uint64
	ChannelMask uint64
	Flags       uint16
}

func envelopeSize(mode AcquisitionMode) int {
	if mode == SpectroscopyMode {
		return SpectroscopyEnvelopeSize
	}
	return TimingEnvelopeSize
}

func (e *EventEnvelope) EnvelopeSize() int {
	return envelopeSize(e.Mode)
}

// HitCount is the number of hit records that follow the envelope.
func (e *EventEnvelope) HitCount() int {
	if e.Mode == SpectroscopyMode {
		return bits.OnesCount64(e.ChannelMask)
	}
	return int(e.NumHits)
}

// HitBudget is the number of bytes left for the hit records.
func (e *EventEnvelope) HitBudget() int {
	return int(e.DeclaredSize) - e.EnvelopeSize()
}

// End is the stream position of the next envelope.
func (e *EventEnvelope) End() int64 {
	return e.Offset + int64(e.DeclaredSize)
}

// CheckHitBytes returns a CorruptEventError unless the hit records used
// exactly the bytes left by the declared size.
func (e *EventEnvelope) CheckHitBytes(consumed int) error {
	if consumed == e.HitBudget() {
		return nil
	}
	return &CorruptEventError{
		Offset: e.Offset,
		Reason: fmt.Sprintf("%d hits use %d bytes, declared size %d leaves %d", e.HitCount(), consumed, e.DeclaredSize, e.HitBudget()),
	}
}

// Framed reports whether the declared size can point past the size word, so
// that End is a usable resync position.
func (e *EventEnvelope) Framed() bool {
	return e.DeclaredSize >= sizeFieldBytes
}

// MaskedChannels lists the channels set in the spectroscopy channel mask.
func (e *EventEnvelope) MaskedChannels() []uint8 {
	channels := make([]uint8, 0, bits.OnesCount64(e.ChannelMask))
	for i := 0; i < 64; i++ {
		if e.ChannelMask&(1<<uint(i)) != 0 {
			channels = append(channels, uint8(i))
		}
	}
	return channels
}

func (e *EventEnvelope) HasChannel(channel uint8) bool {
	return channel < 64 && e.ChannelMask&(1<<uint(channel)) != 0
}

// ReadEnvelope reads the envelope of the next event. It returns io.EOF when
// the source ends exactly on an event boundary and a nil envelope when the
// end of stream marker (size 0) is found.
func ReadEnvelope(c *ByteCursor, mode AcquisitionMode) (*EventEnvelope, error) {
	if c.AtEnd() {
		return nil, io.EOF
	}
	env := &EventEnvelope{Mode: mode, Offset: c.Tell()}

	var err error
	if env.DeclaredSize, err = c.ReadUint16("event size"); err != nil {
		return nil, err
	}
	if env.DeclaredSize == 0 {
		return nil, nil
	}
	if env.BoardID, err = c.ReadUint8("board id"); err != nil {
		return nil, err
	}
	if env.TriggerTimestamp, err = c.ReadUint64("trigger timestamp"); err != nil {
		return nil, err
	}

	switch mode {
	case TimingMode:
		if env.NumHits, err = c.ReadUint16("hit count"); err != nil {
			return nil, err
		}
	case SpectroscopyMode:
		if env.TriggerID, err = c.ReadUint64("trigger id"); err != nil {
			return nil, err
		}
		if env.ChannelMask, err = c.ReadUint64("channel mask"); err != nil {
			return nil, err
		}
		if env.Flags, err = c.ReadUint16("event flags"); err != nil {
			return nil, err
		}
	default:
		return nil, &UnsupportedModeError{Mode: uint8(mode)}
	}

	if env.HitBudget() < 0 {
		return env, &CorruptEventError{
			Offset: env.Offset,
			Reason: fmt.Sprintf("declared size %d smaller than the %v envelope (%d bytes)", env.DeclaredSize, mode, env.EnvelopeSize()),
		}
	}
	return env, nil
}

// SkipEventBody moves the cursor over the rest of an event whose size word
// has just been read.
func SkipEventBody(c *ByteCursor, declaredSize uint16) error {
	if declaredSize < sizeFieldBytes {
		return &CorruptEventError{
			Offset: c.Tell() - sizeFieldBytes,
			Reason: fmt.Sprintf("declared size %d cannot hold the size field", declaredSize),
		}
	}
	return c.Skip(int64(declaredSize) - sizeFieldBytes)
}
