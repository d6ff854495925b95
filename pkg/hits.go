package decoder

import (
	"fmt"
	"strconv"
)

// 1 LSB of the ToA and ToT counters.
const TimeLSBNanoseconds = 0.5

const (
	flagTimeOfArrival     = 0x10
	flagTimeOverThreshold = 0x20
	flagLowGain           = 0x01
	flagHighGain          = 0x02
)

// Optional holds a value that may be missing from a hit record.
type Optional[T any] struct {
	Value T
	Valid bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

func (o Optional[T]) String() string {
	if !o.Valid {
		return "-"
	}
	return fmt.Sprint(o.Value)
}

// RawHit is one hit record as found in the stream. Timing fields are
// already converted to nanoseconds.
type RawHit struct {
	Channel uint8
	Flags   uint8

	TimeOfArrival     Optional[float64]
	TimeOverThreshold Optional[float64]

	LowGainPulseHeight  Optional[uint16]
	HighGainPulseHeight Optional[uint16]
}

// HitDecoder decodes the hit records of one acquisition mode.
type HitDecoder struct {
	mode AcquisitionMode
}

func NewHitDecoder(mode AcquisitionMode) (HitDecoder, error) {
	if !mode.Valid() {
		return HitDecoder{}, &UnsupportedModeError{Mode: uint8(mode)}
	}
	return HitDecoder{mode: mode}, nil
}

func (d HitDecoder) Mode() AcquisitionMode {
	return d.mode
}

// Decode reads one hit record and returns it with the number of bytes consumed.
func (d HitDecoder) Decode(c *ByteCursor) (RawHit, int, error) {
	switch d.mode {
	case TimingMode:
		return decodeTimingHit(c)
	case SpectroscopyMode:
		return decodeSpectroscopyHit(c)
	default:
		return RawHit{}, 0, &UnsupportedModeError{Mode: uint8(d.mode)}
	}
}

func readHitPrefix(c *ByteCursor) (RawHit, error) {
	var hit RawHit
	var err error
	if hit.Channel, err = c.ReadUint8("hit channel"); err != nil {
		return RawHit{}, err
	}
	if hit.Flags, err = c.ReadUint8("hit flags"); err != nil {
		return RawHit{}, err
	}
	return hit, nil
}

func decodeTimingHit(c *ByteCursor) (RawHit, int, error) {
	hit, err := readHitPrefix(c)
	if err != nil {
		return RawHit{}, 0, err
	}
	consumed := 2

	if hit.Flags&flagTimeOfArrival != 0 {
		toa, err := c.ReadUint32("time of arrival")
		if err != nil {
			return RawHit{}, 0, err
		}
		hit.TimeOfArrival = Some(float64(toa) * TimeLSBNanoseconds)
		consumed += 4
	}
	if hit.Flags&flagTimeOverThreshold != 0 {
		tot, err := c.ReadUint16("time over threshold")
		if err != nil {
			return RawHit{}, 0, err
		}
		hit.TimeOverThreshold = Some(float64(tot) * TimeLSBNanoseconds)
		consumed += 2
	}
	return hit, consumed, nil
}

func decodeSpectroscopyHit(c *ByteCursor) (RawHit, int, error) {
	hit, err := readHitPrefix(c)
	if err != nil {
		return RawHit{}, 0, err
	}
	consumed := 2

	if hit.Flags&flagLowGain != 0 {
		lg, err := c.ReadUint16("low gain pha")
		if err != nil {
			return RawHit{}, 0, err
		}
		hit.LowGainPulseHeight = Some(lg)
		consumed += 2
	}
	if hit.Flags&flagHighGain != 0 {
		hg, err := c.ReadUint16("high gain pha")
		if err != nil {
			return RawHit{}, 0, err
		}
		hit.HighGainPulseHeight = Some(hg)
		consumed += 2
	}
	return hit, consumed, nil
}

func formatHit(n int, mode AcquisitionMode, hit RawHit) string {
	if mode == SpectroscopyMode {
		return fmt.Sprintf("Hit %4d  Channel %3d  DataType 0x%02x  LG PHA %10s  HG PHA %10s",
			n, hit.Channel, hit.Flags, hit.LowGainPulseHeight, hit.HighGainPulseHeight)
	}
	return fmt.Sprintf("Hit %4d  Channel %3d  DataType 0x%02x  ToA %10s  ToT %10s",
		n, hit.Channel, hit.Flags, formatNs(hit.TimeOfArrival), formatNs(hit.TimeOverThreshold))
}

func formatNs(o Optional[float64]) string {
	if !o.Valid {
		return "-"
	}
	return strconv.FormatFloat(o.Value, 'f', 1, 64)
}
