package decoder

import (
	"bytes"
	"encoding/binary"
	"math/bits"
)

type timingHit struct {
	channel uint8
	flags   uint8
	toa     uint32
	tot     uint16
}

func (h timingHit) size() int {
	n := 2
	if h.flags&flagTimeOfArrival != 0 {
		n += 4
	}
	if h.flags&flagTimeOverThreshold != 0 {
		n += 2
	}
	return n
}

type spectroscopyHit struct {
	channel uint8
	flags   uint8
	lg      uint16
	hg      uint16
}

func (h spectroscopyHit) size() int {
	n := 2
	if h.flags&flagLowGain != 0 {
		n += 2
	}
	if h.flags&flagHighGain != 0 {
		n += 2
	}
	return n
}

// streamBuilder writes synthetic Citiroc files.
type streamBuilder struct {
	buf bytes.Buffer
}

func testHeader(mode AcquisitionMode) FileHeader {
	return FileHeader{
		FirmwareVersion:     0x0102,
		ReleaseID:           0x030405,
		BoardID:             0x1452,
		RunNumber:           42,
		AcquisitionMode:     mode,
		EnergyHistogramBins: 4096,
		TimeUnit:            1,
		TimeLsbPs:           500,
		RunTimestamp:        0x0102030405060708,
	}
}

func newStream(mode AcquisitionMode) *streamBuilder {
	b := &streamBuilder{}
	b.header(testHeader(mode), BigEndian)
	return b
}

func putUint(buf *bytes.Buffer, value uint64, n int, order Endianness) {
	for i := 0; i < n; i++ {
		shift := uint(8 * i)
		if order == BigEndian {
			shift = uint(8 * (n - 1 - i))
		}
		buf.WriteByte(byte(value >> shift))
	}
}

func (b *streamBuilder) header(h FileHeader, order Endianness) *streamBuilder {
	putUint(&b.buf, uint64(h.FirmwareVersion), 2, order)
	putUint(&b.buf, uint64(h.ReleaseID), 3, order)
	binary.Write(&b.buf, binary.LittleEndian, h.BoardID)
	binary.Write(&b.buf, binary.LittleEndian, h.RunNumber)
	b.buf.WriteByte(byte(h.AcquisitionMode))
	binary.Write(&b.buf, binary.LittleEndian, h.EnergyHistogramBins)
	b.buf.WriteByte(h.TimeUnit)
	binary.Write(&b.buf, binary.LittleEndian, h.TimeLsbPs)
	binary.Write(&b.buf, binary.LittleEndian, h.RunTimestamp)
	return b
}

func (b *streamBuilder) timingEvent(board uint8, timestamp uint64, hits ...timingHit) *streamBuilder {
	size := TimingEnvelopeSize
	for _, h := range hits {
		size += h.size()
	}
	return b.timingEventSized(uint16(size), board, timestamp, uint16(len(hits)), hits...)
}

// timingEventSized writes an event with an explicit declared size and hit count.
func (b *streamBuilder) timingEventSized(size uint16, board uint8, timestamp uint64, nHits uint16, hits ...timingHit) *streamBuilder {
	binary.Write(&b.buf, binary.LittleEndian, size)
	b.buf.WriteByte(board)
	binary.Write(&b.buf, binary.LittleEndian, timestamp)
	binary.Write(&b.buf, binary.LittleEndian, nHits)
	for _, h := range hits {
		b.buf.WriteByte(h.channel)
		b.buf.WriteByte(h.flags)
		if h.flags&flagTimeOfArrival != 0 {
			binary.Write(&b.buf, binary.LittleEndian, h.toa)
		}
		if h.flags&flagTimeOverThreshold != 0 {
			binary.Write(&b.buf, binary.LittleEndian, h.tot)
		}
	}
	return b
}

func (b *streamBuilder) spectroscopyEvent(board uint8, timestamp uint64, triggerID uint64, mask uint64, hits ...spectroscopyHit) *streamBuilder {
	size := SpectroscopyEnvelopeSize
	for _, h := range hits {
		size += h.size()
	}
	binary.Write(&b.buf, binary.LittleEndian, uint16(size))
	b.buf.WriteByte(board)
	binary.Write(&b.buf, binary.LittleEndian, timestamp)
	binary.Write(&b.buf, binary.LittleEndian, triggerID)
	binary.Write(&b.buf, binary.LittleEndian, mask)
	binary.Write(&b.buf, binary.LittleEndian, uint16(0x00aa))
	for _, h := range hits {
		b.buf.WriteByte(h.channel)
		b.buf.WriteByte(h.flags)
		if h.flags&flagLowGain != 0 {
			binary.Write(&b.buf, binary.LittleEndian, h.lg)
		}
		if h.flags&flagHighGain != 0 {
			binary.Write(&b.buf, binary.LittleEndian, h.hg)
		}
	}
	return b
}

// maskedHits builds one spectroscopy hit per bit set in mask.
func maskedHits(mask uint64, flags uint8) []spectroscopyHit {
	hits := make([]spectroscopyHit, 0, bits.OnesCount64(mask))
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) != 0 {
			hits = append(hits, spectroscopyHit{channel: uint8(i), flags: flags, lg: uint16(100 + i), hg: uint16(1000 + i)})
		}
	}
	return hits
}

func (b *streamBuilder) end() *streamBuilder {
	binary.Write(&b.buf, binary.LittleEndian, uint16(0))
	return b
}

func (b *streamBuilder) raw(data ...byte) *streamBuilder {
	b.buf.Write(data)
	return b
}

func (b *streamBuilder) reader() *bytes.Reader {
	return bytes.NewReader(b.buf.Bytes())
}

func (b *streamBuilder) bytes() []byte {
	return b.buf.Bytes()
}

// identityLookup maps board 0 channels 0-63 to module 0, sipm = channel.
func identityLookup(t interface{ Fatalf(string, ...any) }) *ChannelLookup {
	entries := make([]ChannelMappingEntry, 0, 64)
	for ch := 0; ch < 64; ch++ {
		entries = append(entries, ChannelMappingEntry{Board: 0, Channel: ch, Module: 0, Sipm: ch})
	}
	lookup, err := NewChannelLookup(entries)
	if err != nil {
		t.Fatalf("unexpected error building lookup: %v", err)
	}
	return lookup
}
