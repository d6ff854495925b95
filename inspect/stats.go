package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	decoder "github.com/next-exp/citiroc_decoder/pkg"
	"golang.org/x/exp/maps"
)

type ChannelStats struct {
	Hits       int
	WithToA    int
	WithToT    int
	WithLG     int
	WithHG     int
	SumToT     float64
	SumHG      float64
	MaxHG      uint16
	FirstEvent int64
}

func (s *ChannelStats) add(hit decoder.RawHit) {
	s.Hits++
	if tot, ok := hit.TimeOverThreshold.Get(); ok {
		s.WithToT++
		s.SumToT += tot
	}
	if hit.TimeOfArrival.Valid {
		s.WithToA++
	}
	if hit.LowGainPulseHeight.Valid {
		s.WithLG++
	}
	if hg, ok := hit.HighGainPulseHeight.Get(); ok {
		s.WithHG++
		s.SumHG += float64(hg)
		s.MaxHG = max(s.MaxHG, hg)
	}
}

func (s *ChannelStats) MeanToT() float64 {
	if s.WithToT == 0 {
		return 0
	}
	return s.SumToT / float64(s.WithToT)
}

func (s *ChannelStats) MeanHG() float64 {
	if s.WithHG == 0 {
		return 0
	}
	return s.SumHG / float64(s.WithHG)
}

type FileSummary struct {
	Header   decoder.FileHeader
	Events   int64
	Hits     int64
	Corrupt  int
	Channels map[decoder.ChannelKey]*ChannelStats
}

// scanFile walks every event with the low level framer, without a channel
// lookup, so that unmapped channels show up too. Events are decoded by hit
// count; with checkSize an event whose hits do not fill its declared size is
// counted as corrupt and skipped, as the decoder does with CheckDeclaredSize.
func scanFile(source io.ReadSeeker, order decoder.Endianness, checkSize bool) (*FileSummary, error) {
	c := decoder.NewByteCursor(source)
	header, err := decoder.DecodeFileHeader(c, order)
	if err != nil {
		return nil, err
	}
	hits, err := decoder.NewHitDecoder(header.AcquisitionMode)
	if err != nil {
		return nil, err
	}

	summary := &FileSummary{Header: header, Channels: make(map[decoder.ChannelKey]*ChannelStats)}
	skip := func(env *decoder.EventEnvelope) error {
		summary.Corrupt++
		return c.Seek(env.End())
	}
	for {
		env, err := decoder.ReadEnvelope(c, header.AcquisitionMode)
		if err == io.EOF || (err == nil && env == nil) {
			return summary, nil
		}
		if err != nil {
			if env == nil || !errors.Is(err, decoder.ErrCorruptEvent) {
				return summary, err
			}
			if !env.Framed() {
				// no usable end, carry on after the envelope
				summary.Corrupt++
				continue
			}
			if checkSize {
				if err := skip(env); err != nil {
					return summary, err
				}
				continue
			}
		}

		eventHits := make([]decoder.RawHit, 0, env.HitCount())
		consumed := 0
		for i := 0; i < env.HitCount() && (!checkSize || consumed <= env.HitBudget()); i++ {
			hit, n, err := hits.Decode(c)
			if err != nil {
				return summary, fmt.Errorf("event %d: %w", summary.Events, err)
			}
			consumed += n
			eventHits = append(eventHits, hit)
		}
		if checkSize && env.CheckHitBytes(consumed) != nil {
			if err := skip(env); err != nil {
				return summary, err
			}
			continue
		}

		for _, hit := range eventHits {
			key := decoder.ChannelKey{Board: env.BoardID, Channel: hit.Channel}
			stats, ok := summary.Channels[key]
			if !ok {
				stats = &ChannelStats{FirstEvent: summary.Events}
				summary.Channels[key] = stats
			}
			stats.add(hit)
		}
		summary.Hits += int64(len(eventHits))
		summary.Events++
	}
}

// sortedChannels returns the channels with hits ordered by board and channel.
func (s *FileSummary) sortedChannels() []decoder.ChannelKey {
	keys := maps.Keys(s.Channels)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Board != keys[j].Board {
			return keys[i].Board < keys[j].Board
		}
		return keys[i].Channel < keys[j].Channel
	})
	return keys
}

func (s *FileSummary) channelLines() []string {
	lines := make([]string, 0, len(s.Channels))
	for _, key := range s.sortedChannels() {
		stats := s.Channels[key]
		switch s.Header.AcquisitionMode {
		case decoder.TimingMode:
			lines = append(lines, fmt.Sprintf("Board %3d  Channel %2d  Hits %8d  ToA %8d  ToT %8d  mean ToT %9.1f ns",
				key.Board, key.Channel, stats.Hits, stats.WithToA, stats.WithToT, stats.MeanToT()))
		default:
			lines = append(lines, fmt.Sprintf("Board %3d  Channel %2d  Hits %8d  LG %8d  HG %8d  mean HG %8.1f  max HG %5d",
				key.Board, key.Channel, stats.Hits, stats.WithLG, stats.WithHG, stats.MeanHG(), stats.MaxHG))
		}
	}
	return lines
}
