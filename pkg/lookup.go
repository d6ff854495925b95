package decoder

import (
	"fmt"
	"sort"
)

// LogicalAddress identifies one physical SiPM.
type LogicalAddress struct {
	Module    uint8
	SipmIndex uint8
}

type ChannelKey struct {
	Board   uint8
	Channel uint8
}

type ChannelMappingEntry struct {
	Board   int `db:"Board"`
	Channel int `db:"Channel"`
	Module  int `db:"Module"`
	Sipm    int `db:"Sipm"`
}

// ChannelLookup maps electronic channels to logical addresses. It is never
// modified after construction, so a single table can be shared by several
// streams decoded in parallel.
type ChannelLookup struct {
	toAddress map[ChannelKey]LogicalAddress
	toChannel map[LogicalAddress]ChannelKey
}

func NewChannelLookup(entries []ChannelMappingEntry) (*ChannelLookup, error) {
	lookup := &ChannelLookup{
		toAddress: make(map[ChannelKey]LogicalAddress, len(entries)),
		toChannel: make(map[LogicalAddress]ChannelKey, len(entries)),
	}
	for _, entry := range entries {
		key, address, err := entry.convert()
		if err != nil {
			return nil, err
		}
		if previous, ok := lookup.toAddress[key]; ok {
			return nil, fmt.Errorf("%w: board %d channel %d mapped to %v and %v",
				ErrDuplicateMapping, key.Board, key.Channel, previous, address)
		}
		if previous, ok := lookup.toChannel[address]; ok {
			return nil, fmt.Errorf("%w: module %d sipm %d used by board %d channel %d and board %d channel %d",
				ErrDuplicateMapping, address.Module, address.SipmIndex,
				previous.Board, previous.Channel, key.Board, key.Channel)
		}
		lookup.toAddress[key] = address
		lookup.toChannel[address] = key
	}
	return lookup, nil
}

func (e ChannelMappingEntry) convert() (ChannelKey, LogicalAddress, error) {
	for _, v := range [...]struct {
		name  string
		value int
	}{
		{"board", e.Board}, {"channel", e.Channel}, {"module", e.Module}, {"sipm", e.Sipm},
	} {
		if v.value < 0 || v.value > 0xff {
			return ChannelKey{}, LogicalAddress{}, fmt.Errorf("%s %d out of range in channel mapping", v.name, v.value)
		}
	}
	key := ChannelKey{Board: uint8(e.Board), Channel: uint8(e.Channel)}
	address := LogicalAddress{Module: uint8(e.Module), SipmIndex: uint8(e.Sipm)}
	return key, address, nil
}

func (l *ChannelLookup) Resolve(board uint8, channel uint8) (LogicalAddress, error) {
	address, ok := l.toAddress[ChannelKey{Board: board, Channel: channel}]
	if !ok {
		return LogicalAddress{}, &UnmappedChannelError{Board: board, Channel: channel}
	}
	return address, nil
}

func (l *ChannelLookup) Len() int {
	return len(l.toAddress)
}

// Entries returns the mapping sorted by board and channel.
func (l *ChannelLookup) Entries() []ChannelMappingEntry {
	entries := make([]ChannelMappingEntry, 0, len(l.toAddress))
	for key, address := range l.toAddress {
		entries = append(entries, ChannelMappingEntry{
			Board:   int(key.Board),
			Channel: int(key.Channel),
			Module:  int(address.Module),
			Sipm:    int(address.SipmIndex),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Board != entries[j].Board {
			return entries[i].Board < entries[j].Board
		}
		return entries[i].Channel < entries[j].Channel
	})
	return entries
}
