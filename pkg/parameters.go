package decoder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const LookupContainerName = "SabatLookup"

// LoadLookupFromASCII reads the channel mapping from an ASCII parameter
// file. Only the [SabatLookup] section is used; its lines are
//
//	board(hex) channel  module sipm
//
// and '#' starts a comment.
func LoadLookupFromASCII(filename string) (*ChannelLookup, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &SourceUnavailableError{Filename: filename, Err: err}
	}
	defer file.Close()

	lookup, err := ReadLookupASCII(file)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", filename, err)
	}
	return lookup, nil
}

func ReadLookupASCII(r io.Reader) (*ChannelLookup, error) {
	scanner := bufio.NewScanner(r)
	entries := make([]ChannelMappingEntry, 0, 64)
	inSection := false
	found := false
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inSection = strings.TrimSpace(line[1:len(line)-1]) == LookupContainerName
			found = found || inSection
			continue
		}
		if !inSection {
			continue
		}

		entry, err := parseLookupLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no [%s] section found", LookupContainerName)
	}
	return NewChannelLookup(entries)
}

func parseLookupLine(line string) (ChannelMappingEntry, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return ChannelMappingEntry{}, fmt.Errorf("expected 4 fields (board channel module sipm), got %d", len(fields))
	}
	board, err := strconv.ParseInt(strings.TrimPrefix(fields[0], "0x"), 16, 32)
	if err != nil {
		return ChannelMappingEntry{}, fmt.Errorf("invalid board %q: %w", fields[0], err)
	}
	values := make([]int, 3)
	for i, field := range fields[1:] {
		v, err := strconv.Atoi(field)
		if err != nil {
			return ChannelMappingEntry{}, fmt.Errorf("invalid value %q: %w", field, err)
		}
		values[i] = v
	}
	return ChannelMappingEntry{
		Board:   int(board),
		Channel: values[0],
		Module:  values[1],
		Sipm:    values[2],
	}, nil
}
