package decoder

import (
	"errors"
	"fmt"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrTruncatedRead     = errors.New("truncated read")
	ErrUnsupportedMode   = errors.New("unsupported acquisition mode")
	ErrUnmappedChannel   = errors.New("unmapped channel")
	ErrCorruptEvent      = errors.New("corrupt event")
	ErrDuplicateMapping  = errors.New("duplicate channel mapping")
	ErrEventOutOfRange   = errors.New("event out of range")
	ErrNotOpen           = errors.New("stream not open")
)

// SourceUnavailableError represents an error when opening the input file.
type SourceUnavailableError struct {
	Filename string
	Err      error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

func (e *SourceUnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// TruncatedReadError is returned when the stream ends in the middle of a field.
type TruncatedReadError struct {
	Field  string
	Offset int64
	Want   int
	Got    int
}

func (e *TruncatedReadError) Error() string {
	return fmt.Sprintf("truncated read of %s at offset %d: want %d bytes, got %d", e.Field, e.Offset, e.Want, e.Got)
}

func (e *TruncatedReadError) Is(target error) bool {
	return target == ErrTruncatedRead
}

// UnsupportedModeError carries the acquisition mode byte found in the file header.
type UnsupportedModeError struct {
	Mode uint8
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("unsupported acquisition mode 0x%02x", e.Mode)
}

func (e *UnsupportedModeError) Is(target error) bool {
	return target == ErrUnsupportedMode
}

// UnmappedChannelError represents a (board, channel) pair missing from the lookup table.
type UnmappedChannelError struct {
	Board   uint8
	Channel uint8
}

func (e *UnmappedChannelError) Error() string {
	return fmt.Sprintf("no logical address for board %d channel %d", e.Board, e.Channel)
}

func (e *UnmappedChannelError) Is(target error) bool {
	return target == ErrUnmappedChannel
}

// CorruptEventError marks an event whose content disagrees with its envelope.
type CorruptEventError struct {
	Offset int64
	Reason string
}

func (e *CorruptEventError) Error() string {
	return fmt.Sprintf("corrupt event at offset %d: %s", e.Offset, e.Reason)
}

func (e *CorruptEventError) Is(target error) bool {
	return target == ErrCorruptEvent
}
