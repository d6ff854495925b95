package decoder

type DecodedHit struct {
	EventIndex       int64
	TriggerTimestamp uint64
	Address          LogicalAddress
	BoardID          uint8
	Channel          uint8
	Flags            uint8

	TimeOfArrival     Optional[float64]
	TimeOverThreshold Optional[float64]

	LowGainPulseHeight  Optional[uint16]
	HighGainPulseHeight Optional[uint16]
}

type DecodedEvent struct {
	Index            int64
	Mode             AcquisitionMode
	RunNumber        uint16
	DeclaredSize     uint16
	BoardID          uint8
	TriggerTimestamp uint64
	TriggerID        uint64
	ChannelMask      uint64
	Flags            uint16
	Hits             []DecodedHit
	// Hits dropped because their channel is missing from the lookup table
	UnmappedHits int
}

// HitSink receives the decoded hits one at a time.
type HitSink interface {
	Consume(hit DecodedHit) error
}

type HitSinkFunc func(hit DecodedHit) error

func (f HitSinkFunc) Consume(hit DecodedHit) error {
	return f(hit)
}
