package writer

import (
	decoder "github.com/next-exp/citiroc_decoder/pkg"
)

// Field names are the column names in the HDF5 tables, so they stay
// unexported and snake case.

type RunInfoHDF5 struct {
	run_number    int32
	board_id      int32
	hardware_id   uint32
	firmware      int32
	release_id    int32
	acq_mode      [STRLEN]byte
	hist_bins     int32
	time_unit     int32
	time_lsb_ps   uint32
	run_timestamp uint64
}

type EventHDF5 struct {
	evt_number   int32
	timestamp    uint64
	board        int32
	trigger_id   uint64
	channel_mask uint64
	flags        int32
	n_hits       int32
	unmapped     int32
}

type TimingHitHDF5 struct {
	evt_number int32
	module     int32
	sipm       int32
	board      int32
	channel    int32
	flags      int32
	has_toa    int8
	toa_ns     float64
	has_tot    int8
	tot_ns     float64
}

type SpectroscopyHitHDF5 struct {
	evt_number int32
	module     int32
	sipm       int32
	board      int32
	channel    int32
	flags      int32
	has_lg     int8
	lg         uint16
	has_hg     int8
	hg         uint16
}

// presence splits an optional reading into the flag and value columns.
func presence[T any](o decoder.Optional[T]) (int8, T) {
	if o.Valid {
		return 1, o.Value
	}
	var zero T
	return 0, zero
}

func runInfoRow(header decoder.FileHeader) RunInfoHDF5 {
	return RunInfoHDF5{
		run_number:    int32(header.RunNumber),
		board_id:      int32(header.BoardID),
		hardware_id:   header.HardwareID(),
		firmware:      int32(header.FirmwareVersion),
		release_id:    int32(header.ReleaseID),
		acq_mode:      convertToHdf5String(header.AcquisitionMode.String()),
		hist_bins:     int32(header.EnergyHistogramBins),
		time_unit:     int32(header.TimeUnit),
		time_lsb_ps:   header.TimeLsbPs,
		run_timestamp: header.RunTimestamp,
	}
}

func eventRow(event *decoder.DecodedEvent) EventHDF5 {
	return EventHDF5{
		evt_number:   int32(event.Index),
		timestamp:    event.TriggerTimestamp,
		board:        int32(event.BoardID),
		trigger_id:   event.TriggerID,
		channel_mask: event.ChannelMask,
		flags:        int32(event.Flags),
		n_hits:       int32(len(event.Hits)),
		unmapped:     int32(event.UnmappedHits),
	}
}

func timingRow(hit decoder.DecodedHit) TimingHitHDF5 {
	row := TimingHitHDF5{
		evt_number: int32(hit.EventIndex),
		module:     int32(hit.Address.Module),
		sipm:       int32(hit.Address.SipmIndex),
		board:      int32(hit.BoardID),
		channel:    int32(hit.Channel),
		flags:      int32(hit.Flags),
	}
	row.has_toa, row.toa_ns = presence(hit.TimeOfArrival)
	row.has_tot, row.tot_ns = presence(hit.TimeOverThreshold)
	return row
}

func spectroscopyRow(hit decoder.DecodedHit) SpectroscopyHitHDF5 {
	row := SpectroscopyHitHDF5{
		evt_number: int32(hit.EventIndex),
		module:     int32(hit.Address.Module),
		sipm:       int32(hit.Address.SipmIndex),
		board:      int32(hit.BoardID),
		channel:    int32(hit.Channel),
		flags:      int32(hit.Flags),
	}
	row.has_lg, row.lg = presence(hit.LowGainPulseHeight)
	row.has_hg, row.hg = presence(hit.HighGainPulseHeight)
	return row
}

// The slices MUST be allocated with their final length, HDF5 writes
// from the backing array.

func timingRows(hits []decoder.DecodedHit) []TimingHitHDF5 {
	rows := make([]TimingHitHDF5, len(hits))
	for i, hit := range hits {
		rows[i] = timingRow(hit)
	}
	return rows
}

func spectroscopyRows(hits []decoder.DecodedHit) []SpectroscopyHitHDF5 {
	rows := make([]SpectroscopyHitHDF5, len(hits))
	for i, hit := range hits {
		rows[i] = spectroscopyRow(hit)
	}
	return rows
}
