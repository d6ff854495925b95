package writer

import (
	"errors"
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	decoder "github.com/next-exp/citiroc_decoder/pkg"
)

// Writer stores decoded Citiroc events in an HDF5 file. It is not safe for
// concurrent use.
type Writer struct {
	File         *hdf5.File
	Filename     string
	Mode         decoder.AcquisitionMode
	RunGroup     *hdf5.Group
	HitsGroup    *hdf5.Group
	EventTable   *hdf5.Dataset
	RunInfoTable *hdf5.Dataset
	HitTable     *hdf5.Dataset
	EvtCounter   int
	HitCounter   int
	runInfoRows  int
}

func hitTableName(mode decoder.AcquisitionMode) string {
	if mode == decoder.SpectroscopyMode {
		return "spectroscopy"
	}
	return "timing"
}

func NewWriter(filename string, mode decoder.AcquisitionMode, compressionLevel int) (*Writer, error) {
	if !mode.Valid() {
		return nil, &decoder.UnsupportedModeError{Mode: uint8(mode)}
	}
	hdf5.SetStringLength(STRLEN)

	file, err := openFile(filename)
	if err != nil {
		return nil, err
	}
	writer := &Writer{File: file, Filename: filename, Mode: mode}

	var hitRow interface{} = TimingHitHDF5{}
	if mode == decoder.SpectroscopyMode {
		hitRow = SpectroscopyHitHDF5{}
	}

	err = writer.create(compressionLevel, hitRow)
	if err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	return writer, nil
}

func (w *Writer) create(compressionLevel int, hitRow interface{}) error {
	var err error
	if w.RunGroup, err = createGroup(w.File, "Run"); err != nil {
		return err
	}
	if w.HitsGroup, err = createGroup(w.File, "Hits"); err != nil {
		return err
	}
	if w.RunInfoTable, err = createTable(w.RunGroup, "runInfo", RunInfoHDF5{}, compressionLevel); err != nil {
		return err
	}
	if w.EventTable, err = createTable(w.RunGroup, "events", EventHDF5{}, compressionLevel); err != nil {
		return err
	}
	w.HitTable, err = createTable(w.HitsGroup, hitTableName(w.Mode), hitRow, compressionLevel)
	return err
}

func (w *Writer) WriteRunInfo(header decoder.FileHeader) error {
	if header.AcquisitionMode != w.Mode {
		return fmt.Errorf("%s: run in %v mode written to a %v file", w.Filename, header.AcquisitionMode, w.Mode)
	}
	if err := writeEntryToTable(w.RunInfoTable, runInfoRow(header), w.runInfoRows); err != nil {
		return fmt.Errorf("error writing run info: %w", err)
	}
	w.runInfoRows++
	return nil
}

// WriteEvent appends one row to the events table and one row per hit to the
// hits table.
func (w *Writer) WriteEvent(event *decoder.DecodedEvent) error {
	if event.Mode != w.Mode {
		return fmt.Errorf("%s: %v event written to a %v file", w.Filename, event.Mode, w.Mode)
	}
	if err := writeEntryToTable(w.EventTable, eventRow(event), w.EvtCounter); err != nil {
		return fmt.Errorf("error writing event %d: %w", event.Index, err)
	}
	w.EvtCounter++

	var err error
	switch w.Mode {
	case decoder.TimingMode:
		rows := timingRows(event.Hits)
		err = writeArrayToTable(w.HitTable, &rows, w.HitCounter)
	case decoder.SpectroscopyMode:
		rows := spectroscopyRows(event.Hits)
		err = writeArrayToTable(w.HitTable, &rows, w.HitCounter)
	}
	if err != nil {
		return fmt.Errorf("error writing hits of event %d: %w", event.Index, err)
	}
	w.HitCounter += len(event.Hits)
	return nil
}

// Consume appends a single hit, so the writer can be used as the sink of
// EventStream.Process. The events table is not filled in this case.
func (w *Writer) Consume(hit decoder.DecodedHit) error {
	var err error
	switch w.Mode {
	case decoder.TimingMode:
		err = writeEntryToTable(w.HitTable, timingRow(hit), w.HitCounter)
	case decoder.SpectroscopyMode:
		err = writeEntryToTable(w.HitTable, spectroscopyRow(hit), w.HitCounter)
	}
	if err != nil {
		return fmt.Errorf("error writing hit of event %d: %w", hit.EventIndex, err)
	}
	w.HitCounter++
	return nil
}

func (w *Writer) Close() error {
	var errs []error

	if w.HitTable != nil {
		if err := w.HitTable.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing hit table: %w", err))
		}
	}
	if w.EventTable != nil {
		if err := w.EventTable.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing event table: %w", err))
		}
	}
	if w.RunInfoTable != nil {
		if err := w.RunInfoTable.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing run info table: %w", err))
		}
	}
	if w.HitsGroup != nil {
		if err := w.HitsGroup.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing hits group: %w", err))
		}
	}
	if w.RunGroup != nil {
		if err := w.RunGroup.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing run group: %w", err))
		}
	}
	if w.File != nil {
		if err := w.File.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing file: %w", err))
		}
	}
	w.HitTable, w.EventTable, w.RunInfoTable = nil, nil, nil
	w.HitsGroup, w.RunGroup, w.File = nil, nil, nil

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

var _ decoder.HitSink = (*Writer)(nil)
