package decoder

import (
	"fmt"
	"os"
)

const FileHeaderSize = 25

type AcquisitionMode uint8

const (
	SpectroscopyMode AcquisitionMode = 0x01
	TimingMode       AcquisitionMode = 0x02
)

func (m AcquisitionMode) String() string {
	switch m {
	case SpectroscopyMode:
		return "spectroscopy"
	case TimingMode:
		return "timing"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(m))
	}
}

func (m AcquisitionMode) Valid() bool {
	return m == SpectroscopyMode || m == TimingMode
}

type FileHeader struct {
	FirmwareVersion     uint16
	ReleaseID           uint32
	BoardID             uint16
	RunNumber           uint16
	AcquisitionMode     AcquisitionMode
	EnergyHistogramBins uint16
	TimeUnit            uint8
	TimeLsbPs           uint32
	RunTimestamp        uint64
}

// HardwareID is the board id shifted to the hardware address space.
func (h FileHeader) HardwareID() uint32 {
	return uint32(h.BoardID) << 16
}

// DecodeFileHeader reads the 25 byte file header. The firmware version and
// release id are read with versionOrder, which depends on the protocol
// revision that wrote the file. Every other field is little endian.
func DecodeFileHeader(c *ByteCursor, versionOrder Endianness) (FileHeader, error) {
	var header FileHeader

	firmware, err := c.readField("firmware version", 2, versionOrder)
	if err != nil {
		return header, err
	}
	release, err := c.readField("release id", 3, versionOrder)
	if err != nil {
		return header, err
	}
	header.FirmwareVersion = uint16(firmware)
	header.ReleaseID = uint32(release)

	if header.BoardID, err = c.ReadUint16("board id"); err != nil {
		return header, err
	}
	if header.RunNumber, err = c.ReadUint16("run number"); err != nil {
		return header, err
	}
	mode, err := c.ReadUint8("acquisition mode")
	if err != nil {
		return header, err
	}
	header.AcquisitionMode = AcquisitionMode(mode)
	if header.EnergyHistogramBins, err = c.ReadUint16("energy histogram bins"); err != nil {
		return header, err
	}
	if header.TimeUnit, err = c.ReadUint8("time unit"); err != nil {
		return header, err
	}
	if header.TimeLsbPs, err = c.ReadUint32("time lsb"); err != nil {
		return header, err
	}
	if header.RunTimestamp, err = c.ReadUint64("run timestamp"); err != nil {
		return header, err
	}
	return header, nil
}

// ReadFileHeader reads only the header of a file, e.g. to get the run number
// before the channel map is loaded.
func ReadFileHeader(filename string, versionOrder Endianness) (FileHeader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return FileHeader{}, &SourceUnavailableError{Filename: filename, Err: err}
	}
	defer file.Close()
	return DecodeFileHeader(NewByteCursor(file), versionOrder)
}

func logFileHeader(header FileHeader) {
	message := fmt.Sprintf("Firmware: 0x%04x  Release: 0x%06x  Board: 0x%04x  Run: %d  AcqMode: %v",
		header.FirmwareVersion, header.ReleaseID, header.BoardID, header.RunNumber, header.AcquisitionMode)
	logger.Info(message, "fileHeader")
	message = fmt.Sprintf("EHnBins: %d  TUnit: 0x%02x  TLsb: %d ps  TS: 0x%016x",
		header.EnergyHistogramBins, header.TimeUnit, header.TimeLsbPs, header.RunTimestamp)
	logger.Info(message, "fileHeader")
	message = fmt.Sprintf("Board ID 0x%04x -> hwid 0x%08x", header.BoardID, header.HardwareID())
	logger.Info(message, "fileHeader")
}
