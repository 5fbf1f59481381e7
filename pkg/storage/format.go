package storage

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/adfharrison1/go-okdb/pkg/domain"
)

const (
	// Magic bytes to identify our file format
	MagicBytes = "OKDB"
	// Current version
	FormatVersion = 1
	// File extension for snapshot files
	FileExtension = ".okdb"
)

// FileHeader represents the header of our storage file
type FileHeader struct {
	Magic    [4]byte // "OKDB"
	Version  uint8   // Format version
	Flags    uint8   // Reserved for future use
	Reserved [2]byte // Reserved for future use
}

// WriteHeader writes the file header to the given writer
func WriteHeader(w io.Writer) error {
	header := FileHeader{
		Magic:    [4]byte{'O', 'K', 'D', 'B'},
		Version:  FormatVersion,
		Flags:    0,
		Reserved: [2]byte{0, 0},
	}

	return binary.Write(w, binary.LittleEndian, header)
}

// ReadHeader reads and validates the file header
func ReadHeader(r io.Reader) (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if string(header.Magic[:]) != MagicBytes {
		return nil, fmt.Errorf("invalid file format: expected %s, got %s", MagicBytes, string(header.Magic[:]))
	}

	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported file version: %d", header.Version)
	}

	return &header, nil
}

// TableData is one table in a snapshot.
type TableData struct {
	Def     domain.Table             `msgpack:"def"`
	Records []map[string]interface{} `msgpack:"records"`
}

// StorageData represents the actual data structure we store
type StorageData struct {
	Tables map[string]*TableData `msgpack:"tables"`
}

// NewStorageData creates a new empty storage data structure
func NewStorageData() *StorageData {
	return &StorageData{
		Tables: make(map[string]*TableData),
	}
}
