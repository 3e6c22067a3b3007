// Package dbf reads and writes dBASE III table files, the flat-file format
// the legacy accounting system stores its ledgers in. Records are fixed
// width and addressed positionally; a single field of a single record can
// be rewritten in place without touching the rest of the file.
package dbf

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Field type bytes used by dBASE III.
const (
	TypeCharacter = 'C'
	TypeNumeric   = 'N'
	TypeFloat     = 'F'
	TypeDate      = 'D'
	TypeLogical   = 'L'
)

// Sentinel errors. Callers match with errors.Is.
var (
	ErrCorrupt       = errors.New("dbf: file is corrupt")
	ErrFieldNotFound = errors.New("dbf: field not found")
	ErrOutOfRange    = errors.New("dbf: record index out of range")
	ErrValueRejected = errors.New("dbf: value rejected for field type")
)

const (
	headerMinSize  = 32
	descriptorSize = 32
	deletedFlag    = 0x2A
	activeFlag     = 0x20
	headerEnd      = 0x0D
	fileEnd        = 0x1A
)

// FieldDescriptor describes one column of a table.
type FieldDescriptor struct {
	Name     string
	Type     byte
	Length   int
	Decimals int

	offset int // byte offset within a record, including the deletion flag
}

// File is an open dBASE table.
type File struct {
	path     string
	f        *os.File
	writable bool

	recordCount int
	headerSize  int
	recordSize  int
	fields      []FieldDescriptor
	names       []string
}

// Open opens a table read-only.
func Open(path string) (*File, error) {
	return open(path, false)
}

// OpenRW opens a table for in-place field updates.
func OpenRW(path string) (*File, error) {
	return open(path, true)
}

func open(path string, writable bool) (*File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, eris.Wrapf(err, "dbf: open %s", path)
	}

	file := &File{path: path, f: f, writable: writable}
	if err := file.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return file, nil
}

func (d *File) readHeader() error {
	var hdr [headerMinSize]byte
	if _, err := io.ReadFull(d.f, hdr[:]); err != nil {
		return eris.Wrapf(ErrCorrupt, "%s: short header", d.path)
	}

	switch hdr[0] {
	case 0x03, 0x83, 0xF5:
	default:
		return eris.Wrapf(ErrCorrupt, "%s: unsupported version byte 0x%02X", d.path, hdr[0])
	}

	d.recordCount = int(binary.LittleEndian.Uint32(hdr[4:8]))
	d.headerSize = int(binary.LittleEndian.Uint16(hdr[8:10]))
	d.recordSize = int(binary.LittleEndian.Uint16(hdr[10:12]))

	if d.headerSize < headerMinSize+1 || d.recordSize < 1 {
		return eris.Wrapf(ErrCorrupt, "%s: implausible header geometry", d.path)
	}

	descBytes := d.headerSize - headerMinSize - 1
	if descBytes < 0 || descBytes%descriptorSize != 0 {
		return eris.Wrapf(ErrCorrupt, "%s: descriptor area is not a multiple of %d", d.path, descriptorSize)
	}
	count := descBytes / descriptorSize

	desc := make([]byte, descBytes+1)
	if _, err := io.ReadFull(d.f, desc); err != nil {
		return eris.Wrapf(ErrCorrupt, "%s: short descriptor area", d.path)
	}
	if desc[descBytes] != headerEnd {
		return eris.Wrapf(ErrCorrupt, "%s: missing header terminator", d.path)
	}

	offset := 1 // skip the deletion flag
	d.fields = make([]FieldDescriptor, 0, count)
	d.names = make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw := desc[i*descriptorSize : (i+1)*descriptorSize]
		name := strings.TrimRight(strings.TrimRight(string(raw[:11]), "\x00"), " ")
		fd := FieldDescriptor{
			Name:     name,
			Type:     raw[11],
			Length:   int(raw[16]),
			Decimals: int(raw[17]),
			offset:   offset,
		}
		offset += fd.Length
		d.fields = append(d.fields, fd)
		d.names = append(d.names, name)
	}

	if offset != d.recordSize {
		return eris.Wrapf(ErrCorrupt, "%s: field lengths sum to %d, record size is %d", d.path, offset, d.recordSize)
	}
	return nil
}

// Close closes the underlying file.
func (d *File) Close() error {
	return d.f.Close()
}

// Fields returns the table's column descriptors in file order.
func (d *File) Fields() []FieldDescriptor { return d.fields }

// FieldNames returns the column names in file order.
func (d *File) FieldNames() []string { return d.names }

// RecordCount reports the number of physical records, deleted ones included.
func (d *File) RecordCount() int { return d.recordCount }

// Field returns the descriptor for the named column.
func (d *File) Field(name string) (FieldDescriptor, bool) {
	for _, fd := range d.fields {
		if strings.EqualFold(fd.Name, name) {
			return fd, true
		}
	}
	return FieldDescriptor{}, false
}

// Scan streams every active record in physical order. The index passed to fn
// is the physical record number, so it remains valid for UpdateField even
// when deleted records precede it. Values are space-trimmed.
func (d *File) Scan(ctx context.Context, fn func(index int, values []string) error) error {
	if _, err := d.f.Seek(int64(d.headerSize), io.SeekStart); err != nil {
		return eris.Wrapf(err, "dbf: seek %s", d.path)
	}

	r := bufio.NewReaderSize(d.f, 64*1024)
	buf := make([]byte, d.recordSize)
	for i := 0; i < d.recordCount; i++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "dbf: scan %s cancelled", d.path)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return eris.Wrapf(ErrCorrupt, "%s: truncated record %d", d.path, i)
		}
		if buf[0] == deletedFlag {
			continue
		}
		values := make([]string, len(d.fields))
		for j, fd := range d.fields {
			values[j] = strings.TrimSpace(string(buf[fd.offset : fd.offset+fd.Length]))
		}
		if err := fn(i, values); err != nil {
			return err
		}
	}
	return nil
}

// ReadRecord reads one record by physical index.
func (d *File) ReadRecord(index int) ([]string, error) {
	if index < 0 || index >= d.recordCount {
		return nil, eris.Wrapf(ErrOutOfRange, "%s: record %d of %d", d.path, index, d.recordCount)
	}
	buf := make([]byte, d.recordSize)
	pos := int64(d.headerSize) + int64(index)*int64(d.recordSize)
	if _, err := d.f.ReadAt(buf, pos); err != nil {
		return nil, eris.Wrapf(ErrCorrupt, "%s: read record %d", d.path, index)
	}
	values := make([]string, len(d.fields))
	for j, fd := range d.fields {
		values[j] = strings.TrimSpace(string(buf[fd.offset : fd.offset+fd.Length]))
	}
	return values, nil
}

// UpdateField rewrites a single field of a single record in place.
func (d *File) UpdateField(index int, field, value string) error {
	if !d.writable {
		return eris.Errorf("dbf: %s opened read-only", d.path)
	}
	if index < 0 || index >= d.recordCount {
		return eris.Wrapf(ErrOutOfRange, "%s: record %d of %d", d.path, index, d.recordCount)
	}
	fd, ok := d.Field(field)
	if !ok {
		return eris.Wrapf(ErrFieldNotFound, "%s: no field %s", d.path, field)
	}
	encoded, err := encodeValue(fd, value)
	if err != nil {
		return err
	}
	pos := int64(d.headerSize) + int64(index)*int64(d.recordSize) + int64(fd.offset)
	if _, err := d.f.WriteAt(encoded, pos); err != nil {
		return eris.Wrapf(err, "dbf: write %s record %d field %s", d.path, index, field)
	}
	return d.touch()
}

// touch refreshes the last-update date stamp in the header.
func (d *File) touch() error {
	now := time.Now()
	stamp := []byte{byte(now.Year() - 1900), byte(now.Month()), byte(now.Day())}
	if _, err := d.f.WriteAt(stamp, 1); err != nil {
		return eris.Wrapf(err, "dbf: stamp header %s", d.path)
	}
	return nil
}
