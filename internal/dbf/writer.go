package dbf

import (
	"encoding/binary"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Create writes a new empty table with the given columns and returns it
// open for appends and updates. An existing file at path is truncated.
func Create(path string, fields []FieldDescriptor) (*File, error) {
	if len(fields) == 0 {
		return nil, eris.New("dbf: create with no fields")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "dbf: create %s", path)
	}

	headerSize := headerMinSize + len(fields)*descriptorSize + 1
	recordSize := 1
	for _, fd := range fields {
		recordSize += fd.Length
	}

	hdr := make([]byte, headerSize)
	hdr[0] = 0x03
	now := time.Now()
	hdr[1], hdr[2], hdr[3] = byte(now.Year()-1900), byte(now.Month()), byte(now.Day())
	binary.LittleEndian.PutUint32(hdr[4:8], 0)
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(headerSize))
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(recordSize))

	offset := 1
	out := make([]FieldDescriptor, len(fields))
	copy(out, fields)
	for i, fd := range out {
		raw := hdr[headerMinSize+i*descriptorSize:]
		name := strings.ToUpper(fd.Name)
		if len(name) > 10 {
			name = name[:10]
		}
		copy(raw[:11], name)
		raw[11] = fd.Type
		raw[16] = byte(fd.Length)
		raw[17] = byte(fd.Decimals)
		out[i].Name = name
		out[i].offset = offset
		offset += fd.Length
	}
	hdr[headerSize-1] = headerEnd

	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, eris.Wrapf(err, "dbf: write header %s", path)
	}
	if _, err := f.Write([]byte{fileEnd}); err != nil {
		f.Close()
		return nil, eris.Wrapf(err, "dbf: write eof marker %s", path)
	}

	names := make([]string, len(out))
	for i, fd := range out {
		names[i] = fd.Name
	}
	return &File{
		path:       path,
		f:          f,
		writable:   true,
		headerSize: headerSize,
		recordSize: recordSize,
		fields:     out,
		names:      names,
	}, nil
}

// Append adds one record. Values are positional and must match the column
// count; each is validated and padded per its field type.
func (d *File) Append(values []string) error {
	if !d.writable {
		return eris.Errorf("dbf: %s opened read-only", d.path)
	}
	if len(values) != len(d.fields) {
		return eris.Errorf("dbf: %s: %d values for %d fields", d.path, len(values), len(d.fields))
	}

	record := make([]byte, d.recordSize)
	record[0] = activeFlag
	for i, fd := range d.fields {
		encoded, err := encodeValue(fd, values[i])
		if err != nil {
			return err
		}
		copy(record[fd.offset:], encoded)
	}

	pos := int64(d.headerSize) + int64(d.recordCount)*int64(d.recordSize)
	if _, err := d.f.WriteAt(record, pos); err != nil {
		return eris.Wrapf(err, "dbf: append record %s", d.path)
	}
	if _, err := d.f.WriteAt([]byte{fileEnd}, pos+int64(d.recordSize)); err != nil {
		return eris.Wrapf(err, "dbf: append eof marker %s", d.path)
	}

	d.recordCount++
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(d.recordCount))
	if _, err := d.f.WriteAt(count[:], 4); err != nil {
		return eris.Wrapf(err, "dbf: update record count %s", d.path)
	}
	return nil
}

// Delete marks a record deleted without removing it; positional indices of
// later records are unaffected.
func (d *File) Delete(index int) error {
	if !d.writable {
		return eris.Errorf("dbf: %s opened read-only", d.path)
	}
	if index < 0 || index >= d.recordCount {
		return eris.Wrapf(ErrOutOfRange, "%s: record %d of %d", d.path, index, d.recordCount)
	}
	pos := int64(d.headerSize) + int64(index)*int64(d.recordSize)
	if _, err := d.f.WriteAt([]byte{deletedFlag}, pos); err != nil {
		return eris.Wrapf(err, "dbf: delete record %d in %s", index, d.path)
	}
	return nil
}

// Sync flushes pending writes to disk.
func (d *File) Sync() error {
	if err := d.f.Sync(); err != nil && err != io.EOF {
		return eris.Wrapf(err, "dbf: sync %s", d.path)
	}
	return nil
}
