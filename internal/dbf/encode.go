package dbf

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// dateLayouts lists the input formats accepted for date fields. Stored form
// is always YYYYMMDD.
var dateLayouts = []string{"20060102", "2006-01-02", "01/02/2006"}

// encodeValue renders a text value into the fixed-width on-disk form for
// the given field, validating it against the field's type.
func encodeValue(fd FieldDescriptor, value string) ([]byte, error) {
	value = strings.TrimSpace(value)

	switch fd.Type {
	case TypeCharacter:
		if len(value) > fd.Length {
			value = value[:fd.Length]
		}
		return []byte(value + strings.Repeat(" ", fd.Length-len(value))), nil

	case TypeNumeric, TypeFloat:
		if value == "" {
			return []byte(strings.Repeat(" ", fd.Length)), nil
		}
		dec, err := decimal.NewFromString(value)
		if err != nil {
			return nil, eris.Wrapf(ErrValueRejected, "%q is not numeric for %s", value, fd.Name)
		}
		s := dec.StringFixed(int32(fd.Decimals))
		if len(s) > fd.Length {
			return nil, eris.Wrapf(ErrValueRejected, "%q overflows %s(%d.%d)", value, fd.Name, fd.Length, fd.Decimals)
		}
		return []byte(strings.Repeat(" ", fd.Length-len(s)) + s), nil

	case TypeDate:
		if value == "" {
			return []byte(strings.Repeat(" ", fd.Length)), nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return []byte(t.Format("20060102")), nil
			}
		}
		return nil, eris.Wrapf(ErrValueRejected, "%q is not a date for %s", value, fd.Name)

	case TypeLogical:
		switch strings.ToUpper(value) {
		case "T", "Y", "TRUE", "1":
			return []byte("T"), nil
		case "F", "N", "FALSE", "0", "":
			return []byte("F"), nil
		}
		return nil, eris.Wrapf(ErrValueRejected, "%q is not logical for %s", value, fd.Name)
	}

	return nil, eris.Wrapf(ErrValueRejected, "unsupported field type %c on %s", fd.Type, fd.Name)
}

// ParseDate parses a stored date value. Empty input yields a zero time.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseLogical interprets a stored logical value.
func ParseLogical(value string) bool {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "T", "Y", "1", "TRUE":
		return true
	}
	return false
}
