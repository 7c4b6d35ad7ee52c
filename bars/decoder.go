package bars

import (
	"bufio"
	"bytes"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/c360/barstreams/errors"
)

// Column names of a history batch header.
const (
	ColumnTimestamp     = "Timestamp"
	ColumnOpen          = "Open"
	ColumnHigh          = "High"
	ColumnLow           = "Low"
	ColumnClose         = "Close"
	ColumnBTCVolume     = "Volume_(BTC)"
	ColumnUSDVolume     = "Volume_(Currency)"
	ColumnWeightedPrice = "Weighted_Price"
)

// Columns lists every column a batch header must carry.
var Columns = []string{
	ColumnTimestamp,
	ColumnOpen,
	ColumnHigh,
	ColumnLow,
	ColumnClose,
	ColumnBTCVolume,
	ColumnUSDVolume,
	ColumnWeightedPrice,
}

// nanToken marks a row as junk. Rows containing it anywhere are skipped.
const nanToken = "NaN"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// errNotFinite rejects the nan and inf spellings ParseFloat accepts. Neither
// codec can carry them consistently.
var errNotFinite = stderrors.New("not a finite number")

// DecodeError reports a row that passed the NaN prefilter but could not be
// decoded. Row is 1-based and excludes the header.
type DecodeError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d: column %s: cannot decode %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithLocation sets the zone timestamps are decoded into. The default is
// time.Local.
func WithLocation(loc *time.Location) DecoderOption {
	return func(d *Decoder) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// Decoder reads records from an RFC 4180 CSV batch. The first row is the
// header and columns are resolved by name.
type Decoder struct {
	reader *csv.Reader
	index  map[string]int
	width  int
	loc    *time.Location
	rows   int
}

// NewDecoder reads and validates the header of r. It returns ErrEmptyBatch
// when r holds no header row, and an invalid-class error wrapping
// ErrInvalidHeader when a required column is missing.
func NewDecoder(r io.Reader, opts ...DecoderOption) (*Decoder, error) {
	d := &Decoder{loc: time.Local}
	for _, opt := range opts {
		opt(d)
	}

	d.reader = csv.NewReader(skipBOM(r))
	d.reader.ReuseRecord = true
	d.reader.FieldsPerRecord = -1

	header, err := d.reader.Read()
	if err == io.EOF {
		return nil, errors.ErrEmptyBatch
	}
	if err != nil {
		return nil, errors.WrapInvalid(
			&DecodeError{Err: fmt.Errorf("%w: %v", errors.ErrInvalidHeader, err)},
			"Decoder", "NewDecoder", "header read")
	}

	d.width = len(header)
	d.index = make(map[string]int, len(header))
	for i, name := range header {
		d.index[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, col := range Columns {
		if _, ok := d.index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: missing columns %s", errors.ErrInvalidHeader, strings.Join(missing, ", ")),
			"Decoder", "NewDecoder", "header validation")
	}

	return d, nil
}

// Next reads the next row. It returns io.EOF after the last row. A row
// rejected by the NaN prefilter yields ok=false with a nil error, whatever
// its width. A row that fails to decode, including one whose field count
// differs from the header, yields an invalid-class error wrapping
// *DecodeError.
func (d *Decoder) Next() (rec Record, ok bool, err error) {
	fields, err := d.reader.Read()
	if err == io.EOF {
		return Record{}, false, io.EOF
	}
	d.rows++
	if err != nil {
		return Record{}, false, errors.WrapInvalid(
			&DecodeError{Row: d.rows, Err: fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)},
			"Decoder", "Next", "row read")
	}

	if IsPrefiltered(fields) {
		return Record{}, false, nil
	}
	if len(fields) != d.width {
		return Record{}, false, errors.WrapInvalid(
			&DecodeError{Row: d.rows, Err: fmt.Errorf("%w: %d fields, header has %d",
				errors.ErrParsingFailed, len(fields), d.width)},
			"Decoder", "Next", "row width")
	}

	rec, err = d.decode(fields)
	if err != nil {
		return Record{}, false, errors.WrapInvalid(err, "Decoder", "Next", "row decode")
	}
	return rec, true, nil
}

// Rows returns the number of data rows read so far, including the row that
// produced an error.
func (d *Decoder) Rows() int {
	return d.rows
}

// IsPrefiltered reports whether the raw row text contains the NaN marker.
func IsPrefiltered(fields []string) bool {
	return strings.Contains(strings.Join(fields, ","), nanToken)
}

func (d *Decoder) decode(fields []string) (Record, error) {
	var rec Record

	raw := d.field(fields, ColumnTimestamp)
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return Record{}, d.fieldError(ColumnTimestamp, raw, err)
	}
	rec.Timestamp = time.Unix(secs, 0).In(d.loc)

	floats := []struct {
		column string
		dst    *float64
	}{
		{ColumnOpen, &rec.Open},
		{ColumnHigh, &rec.High},
		{ColumnLow, &rec.Low},
		{ColumnClose, &rec.Close},
		{ColumnBTCVolume, &rec.BTCVolume},
		{ColumnUSDVolume, &rec.USDVolume},
		{ColumnWeightedPrice, &rec.WeightedPrice},
	}
	for _, f := range floats {
		raw := d.field(fields, f.column)
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Record{}, d.fieldError(f.column, raw, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Record{}, d.fieldError(f.column, raw, errNotFinite)
		}
		*f.dst = v
	}

	return rec, nil
}

func (d *Decoder) field(fields []string, column string) string {
	i := d.index[column]
	if i >= len(fields) {
		return ""
	}
	return fields[i]
}

func (d *Decoder) fieldError(column, value string, err error) error {
	var numErr *strconv.NumError
	if stderrors.As(err, &numErr) {
		err = numErr.Err
	}
	return &DecodeError{
		Row:    d.rows,
		Column: column,
		Value:  value,
		Err:    fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
	}
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
