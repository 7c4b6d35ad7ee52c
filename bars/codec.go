package bars

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/c360/barstreams/errors"
)

// jsonRecord is the JSON wire shape. Timestamps are RFC 3339 text.
type jsonRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	Open          float64   `json:"open"`
	Close         float64   `json:"close"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	BTCVolume     float64   `json:"btcVolume"`
	WeightedPrice float64   `json:"weightedPrice"`
	USDVolume     float64   `json:"usdVolume"`
}

// xmlRecord is the XML wire shape rooted at <history>.
type xmlRecord struct {
	XMLName       xml.Name  `xml:"history"`
	Timestamp     time.Time `xml:"timestamp"`
	Open          float64   `xml:"open"`
	Close         float64   `xml:"close"`
	High          float64   `xml:"high"`
	Low           float64   `xml:"low"`
	BTCVolume     float64   `xml:"btc-volume"`
	WeightedPrice float64   `xml:"weighted-price"`
	USDVolume     float64   `xml:"usd-volume"`
}

// Codecs encodes records into artifact bodies. It holds no per-call state
// and is safe for concurrent use; build it once and share it.
type Codecs struct {
	xmlHeader []byte
}

// NewCodecs builds the shared encoders.
func NewCodecs() *Codecs {
	return &Codecs{xmlHeader: []byte(xml.Header)}
}

// Encode serializes r in format f.
func (c *Codecs) Encode(f Format, r Record) ([]byte, error) {
	switch f {
	case FormatJSON:
		return c.EncodeJSON(r)
	case FormatXML:
		return c.EncodeXML(r)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: format %d", errors.ErrEncodingFailed, f),
			"Codecs", "Encode", "format lookup")
	}
}

// EncodeJSON serializes r as a JSON object. Non-finite values cannot be
// represented and return an error.
func (c *Codecs) EncodeJSON(r Record) ([]byte, error) {
	data, err := json.Marshal(jsonRecord{
		Timestamp:     r.Timestamp,
		Open:          r.Open,
		Close:         r.Close,
		High:          r.High,
		Low:           r.Low,
		BTCVolume:     r.BTCVolume,
		WeightedPrice: r.WeightedPrice,
		USDVolume:     r.USDVolume,
	})
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrEncodingFailed, err),
			"Codecs", "EncodeJSON", "json marshal")
	}
	return data, nil
}

// EncodeXML serializes r as a <history> document with an XML declaration.
func (c *Codecs) EncodeXML(r Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(c.xmlHeader)

	enc := xml.NewEncoder(&buf)
	err := enc.Encode(xmlRecord{
		Timestamp:     r.Timestamp,
		Open:          r.Open,
		Close:         r.Close,
		High:          r.High,
		Low:           r.Low,
		BTCVolume:     r.BTCVolume,
		WeightedPrice: r.WeightedPrice,
		USDVolume:     r.USDVolume,
	})
	if err == nil {
		err = enc.Close()
	}
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrEncodingFailed, err),
			"Codecs", "EncodeXML", "xml marshal")
	}
	return buf.Bytes(), nil
}

// DecodeJSON parses a JSON artifact body back into a Record.
func (c *Codecs) DecodeJSON(data []byte) (Record, error) {
	var jr jsonRecord
	if err := json.Unmarshal(data, &jr); err != nil {
		return Record{}, errors.WrapInvalid(err, "Codecs", "DecodeJSON", "json unmarshal")
	}
	return Record{
		Timestamp:     jr.Timestamp,
		Open:          jr.Open,
		High:          jr.High,
		Low:           jr.Low,
		Close:         jr.Close,
		BTCVolume:     jr.BTCVolume,
		USDVolume:     jr.USDVolume,
		WeightedPrice: jr.WeightedPrice,
	}, nil
}

// DecodeXML parses an XML artifact body back into a Record.
func (c *Codecs) DecodeXML(data []byte) (Record, error) {
	var xr xmlRecord
	if err := xml.Unmarshal(data, &xr); err != nil {
		return Record{}, errors.WrapInvalid(err, "Codecs", "DecodeXML", "xml unmarshal")
	}
	return Record{
		Timestamp:     xr.Timestamp,
		Open:          xr.Open,
		High:          xr.High,
		Low:           xr.Low,
		Close:         xr.Close,
		BTCVolume:     xr.BTCVolume,
		USDVolume:     xr.USDVolume,
		WeightedPrice: xr.WeightedPrice,
	}, nil
}
