package bars

import (
	"encoding/json"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/barstreams/errors"
)

func TestCodecs_JSON(t *testing.T) {
	c := NewCodecs()
	rec := sampleRecord()

	data, err := c.EncodeJSON(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Len(t, fields, 8)
	assert.Equal(t, "2011-12-31T07:52:00Z", fields["timestamp"], "timestamps are text, not epoch numbers")
	assert.Equal(t, 4.39, fields["open"])
	assert.Equal(t, 0.455581, fields["btcVolume"])
	assert.Equal(t, 2.0, fields["usdVolume"])
	assert.Equal(t, 4.39, fields["weightedPrice"])
	for _, key := range []string{"close", "high", "low"} {
		assert.Contains(t, fields, key)
	}
}

func TestCodecs_JSONKeepsZoneOffset(t *testing.T) {
	c := NewCodecs()
	rec := sampleRecord()
	rec.Timestamp = rec.Timestamp.In(time.FixedZone("KST", 9*3600))

	data, err := c.EncodeJSON(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp":"2011-12-31T16:52:00+09:00"`)
}

func TestCodecs_XML(t *testing.T) {
	c := NewCodecs()
	data, err := c.EncodeXML(sampleRecord())
	require.NoError(t, err)

	doc := string(data)
	assert.True(t, strings.HasPrefix(doc, "<?xml"))
	for _, want := range []string{
		"<history>",
		"<timestamp>2011-12-31T07:52:00Z</timestamp>",
		"<open>4.39</open>",
		"<close>4.39</close>",
		"<high>4.39</high>",
		"<low>4.39</low>",
		"<btc-volume>0.455581</btc-volume>",
		"<weighted-price>4.39</weighted-price>",
		"<usd-volume>2</usd-volume>",
		"</history>",
	} {
		assert.Contains(t, doc, want)
	}
}

func TestCodecs_RoundTrip(t *testing.T) {
	c := NewCodecs()
	recs := []Record{
		sampleRecord(),
		{
			Timestamp:     time.Unix(1609459199, 0).In(time.FixedZone("EST", -5*3600)),
			Open:          28923.63,
			High:          29000.000001,
			Low:           0.1 + 0.2,
			Close:         1e-9,
			BTCVolume:     123456.789012345,
			USDVolume:     math.MaxFloat64,
			WeightedPrice: math.SmallestNonzeroFloat64,
		},
	}

	for _, rec := range recs {
		jsonData, err := c.EncodeJSON(rec)
		require.NoError(t, err)
		fromJSON, err := c.DecodeJSON(jsonData)
		require.NoError(t, err)
		assert.True(t, rec.Equal(fromJSON), "json round trip: %s vs %s", rec, fromJSON)

		xmlData, err := c.EncodeXML(rec)
		require.NoError(t, err)
		fromXML, err := c.DecodeXML(xmlData)
		require.NoError(t, err)
		assert.True(t, rec.Equal(fromXML), "xml round trip: %s vs %s", rec, fromXML)
	}
}

func TestCodecs_NonFiniteJSONFails(t *testing.T) {
	c := NewCodecs()
	rec := sampleRecord()
	rec.High = math.Inf(1)

	_, err := c.EncodeJSON(rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEncodingFailed)

	_, err = c.EncodeXML(rec)
	assert.NoError(t, err, "xml can spell infinity")
}

func TestCodecs_UnknownFormat(t *testing.T) {
	_, err := NewCodecs().Encode(Format(7), sampleRecord())
	assert.ErrorIs(t, err, errors.ErrEncodingFailed)
}

func TestCodecs_ConcurrentUse(t *testing.T) {
	c := NewCodecs()
	want, err := c.EncodeXML(sampleRecord())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, err := c.Encode(FormatXML, sampleRecord())
				assert.NoError(t, err)
				assert.Equal(t, want, got)
				_, err = c.Encode(FormatJSON, sampleRecord())
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
