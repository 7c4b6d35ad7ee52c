package bars

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"test.csv", "test"},
		{"bitstamp.2012.csv", "bitstamp.2012"},
		{"noext", "noext"},
		{".hidden", ".hidden"},
		{"in/history.csv", "history"},
		{`C:\drop\history.csv`, "history"},
		{"with space.csv", "with space"},
		{"", "batch"},
		{"   ", "batch"},
		{"dir/", "dir"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseName(tt.in))
		})
	}
}

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "test1.json", ArtifactName("test", 1, FormatJSON))
	assert.Equal(t, "test12.xml", ArtifactName("test", 12, FormatXML))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "application/json", FormatJSON.MimeType())
	assert.Equal(t, "text/xml", FormatXML.MimeType())
	assert.Equal(t, "json", FormatJSON.Ext())
	assert.Equal(t, "xml", FormatXML.Ext())
	assert.Equal(t, "JSON records created", FormatJSON.CounterName())
	assert.Equal(t, "XML records created", FormatXML.CounterName())
	assert.Equal(t, "unknown", Format(9).String())
}

func TestSequence(t *testing.T) {
	var s Sequence
	assert.Zero(t, s.Last())
	assert.Equal(t, 1, s.Next())
	assert.Equal(t, 2, s.Next())
	assert.Equal(t, 2, s.Last())
}
