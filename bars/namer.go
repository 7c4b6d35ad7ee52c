package bars

import (
	"path"
	"strconv"
	"strings"
)

// Format is an artifact encoding.
type Format int

// Artifact formats.
const (
	FormatJSON Format = iota
	FormatXML
)

// Mime types of emitted artifacts.
const (
	MimeTypeJSON = "application/json"
	MimeTypeXML  = "text/xml"
)

// Attribute and counter names written on artifacts and published per batch.
const (
	AttrFilename = "filename"
	AttrMimeType = "mime.type"
	AttrBatchID  = "batch.id"

	CounterRecordsRead = "CSV records read"
	CounterJSONRecords = "JSON records created"
	CounterXMLRecords  = "XML records created"
)

// defaultBase names artifacts of batches that arrive without a name.
const defaultBase = "batch"

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatXML:
		return "xml"
	default:
		return "unknown"
	}
}

// Ext returns the filename extension without the dot.
func (f Format) Ext() string {
	return f.String()
}

// MimeType returns the mime type tag for the format.
func (f Format) MimeType() string {
	if f == FormatXML {
		return MimeTypeXML
	}
	return MimeTypeJSON
}

// CounterName returns the counter and attribute name that carries the
// number of records created in this format.
func (f Format) CounterName() string {
	if f == FormatXML {
		return CounterXMLRecords
	}
	return CounterJSONRecords
}

// BaseName strips directories and the final extension from a batch name.
// A name without an extension, or one whose only dot leads it, is kept
// whole. An empty name yields "batch".
func BaseName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultBase
	}
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "/" || name == "." {
		return defaultBase
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// ArtifactName builds "<base><seq>.<ext>".
func ArtifactName(base string, seq int, f Format) string {
	return base + strconv.Itoa(seq) + "." + f.Ext()
}

// Sequence hands out 1, 2, 3, ... for one format within one batch.
type Sequence struct {
	last int
}

// Next returns the next sequence number.
func (s *Sequence) Next() int {
	s.last++
	return s.last
}

// Last returns the most recently issued number, or zero.
func (s *Sequence) Last() int {
	return s.last
}
