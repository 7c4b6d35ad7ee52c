package bars

import (
	"fmt"
	"strings"

	"github.com/c360/barstreams/errors"
)

// Output selects which encoders a schedule runs.
type Output string

// Output values. DB is accepted for configuration compatibility but activates
// no encoder.
const (
	OutputAll  Output = "ALL"
	OutputJSON Output = "JSON"
	OutputXML  Output = "XML"
	OutputDB   Output = "DB"
)

// Outputs lists the accepted Output values in configuration order.
var Outputs = []Output{OutputXML, OutputJSON, OutputDB, OutputAll}

// ParseOutput parses an output mode, case-insensitively. An empty value
// selects OutputAll.
func ParseOutput(s string) (Output, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return OutputAll, nil
	}
	for _, o := range Outputs {
		if string(o) == s {
			return o, nil
		}
	}
	return "", errors.WrapInvalid(
		fmt.Errorf("%w: unknown output %q", errors.ErrInvalidConfig, s),
		"Policy", "ParseOutput", "output validation")
}

// JSONActive reports whether JSON artifacts are produced.
func (o Output) JSONActive() bool {
	return o == OutputAll || o == OutputJSON
}

// XMLActive reports whether XML artifacts are produced.
func (o Output) XMLActive() bool {
	return o == OutputAll || o == OutputXML
}

// Policy is the output selection captured when a processor is scheduled. It
// is a value and never changes once built, so it can be shared by every
// concurrent invocation of that schedule.
type Policy struct {
	output Output
}

// NewPolicy snapshots o.
func NewPolicy(o Output) Policy {
	return Policy{output: o}
}

// Output returns the configured mode.
func (p Policy) Output() Output { return p.output }

// JSONActive reports whether JSON artifacts are produced.
func (p Policy) JSONActive() bool { return p.output.JSONActive() }

// XMLActive reports whether XML artifacts are produced.
func (p Policy) XMLActive() bool { return p.output.XMLActive() }

// Formats returns the active formats, JSON first.
func (p Policy) Formats() []Format {
	var formats []Format
	if p.JSONActive() {
		formats = append(formats, FormatJSON)
	}
	if p.XMLActive() {
		formats = append(formats, FormatXML)
	}
	return formats
}
