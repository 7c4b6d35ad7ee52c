package bars

import (
	"context"
	stderrors "errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/barstreams/errors"
)

type memorySink struct {
	mu        sync.Mutex
	artifacts []Artifact
	failOn    map[int]bool
}

func (s *memorySink) Emit(_ context.Context, a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[len(s.artifacts)+1] {
		delete(s.failOn, len(s.artifacts)+1)
		return errors.ErrConnectionLost
	}
	s.artifacts = append(s.artifacts, a)
	return nil
}

func (s *memorySink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a.Name)
	}
	return out
}

type memoryFailures struct {
	mu      sync.Mutex
	batches []Batch
	causes  []error
	err     error
}

func (f *memoryFailures) Fail(_ context.Context, b Batch, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, b)
	f.causes = append(f.causes, cause)
	return nil
}

type harness struct {
	pipeline *Pipeline
	json     *memorySink
	xml      *memorySink
	failures *memoryFailures
	counters *Counters
}

func newHarness() *harness {
	return &harness{
		pipeline: NewPipeline(NewCodecs(), nil, WithTimeLocation(time.UTC)),
		json:     &memorySink{},
		xml:      &memorySink{},
		failures: &memoryFailures{},
		counters: NewCounters(),
	}
}

func (h *harness) sinks() Sinks {
	return Sinks{JSON: h.json, XML: h.xml, Failure: h.failures, Counters: h.counters}
}

func (h *harness) run(t *testing.T, data string, output Output) Result {
	t.Helper()
	res, err := h.pipeline.Process(context.Background(), Batch{
		ID:         "b-1",
		Name:       "test.csv",
		Data:       []byte(data),
		Attributes: map[string]string{"path": "./", "filename": "test.csv"},
	}, NewPolicy(output), h.sinks())
	require.NoError(t, err)
	return res
}

const validRow = "1325317920,4.39,4.39,4.39,4.39,0.455581,2,4.39\n"

func TestProcess_SingleRowAllOutputs(t *testing.T) {
	h := newHarness()
	res := h.run(t, header+validRow, OutputAll)

	assert.Equal(t, DispositionDiscarded, res.Disposition)
	assert.NoError(t, res.Cause)
	assert.Equal(t, 1, res.RecordsRead)
	assert.Equal(t, 1, res.JSONCreated)
	assert.Equal(t, 1, res.XMLCreated)

	require.Len(t, h.json.artifacts, 1)
	require.Len(t, h.xml.artifacts, 1)
	assert.Empty(t, h.failures.batches)

	assert.Equal(t, map[string]int{
		CounterRecordsRead: 1,
		CounterJSONRecords: 1,
		CounterXMLRecords:  1,
	}, h.counters.Snapshot())

	j := h.json.artifacts[0]
	assert.Equal(t, "test1.json", j.Name)
	assert.Equal(t, 1, j.Sequence)
	assert.Equal(t, "application/json", j.MimeType())
	assert.Equal(t, "test1.json", j.Attributes[AttrFilename])
	assert.Equal(t, "application/json", j.Attributes[AttrMimeType])
	assert.Equal(t, "1", j.Attributes[CounterJSONRecords])
	assert.Equal(t, "b-1", j.Attributes[AttrBatchID])
	assert.Equal(t, "./", j.Attributes["path"], "batch attributes are inherited")

	x := h.xml.artifacts[0]
	assert.Equal(t, "test1.xml", x.Name)
	assert.Equal(t, "text/xml", x.Attributes[AttrMimeType])
	assert.Equal(t, "1", x.Attributes[CounterXMLRecords])
	assert.NotContains(t, x.Attributes, CounterJSONRecords)

	rec, err := NewCodecs().DecodeXML(x.Data)
	require.NoError(t, err)
	assert.True(t, rec.Equal(sampleRecord()))
}

func TestProcess_OutputModes(t *testing.T) {
	tests := []struct {
		output   Output
		wantJSON int
		wantXML  int
	}{
		{OutputAll, 1, 1},
		{OutputJSON, 1, 0},
		{OutputXML, 0, 1},
		{OutputDB, 0, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.output), func(t *testing.T) {
			h := newHarness()
			res := h.run(t, header+validRow, tt.output)

			assert.Equal(t, DispositionDiscarded, res.Disposition)
			assert.Len(t, h.json.artifacts, tt.wantJSON)
			assert.Len(t, h.xml.artifacts, tt.wantXML)
			assert.Equal(t, tt.wantJSON, h.counters.Get(CounterJSONRecords))
			assert.Equal(t, tt.wantXML, h.counters.Get(CounterXMLRecords))
			assert.Equal(t, 1, h.counters.Get(CounterRecordsRead))
		})
	}
}

func TestProcess_InactiveSinksMayBeNil(t *testing.T) {
	p := NewPipeline(NewCodecs(), nil, WithTimeLocation(time.UTC))
	json := &memorySink{}

	res, err := p.Process(context.Background(),
		Batch{Name: "x.csv", Data: []byte(header + validRow)},
		NewPolicy(OutputJSON),
		Sinks{JSON: json, Failure: &memoryFailures{}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.JSONCreated)
	assert.Len(t, json.artifacts, 1)
}

func TestProcess_MissingActiveSink(t *testing.T) {
	p := NewPipeline(NewCodecs(), nil)

	_, err := p.Process(context.Background(),
		Batch{Name: "x.csv", Data: []byte(header + validRow)},
		NewPolicy(OutputAll),
		Sinks{JSON: &memorySink{}, Failure: &memoryFailures{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = p.Process(context.Background(), Batch{}, NewPolicy(OutputAll), Sinks{})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestProcess_NaNRowIsSilentSkip(t *testing.T) {
	h := newHarness()
	res := h.run(t, header+"1325317920,4.39,4.39,4.39,NaN,0.455581,2,4.39\n", OutputAll)

	assert.Equal(t, DispositionDiscarded, res.Disposition, "NaN is not an error")
	assert.Equal(t, 1, res.RecordsRead)
	assert.Equal(t, 1, res.Rejected())
	assert.Zero(t, res.JSONCreated)
	assert.Zero(t, res.XMLCreated)
	assert.Empty(t, h.json.artifacts)
	assert.Empty(t, h.xml.artifacts)
	assert.Empty(t, h.failures.batches)
	assert.Equal(t, 1, h.counters.Get(CounterRecordsRead))
}

func TestProcess_DecodeErrorFailsWholeBatch(t *testing.T) {
	h := newHarness()
	data := header + validRow + "1325317980,5,5,5,5,1,1,5\n" + "1325318040,not-a-number,4.39,4.39,4.39,0.455581,2,4.39\n" + validRow

	res := h.run(t, data, OutputAll)

	assert.Equal(t, DispositionFailed, res.Disposition)
	require.Error(t, res.Cause)
	assert.True(t, errors.IsInvalid(res.Cause))
	var de *DecodeError
	require.True(t, stderrors.As(res.Cause, &de))
	assert.Equal(t, 3, de.Row)
	assert.Equal(t, ColumnOpen, de.Column)

	assert.Empty(t, h.json.artifacts, "rows decoded before the error are discarded")
	assert.Empty(t, h.xml.artifacts)
	assert.Equal(t, 3, res.RecordsRead)
	assert.Zero(t, h.counters.Get(CounterJSONRecords))
	assert.Zero(t, h.counters.Get(CounterXMLRecords))
	assert.Equal(t, 3, h.counters.Get(CounterRecordsRead))

	require.Len(t, h.failures.batches, 1)
	failed := h.failures.batches[0]
	assert.Equal(t, data, string(failed.Data), "failed batch is forwarded untouched")
	assert.Equal(t, "test.csv", failed.Attributes["filename"])
}

func TestProcess_InvalidHeaderFails(t *testing.T) {
	h := newHarness()
	res := h.run(t, "Timestamp,Open\n1325317920,4.39\n", OutputAll)

	assert.Equal(t, DispositionFailed, res.Disposition)
	assert.ErrorIs(t, res.Cause, errors.ErrInvalidHeader)
	assert.Len(t, h.failures.batches, 1)
}

func TestProcess_FailureSinkError(t *testing.T) {
	h := newHarness()
	h.failures.err = errors.ErrNoConnection

	_, err := h.pipeline.Process(context.Background(),
		Batch{Name: "bad.csv", Data: []byte(header + "1,x,1,1,1,1,1,1\n")},
		NewPolicy(OutputAll), h.sinks())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
}

func TestProcess_EmptyBatchIsNoop(t *testing.T) {
	for name, data := range map[string]string{"nil data": "", "blank lines": "\n\n"} {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			res := h.run(t, data, OutputAll)

			assert.True(t, res.Skipped)
			assert.Equal(t, DispositionNone, res.Disposition)
			assert.Empty(t, h.counters.Snapshot(), "no counters for an empty batch")
			assert.Empty(t, h.failures.batches)
		})
	}
}

func TestProcess_HeaderOnly(t *testing.T) {
	h := newHarness()
	res := h.run(t, header, OutputAll)

	assert.False(t, res.Skipped)
	assert.Equal(t, DispositionDiscarded, res.Disposition)
	assert.Zero(t, res.RecordsRead)
	assert.Equal(t, 0, h.counters.Get(CounterRecordsRead))
	assert.Len(t, h.counters.Snapshot(), 3)
}

func TestProcess_DuplicatesCollapse(t *testing.T) {
	h := newHarness()
	data := header +
		validRow +
		"1325317920,4.390,4.39,4.39,4.39,0.455581,2.0,4.39\n" +
		"1325317920,4.39,4.39,4.39,4.39,4.55581e-1,2,4.39\n" +
		"1325317980,4.40,4.40,4.40,4.40,1,4.4,4.40\n"

	res := h.run(t, data, OutputAll)

	assert.Equal(t, 4, res.RecordsRead)
	assert.Equal(t, 2, res.JSONCreated)
	assert.Equal(t, 2, res.XMLCreated)
	assert.Equal(t, []string{"test1.json", "test2.json"}, h.json.names())
	assert.Equal(t, []string{"test1.xml", "test2.xml"}, h.xml.names())
}

func TestProcess_EncodeFailureIsLocal(t *testing.T) {
	h := newHarness()
	h.pipeline.encode = func(f Format, r Record) ([]byte, error) {
		if f == FormatJSON && r.Open == 5 {
			return nil, errors.WrapInvalid(errors.ErrEncodingFailed, "Codecs", "EncodeJSON", "json marshal")
		}
		return h.pipeline.codecs.Encode(f, r)
	}
	data := header +
		"1325317860,5,5,5,5,1,1,5\n" +
		validRow

	res := h.run(t, data, OutputAll)

	assert.Equal(t, DispositionDiscarded, res.Disposition, "encode errors never fail the batch")
	assert.Equal(t, 1, res.EncodeFailures)
	assert.Equal(t, 1, res.JSONCreated, "the sibling record is still written")
	assert.Equal(t, 2, res.XMLCreated)
	assert.Equal(t, []string{"test1.json"}, h.json.names(), "skipped records consume no sequence number")
	assert.Equal(t, 1, h.counters.Get(CounterJSONRecords))
	assert.Empty(t, h.failures.batches)
}

func TestProcess_NonFiniteTextFailsBatch(t *testing.T) {
	for _, v := range []string{"nan", "inf", "+Inf", "infinity", "Infinity"} {
		t.Run(v, func(t *testing.T) {
			h := newHarness()
			res := h.run(t, header+validRow+"1325317980,"+v+",4.39,4.39,4.39,0.455581,2,4.39\n", OutputAll)

			assert.Equal(t, DispositionFailed, res.Disposition)
			assert.True(t, errors.IsInvalid(res.Cause))
			assert.ErrorIs(t, res.Cause, errors.ErrParsingFailed)
			assert.Zero(t, res.EncodeFailures)
			assert.Empty(t, h.json.artifacts)
			assert.Empty(t, h.xml.artifacts)
			assert.Len(t, h.failures.batches, 1)
		})
	}
}

func TestProcess_ShortNaNRowIsSkipped(t *testing.T) {
	h := newHarness()
	res := h.run(t, header+"1325317920,NaN,NaN,NaN\n"+validRow, OutputJSON)

	assert.Equal(t, DispositionDiscarded, res.Disposition)
	assert.Equal(t, 2, res.RecordsRead)
	assert.Equal(t, 1, res.JSONCreated)
	assert.Empty(t, h.failures.batches)
}

func TestProcess_SinkFailureSkipsArtifact(t *testing.T) {
	h := newHarness()
	h.json.failOn = map[int]bool{1: true}
	data := header + validRow + "1325317980,5,5,5,5,1,1,5\n"

	res := h.run(t, data, OutputJSON)

	assert.Equal(t, DispositionDiscarded, res.Disposition)
	assert.Equal(t, 1, res.SinkFailures)
	assert.Equal(t, 1, res.JSONCreated)
	assert.Equal(t, []string{"test1.json"}, h.json.names())
}

func TestProcess_CancelledContextFails(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.pipeline.Process(ctx,
		Batch{Name: "x.csv", Data: []byte(header + validRow)},
		NewPolicy(OutputAll), h.sinks())
	require.NoError(t, err)
	assert.Equal(t, DispositionFailed, res.Disposition)
	assert.True(t, errors.IsTransient(res.Cause))
	assert.Empty(t, h.json.artifacts)
}

// cancellingSink cancels the batch context after its first delivery.
type cancellingSink struct {
	memorySink
	cancel context.CancelFunc
}

func (s *cancellingSink) Emit(ctx context.Context, a Artifact) error {
	err := s.memorySink.Emit(ctx, a)
	s.cancel()
	return err
}

func TestProcess_CancelDuringDrainFails(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	json := &cancellingSink{cancel: cancel}

	res, err := h.pipeline.Process(ctx,
		Batch{Name: "test.csv", Data: []byte(header + validRow + "1325317980,5,5,5,5,1,1,5\n")},
		NewPolicy(OutputJSON), Sinks{JSON: json, Failure: h.failures, Counters: h.counters})
	require.NoError(t, err)

	assert.Equal(t, DispositionFailed, res.Disposition)
	assert.True(t, errors.IsTransient(res.Cause))
	assert.ErrorIs(t, res.Cause, context.Canceled)
	assert.Equal(t, 1, res.JSONCreated, "the delivered artifact is still counted")
	assert.Equal(t, []string{"test1.json"}, json.names())
	assert.Equal(t, 1, h.counters.Get(CounterJSONRecords))
	assert.Len(t, h.failures.batches, 1)
}

func TestCounters_ZeroValue(t *testing.T) {
	var c Counters
	assert.Zero(t, c.Get(CounterRecordsRead))
	assert.Empty(t, c.Snapshot())

	c.Adjust(CounterRecordsRead, 3)
	c.Adjust(CounterRecordsRead, -1)
	assert.Equal(t, 2, c.Get(CounterRecordsRead))
	assert.Equal(t, map[string]int{CounterRecordsRead: 2}, c.Snapshot())
}

func TestProcess_SequencesResetPerBatch(t *testing.T) {
	h := newHarness()
	h.run(t, header+validRow, OutputJSON)
	h.run(t, header+validRow, OutputJSON)

	assert.Equal(t, []string{"test1.json", "test1.json"}, h.json.names())
	assert.Equal(t, 2, h.counters.Get(CounterJSONRecords))
}

func TestProcess_ConcurrentBatches(t *testing.T) {
	p := NewPipeline(NewCodecs(), nil, WithTimeLocation(time.UTC))
	policy := NewPolicy(OutputAll)
	counters := NewCounters()
	json, xml := &memorySink{}, &memorySink{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Process(context.Background(),
				Batch{Name: "c.csv", Data: []byte(header + validRow + "1325317980,5,5,5,5,1,1,5\n")},
				policy, Sinks{JSON: json, XML: xml, Failure: &memoryFailures{}, Counters: counters})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, counters.Get(CounterRecordsRead))
	assert.Equal(t, 16, counters.Get(CounterJSONRecords))
	assert.Equal(t, 16, counters.Get(CounterXMLRecords))

	names := json.names()
	sort.Strings(names)
	assert.Equal(t, "c1.json", names[0])
	assert.Equal(t, "c2.json", names[len(names)-1])
}

func TestProcess_Fixtures(t *testing.T) {
	tests := []struct {
		file        string
		output      Output
		json, xml   int
		disposition Disposition
	}{
		{"testdata/test.csv", OutputAll, 1, 1, DispositionDiscarded},
		{"testdata/test.csv", OutputJSON, 1, 0, DispositionDiscarded},
		{"testdata/test.csv", OutputXML, 0, 1, DispositionDiscarded},
		{"testdata/bad.csv", OutputAll, 0, 0, DispositionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.file+"/"+string(tt.output), func(t *testing.T) {
			data, err := os.ReadFile(tt.file)
			require.NoError(t, err)

			h := newHarness()
			res := h.run(t, string(data), tt.output)
			assert.Equal(t, tt.disposition, res.Disposition)
			assert.Len(t, h.json.artifacts, tt.json)
			assert.Len(t, h.xml.artifacts, tt.xml)
			if tt.disposition == DispositionFailed {
				assert.Len(t, h.failures.batches, 1)
			} else {
				assert.Empty(t, h.failures.batches)
			}
		})
	}
}
