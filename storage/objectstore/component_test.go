package objectstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/testutil"
)

// fakeTransport adds a bucket to the shared in-memory transport.
type fakeTransport struct {
	*testutil.Transport
	obs       *memObjectStore
	bucket    jetstream.ObjectStoreConfig
	createErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{Transport: testutil.NewTransport(), obs: newMemObjectStore()}
}

func (f *fakeTransport) CreateObjectStore(_ context.Context, cfg jetstream.ObjectStoreConfig) (jetstream.ObjectStore, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.bucket = cfg
	return f.obs, nil
}

func (f *fakeTransport) events(t *testing.T) []Event {
	t.Helper()
	var out []Event
	for _, m := range f.Published("storage.objectstore.events") {
		var ev Event
		require.NoError(t, json.Unmarshal(m.Data, &ev))
		out = append(out, ev)
	}
	return out
}

func startedComponent(t *testing.T, raw string) (*Component, *fakeTransport) {
	t.Helper()
	comp, err := NewComponent(json.RawMessage(raw), component.Dependencies{})
	require.NoError(t, err)
	c := comp.(*Component)

	ft := newFakeTransport()
	c.transport = ft
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop(time.Second) })
	return c, ft
}

func TestNewComponent_Defaults(t *testing.T) {
	comp, err := NewComponent(nil, component.Dependencies{})
	require.NoError(t, err)
	c := comp.(*Component)

	assert.Equal(t, "objectstore", c.Meta().Name)
	assert.Equal(t, "storage", c.Meta().Type)
	assert.Equal(t, "BARS", c.config.BucketName)
	assert.Len(t, c.InputPorts(), 4)
	assert.Len(t, c.OutputPorts(), 1)
	assert.Contains(t, c.ConfigSchema().Properties, "bucket_name")
}

func TestNewComponent_InvalidConfig(t *testing.T) {
	cases := map[string]string{
		"bucket":  `{"bucket_name":"has space"}`,
		"timeout": `{"request_timeout":"soon"}`,
		"max age": `{"max_age":"-1h"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewComponent(json.RawMessage(raw), component.Dependencies{})
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestComponent_StartRequiresTransport(t *testing.T) {
	comp, err := NewComponent(nil, component.Dependencies{})
	require.NoError(t, err)

	err = comp.(*Component).Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestComponent_StartOpensBucket(t *testing.T) {
	c, ft := startedComponent(t, `{"bucket_name":"HIST","max_age":"24h"}`)

	assert.Equal(t, "HIST", ft.bucket.Bucket)
	assert.Equal(t, 24*time.Hour, ft.bucket.TTL)
	assert.True(t, c.Health().Healthy)
	for _, subject := range []string{"bars.json", "bars.xml", "bars.failure", "storage.objectstore.api"} {
		assert.True(t, ft.Subscribed(subject), subject)
	}

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
}

func TestComponent_StartBucketError(t *testing.T) {
	comp, err := NewComponent(nil, component.Dependencies{})
	require.NoError(t, err)
	c := comp.(*Component)
	ft := newFakeTransport()
	ft.createErr = errors.ErrStorageUnavailable
	c.transport = ft

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.False(t, c.Health().Healthy)
}

func TestComponent_StoresArtifactsByPortAndFilename(t *testing.T) {
	c, ft := startedComponent(t, `{}`)

	ft.Deliver(t, "bars.json", []byte(`{"open":4.39}`), map[string]string{"filename": "btc1.json"})
	ft.Deliver(t, "bars.failure", []byte("Timestamp\n"), map[string]string{"filename": "bad.csv"})

	keys, err := c.Store().List(context.Background(), "history/")
	require.NoError(t, err)
	assert.Equal(t, []string{"history/failure/bad.csv", "history/json/btc1.json"}, keys)

	obj, err := c.Store().GetObject(context.Background(), "history/json/btc1.json")
	require.NoError(t, err)
	assert.Equal(t, "btc1.json", obj.Headers["filename"])

	events := ft.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, EventStored, events[0].Type)
	assert.Equal(t, "history/json/btc1.json", events[0].Key)
	assert.Equal(t, 13, events[0].Size)
	assert.Equal(t, int64(2), c.objectsStored.Load())
}

func TestComponent_FallsBackToBatchID(t *testing.T) {
	gen := PortKeyGenerator("p")
	assert.Equal(t, "p/xml/b-1", gen.GenerateKey("xml", map[string]string{"batch.id": "b-1"}))
	assert.Equal(t, "p/xml/f.xml", gen.GenerateKey("xml", map[string]string{"filename": "f.xml", "batch.id": "b-1"}))
	assert.Contains(t, gen.GenerateKey("json", nil), "p/json/")
}

func TestComponent_API(t *testing.T) {
	c, ft := startedComponent(t, `{}`)
	ft.Deliver(t, "bars.xml", []byte("<Bar/>"), map[string]string{"filename": "btc1.xml"})
	store := c.Store()
	ctx := context.Background()

	resp := c.serve(ctx, store, []byte(`{"action":"list","prefix":"history/xml/"}`))
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, []string{"history/xml/btc1.xml"}, resp.Keys)

	resp = c.serve(ctx, store, []byte(`{"action":"get","key":"history/xml/btc1.xml"}`))
	require.True(t, resp.Success, resp.Error)
	require.NotNil(t, resp.Object)
	assert.Equal(t, "<Bar/>", string(resp.Object.Data))

	resp = c.serve(ctx, store, []byte(`{"action":"info","key":"history/xml/btc1.xml"}`))
	require.True(t, resp.Success, resp.Error)
	assert.Empty(t, resp.Object.Data)
	assert.Equal(t, uint64(6), resp.Object.Size)

	resp = c.serve(ctx, store, []byte(`{"action":"delete","key":"history/xml/btc1.xml"}`))
	require.True(t, resp.Success, resp.Error)

	resp = c.serve(ctx, store, []byte(`{"action":"get","key":"history/xml/btc1.xml"}`))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "key not found")

	events := ft.events(t)
	assert.Equal(t, EventDeleted, events[len(events)-1].Type)
}

func TestComponent_APIRejectsBadRequests(t *testing.T) {
	c, _ := startedComponent(t, `{}`)
	ctx := context.Background()

	resp := c.serve(ctx, c.Store(), []byte(`not json`))
	assert.False(t, resp.Success)

	resp = c.serve(ctx, c.Store(), []byte(`{"action":"store"}`))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown action")

	resp = c.serve(ctx, c.Store(), []byte(`{"action":"delete","key":"../x"}`))
	assert.False(t, resp.Success)

	assert.Zero(t, c.Health().ErrorCount, "invalid requests are not component errors")
}

func TestComponent_NoEventsPort(t *testing.T) {
	_, ft := startedComponent(t, `{"ports":{"inputs":[{"name":"json","type":"nats","subject":"bars.json"}],"outputs":[]}}`)

	ft.Deliver(t, "bars.json", []byte(`{}`), map[string]string{"filename": "a1.json"})
	assert.Zero(t, ft.Count(), "no events without an events port")
	assert.True(t, ft.Subscribed("bars.json"))
	assert.False(t, ft.Subscribed("storage.objectstore.api"))
}

func TestComponent_StopIsIdempotent(t *testing.T) {
	c, _ := startedComponent(t, `{}`)

	require.NoError(t, c.Stop(time.Second))
	require.NoError(t, c.Stop(time.Second))
	assert.False(t, c.Health().Healthy)
}
