package httpupload

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/testutil"
)

func testInput(t *testing.T, mutate func(*Config)) (*Input, *testutil.Transport) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	pub := testutil.NewTransport()
	return newInput(cfg, pub, component.Dependencies{}), pub
}

func post(t *testing.T, h http.Handler, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// loopback rewrites a wildcard listen address to 127.0.0.1.
func loopback(t *testing.T, addr string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	return net.JoinHostPort("127.0.0.1", port)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cases := map[string]func(*Config){
		"port":    func(c *Config) { c.HTTPPort = -1 },
		"size":    func(c *Config) { c.MaxUploadBytes = 0 },
		"rate":    func(c *Config) { c.RateLimit = 0 },
		"burst":   func(c *Config) { c.Burst = 0 },
		"publish": func(c *Config) { c.PublishTimeout = "0s" },
		"request": func(c *Config) { c.RequestTimeout = "x" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), errors.ErrInvalidConfig)
		})
	}
}

func TestUpload_RawBody(t *testing.T) {
	in, pub := testInput(t, nil)

	rec := post(t, in.Handler(), "/batches?name=btc-2021.csv", strings.NewReader(testutil.TwoRecordsCSV), "text/csv")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "btc-2021.csv", resp.Name)
	assert.Equal(t, len(testutil.TwoRecordsCSV), resp.Bytes)
	assert.NotEmpty(t, resp.ID)

	require.Len(t, pub.Published("bars.batches"), 1)
	assert.Equal(t, "bars.batches", pub.Published("bars.batches")[0].Subject)
	assert.Equal(t, testutil.TwoRecordsCSV, string(pub.Published("bars.batches")[0].Data))
	assert.Equal(t, "btc-2021.csv", pub.Published("bars.batches")[0].Headers["filename"])
	assert.Equal(t, resp.ID, pub.Published("bars.batches")[0].Headers["batch.id"])
}

func TestUpload_Multipart(t *testing.T) {
	in, pub := testInput(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", `C:\exports\bitstamp.csv`)
	require.NoError(t, err)
	_, err = part.Write([]byte(testutil.TwoRecordsCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := post(t, in.Handler(), "/batches", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, pub.Published("bars.batches"), 1)
	assert.Equal(t, "bitstamp.csv", pub.Published("bars.batches")[0].Headers["filename"])
	assert.Equal(t, testutil.TwoRecordsCSV, string(pub.Published("bars.batches")[0].Data))
}

func TestUpload_DefaultName(t *testing.T) {
	in, pub := testInput(t, nil)

	rec := post(t, in.Handler(), "/batches", strings.NewReader(testutil.TwoRecordsCSV), "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "upload-"+resp.ID+".csv", resp.Name)
	assert.Equal(t, resp.Name, pub.Published("bars.batches")[0].Headers["filename"])
}

func TestUpload_QueryNameIsBaseNamed(t *testing.T) {
	in, pub := testInput(t, nil)

	rec := post(t, in.Handler(), "/batches?name=../../etc/passwd", strings.NewReader(testutil.TwoRecordsCSV), "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "passwd", pub.Published("bars.batches")[0].Headers["filename"])
}

func TestUpload_Rejections(t *testing.T) {
	in, pub := testInput(t, func(c *Config) { c.MaxUploadBytes = 32 })

	rec := post(t, in.Handler(), "/batches", strings.NewReader(""), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "empty batch")

	rec = post(t, in.Handler(), "/batches", strings.NewReader(testutil.TwoRecordsCSV), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	assert.Zero(t, pub.Count())
	assert.Equal(t, int64(2), in.rejected.Load())
}

func TestUpload_MultipartWithoutFile(t *testing.T) {
	in, pub := testInput(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	rec := post(t, in.Handler(), "/batches", &body, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no file provided")
	assert.Zero(t, pub.Count())
}

func TestUpload_PublishFailure(t *testing.T) {
	in, pub := testInput(t, nil)
	pub.FailPublish(1, errors.ErrNoConnection)

	rec := post(t, in.Handler(), "/batches", strings.NewReader(testutil.TwoRecordsCSV), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, in.Health().ErrorCount)
}

func TestUpload_RateLimited(t *testing.T) {
	in, _ := testInput(t, func(c *Config) {
		c.RateLimit = 0.001
		c.Burst = 2
	})

	for i := 0; i < 2; i++ {
		rec := post(t, in.Handler(), "/batches", strings.NewReader(testutil.TwoRecordsCSV), "")
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := post(t, in.Handler(), "/batches", strings.NewReader(testutil.TwoRecordsCSV), "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestHealthEndpoint(t *testing.T) {
	in, _ := testInput(t, func(c *Config) { c.HTTPPort = 0 })

	rec := httptest.NewRecorder()
	in.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, in.Start(context.Background()))
	defer func() { _ = in.Stop(time.Second) }()

	resp, err := http.Get("http://" + loopback(t, in.Addr()) + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "httpupload", body["component"])
}

func TestStartStop(t *testing.T) {
	comp, err := CreateInput(json.RawMessage(`{"http_port":0}`), component.Dependencies{})
	require.NoError(t, err)
	assert.ErrorIs(t, comp.(*Input).Start(context.Background()), errors.ErrMissingConfig)

	in, _ := testInput(t, func(c *Config) { c.HTTPPort = 0 })
	require.NoError(t, in.Start(context.Background()))
	assert.ErrorIs(t, in.Start(context.Background()), errors.ErrAlreadyStarted)
	require.NoError(t, in.Stop(time.Second))
	require.NoError(t, in.Stop(time.Second))
	assert.False(t, in.Health().Healthy)
}
