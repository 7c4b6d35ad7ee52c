package health

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/barstreams/component"
)

func TestConstructors(t *testing.T) {
	h := NewHealthy("history", "ok")
	assert.True(t, h.IsHealthy())
	assert.True(t, h.Healthy)
	assert.False(t, h.Timestamp.IsZero())

	d := NewDegraded("history", "slow")
	assert.True(t, d.IsDegraded())
	assert.False(t, d.Healthy)

	u := NewUnhealthy("history", "down")
	assert.True(t, u.IsUnhealthy())
	assert.False(t, u.Healthy)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("barstreams", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_DoesNotAliasInput(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	got := Aggregate("barstreams", subs)
	got.SubStatuses[0].Message = "changed"
	assert.Empty(t, subs[0].Message)
}

func TestWithSubStatus_SliceIsolation(t *testing.T) {
	base := NewHealthy("root", "")
	base.SubStatuses = make([]Status, 1, 4)

	left := base.WithSubStatus(NewHealthy("left", ""))
	right := base.WithSubStatus(NewHealthy("right", ""))

	assert.Equal(t, "left", left.SubStatuses[1].Component)
	assert.Equal(t, "right", right.SubStatuses[1].Component)
}

func TestFromComponentHealth(t *testing.T) {
	now := time.Now()

	healthy := FromComponentHealth("history", component.HealthStatus{Healthy: true, LastCheck: now, Uptime: time.Minute})
	assert.Equal(t, StatusHealthy, healthy.Status)
	require.NotNil(t, healthy.Metrics)
	assert.Equal(t, time.Minute, healthy.Metrics.Uptime)

	degraded := FromComponentHealth("history", component.HealthStatus{Healthy: true, ErrorCount: 2})
	assert.Equal(t, StatusDegraded, degraded.Status)

	down := FromComponentHealth("history", component.HealthStatus{
		LastError: "dial nats://10.0.0.5:4222 failed token=abc123",
	})
	assert.Equal(t, StatusUnhealthy, down.Status)
	assert.NotContains(t, down.Message, "10.0.0.5")
	assert.NotContains(t, down.Message, "abc123")
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		in       string
		contains string
		absent   string
	}{
		{"open /var/data/out/test1.json: permission denied", "[PATH]", "/var/data"},
		{"connect to 192.168.1.10 refused", "[IP]", "192.168.1.10"},
		{"listen :8088 in use", "[PORT]", ":8088"},
		{"auth failed password=hunter2", "[REDACTED]", "hunter2"},
		{"get https://example.com/x failed", "[URL]", "example.com"},
	}
	for _, tt := range tests {
		got := sanitizeErrorMessage(tt.in)
		assert.Contains(t, got, tt.contains, tt.in)
		assert.NotContains(t, got, tt.absent, tt.in)
	}
	assert.Empty(t, sanitizeErrorMessage(""))
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	m.Update("b", NewHealthy("ignored", "ok"))
	m.Update("a", NewDegraded("a", "slow"))

	got, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", got.Component)

	agg := m.AggregateHealth("barstreams")
	assert.Equal(t, StatusDegraded, agg.Status)
	require.Len(t, agg.SubStatuses, 2)
	assert.Equal(t, "a", agg.SubStatuses[0].Component)

	all := m.GetAll()
	delete(all, "a")
	_, ok = m.Get("a")
	assert.True(t, ok)

	m.Remove("a")
	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("c%d", i%5)
			m.Update(name, NewHealthy(name, ""))
			_ = m.AggregateHealth("barstreams")
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.GetAll(), 5)
}
