package component

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPort_JSONRoundTrip(t *testing.T) {
	ports := []Port{
		{Name: "batches", Direction: DirectionInput, Config: NATSPort{Subject: "bars.batches", Queue: "history"}},
		{Name: "api", Direction: DirectionInput, Config: NATSRequestPort{Subject: "storage.bars.api", Timeout: "2s"}},
		{Name: "http", Direction: DirectionInput, Config: NetworkPort{Protocol: "http", Port: 8080}},
		{Name: "dir", Direction: DirectionOutput, Config: FilePort{Path: "/tmp/out"}},
		{Name: "bucket", Direction: DirectionOutput, Config: ObjectStorePort{Bucket: "bars", Prefix: "json"}},
		{Name: "bare", Direction: DirectionOutput},
	}

	for _, p := range ports {
		t.Run(p.Name, func(t *testing.T) {
			data, err := json.Marshal(p)
			require.NoError(t, err)

			var back Port
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, p, back)
		})
	}
}

func TestPort_UnmarshalUnknownType(t *testing.T) {
	var p Port
	err := json.Unmarshal([]byte(`{"name":"x","config":{"type":"carrier-pigeon","data":{}}}`), &p)
	assert.Error(t, err)
}

func TestPortTypes(t *testing.T) {
	assert.Equal(t, "nats:bars.json", NATSPort{Subject: "bars.json"}.ResourceID())
	assert.False(t, NATSPort{}.IsExclusive())
	assert.Equal(t, "tcp:0.0.0.0:9000", NetworkPort{Host: "0.0.0.0", Port: 9000}.ResourceID())
	assert.True(t, NetworkPort{}.IsExclusive())
	assert.Equal(t, "objectstore:bars", ObjectStorePort{Bucket: "bars"}.ResourceID())
	assert.Equal(t, "file:/data", FilePort{Path: "/data"}.ResourceID())
}

func TestMergePortConfigs(t *testing.T) {
	defaults := []Port{
		{Name: "json", Direction: DirectionOutput, Config: NATSPort{Subject: "bars.json"}},
		{Name: "xml", Direction: DirectionOutput, Config: NATSPort{Subject: "bars.xml"}},
	}
	overrides := []PortDefinition{
		{Name: "xml", Subject: "custom.xml"},
		{Name: "audit", Type: "nats-request", Subject: "audit.req"},
	}

	merged := MergePortConfigs(defaults, overrides, DirectionOutput)
	require.Len(t, merged, 3)
	assert.Equal(t, "bars.json", merged[0].Config.(NATSPort).Subject)
	assert.Equal(t, "custom.xml", merged[1].Config.(NATSPort).Subject)

	req := merged[2].Config.(NATSRequestPort)
	assert.Equal(t, "audit.req", req.Subject)
	assert.Equal(t, "1s", req.Timeout)
}

func TestPortConfig_Lookup(t *testing.T) {
	pc := &PortConfig{
		Inputs:  []PortDefinition{{Name: "batches", Subject: "bars.batches"}},
		Outputs: []PortDefinition{{Name: "failure", Subject: "bars.failure"}},
	}
	assert.Equal(t, "bars.batches", pc.Input("batches"))
	assert.Equal(t, "bars.failure", pc.Output("failure"))
	assert.Empty(t, pc.Output("json"))

	var none *PortConfig
	assert.Empty(t, none.Input("batches"))

	built := BuildPortFromDefinition(PortDefinition{Name: "store", Type: "objectstore", Subject: "bars"}, DirectionOutput)
	assert.Equal(t, ObjectStorePort{Bucket: "bars"}, built.Config)
	assert.Len(t, PortsFromDefinitions(pc.Inputs, DirectionInput), 1)
}
