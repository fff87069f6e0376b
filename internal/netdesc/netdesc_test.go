package netdesc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampio/canresolve/internal/model"
	"github.com/ampio/canresolve/internal/resolve"
)

func TestFromDocument_BuildsAResolvableNetwork(t *testing.T) {
	doc := Document{
		Buses: []busDoc{{Name: "can1", Baudrate: 500000}},
		Nodes: []string{"ecu", "dash"},
		Types: []typeDoc{
			{Name: "u8", Kind: "uint", Bits: 8},
		},
		Messages: []messageDoc{
			{
				Name:         "speed",
				ID:           idDoc{AnyStd: "realtime"},
				Receivers:    []string{"dash"},
				Transmitters: []string{"ecu"},
				Bus:          "can1",
				Payload:      payloadDoc{Fields: []fieldDoc{{Name: "kph", Type: "u8"}}},
				Usage:        usageDoc{Kind: "stream", Interval: "100ms"},
			},
			{
				Name:         "diag",
				ID:           idDoc{Std: uintPtr(0x123)},
				Receivers:    []string{"dash"},
				Transmitters: []string{"ecu"},
				Bus:          "can1",
				Usage:        usageDoc{Kind: "heartbeat"},
			},
		},
	}

	b, err := FromDocument(doc)
	require.NoError(t, err)

	input := b.Freeze()
	assert.Len(t, input.Buses, 1)
	assert.Equal(t, "can1", input.Buses[0].Name)
	assert.Len(t, input.Messages, 2)

	net, err := resolve.Resolve(input)
	require.NoError(t, err)
	assert.Len(t, net.Messages, 2)
}

func TestFromDocument_UnknownBusReferenceFails(t *testing.T) {
	doc := Document{
		Messages: []messageDoc{
			{Name: "m", ID: idDoc{Std: uintPtr(1)}, Bus: "nope"},
		},
	}
	_, err := FromDocument(doc)
	assert.Error(t, err)
}

func TestFromDocument_StructBeforeMemberTypeFails(t *testing.T) {
	doc := Document{
		Types: []typeDoc{
			{Name: "bad", Kind: "struct", Fields: []fieldDoc{{Name: "a", Type: "missing"}}},
		},
	}
	_, err := FromDocument(doc)
	assert.Error(t, err)
}

func TestParsePriority_RoundTripsAllFiveNames(t *testing.T) {
	cases := map[string]model.Priority{
		"realtime":  model.Realtime,
		"high":      model.High,
		"normal":    model.Normal,
		"low":       model.Low,
		"super_low": model.SuperLow,
	}
	for name, want := range cases {
		got, err := parsePriority(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parsePriority("urgent")
	assert.Error(t, err)
}

func uintPtr(v uint32) *uint32 { return &v }
