package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampio/canresolve/internal/model"
)

func TestNetworkBuilder_FreezeAssignsDenseBusIDs(t *testing.T) {
	b := New()
	b.AddBus("can1", 500000)
	b.AddBus("can2", 1000000)

	input := b.Freeze()
	require.Len(t, input.Buses, 2)
	assert.Equal(t, uint32(0), input.Buses[0].ID)
	assert.Equal(t, uint32(1), input.Buses[1].ID)
	assert.Equal(t, "can1", input.Buses[0].Name)
}

func TestNetworkBuilder_AddNode_IsIdempotentByName(t *testing.T) {
	b := New()
	h1 := b.AddNode("ecu")
	h2 := b.AddNode("ecu")
	assert.Equal(t, h1, h2)

	input := b.Freeze()
	assert.Len(t, input.Nodes, 1)
}

func TestNetworkBuilder_AddMessage_DuplicateNameFails(t *testing.T) {
	b := New()
	node := b.AddNode("ecu")
	spec := MessageSpec{
		Name:         "heartbeat",
		IDTemplate:   model.StdID{Value: 0x10},
		Receivers:    []NodeHandle{node},
		Transmitters: []NodeHandle{node},
		Usage:        model.Heartbeat{},
	}
	_, err := b.AddMessage(spec)
	require.NoError(t, err)

	_, err = b.AddMessage(spec)
	assert.Error(t, err)
}

func TestNetworkBuilder_AddMessage_UnknownNodeHandleFails(t *testing.T) {
	b := New()
	_, err := b.AddMessage(MessageSpec{
		Name:       "m",
		IDTemplate: model.StdID{Value: 1},
		Receivers:  []NodeHandle{NodeHandle(99)},
	})
	assert.Error(t, err)
}

func TestNetworkBuilder_AddMessage_UnknownBusHandleFails(t *testing.T) {
	b := New()
	bad := BusHandle(42)
	_, err := b.AddMessage(MessageSpec{
		Name:       "m",
		IDTemplate: model.StdID{Value: 1},
		BusHint:    &bad,
	})
	assert.Error(t, err)
}

func TestNetworkBuilder_AddMessage_DefaultsToEmptyPayload(t *testing.T) {
	b := New()
	msg, err := b.AddMessage(MessageSpec{
		Name:       "m",
		IDTemplate: model.StdID{Value: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, model.EmptyPayload{}, msg.Payload)
}
