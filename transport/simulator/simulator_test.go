package simulator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/transport"
	"github.com/arcology-network/unbase/transport/simulator"
)

type recorder struct {
	frames []transport.Frame
}

func (r *recorder) ReceiveFrame(ctx context.Context, f transport.Frame) {
	r.frames = append(r.frames, f)
}

func TestFrameNotDeliveredBeforeLatencyElapses(t *testing.T) {
	sim := simulator.New(simulator.WithLatency(3))
	a := memo.NewSlabID([]byte("a"))
	b := memo.NewSlabID([]byte("b"))

	rec := &recorder{}
	sim.Register(b, rec)

	sender := sim.SenderFor(a)
	require.NoError(t, sender.Send(context.Background(), b, transport.Frame{}))

	sim.AdvanceClock(context.Background(), 2)
	require.Empty(t, rec.frames, "delivery tick has not been reached yet")

	sim.AdvanceClock(context.Background(), 1)
	require.Len(t, rec.frames, 1)
}

func TestDeregisterDropsFutureDeliveries(t *testing.T) {
	sim := simulator.New(simulator.WithLatency(1))
	a := memo.NewSlabID([]byte("a"))
	b := memo.NewSlabID([]byte("b"))

	rec := &recorder{}
	sim.Register(b, rec)
	sim.Deregister(b)

	sender := sim.SenderFor(a)
	require.NoError(t, sender.Send(context.Background(), b, transport.Frame{}))

	sim.AdvanceClock(context.Background(), 5)
	require.Empty(t, rec.frames)
}

func TestPendingReflectsQueuedFrames(t *testing.T) {
	sim := simulator.New(simulator.WithLatency(10))
	a := memo.NewSlabID([]byte("a"))
	b := memo.NewSlabID([]byte("b"))
	sim.Register(b, &recorder{})

	sender := sim.SenderFor(a)
	require.NoError(t, sender.Send(context.Background(), b, transport.Frame{}))
	require.Equal(t, 1, sim.Pending())

	sim.AdvanceClock(context.Background(), 10)
	require.Equal(t, 0, sim.Pending())
}

func TestReturnAddressIsIdentity(t *testing.T) {
	sim := simulator.New()
	addr := memo.Address{Transport: "sim", Value: "x"}
	require.Equal(t, addr, sim.ReturnAddress(addr))
}
