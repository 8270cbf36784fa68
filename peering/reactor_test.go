package peering_test

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
	db "github.com/tendermint/tm-db"

	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/peering"
	"github.com/arcology-network/unbase/slab"
	"github.com/arcology-network/unbase/transport/simulator"
)

type node struct {
	id      memo.SlabID
	slab    *slab.Slab
	reactor *peering.Reactor
	network *peering.Network
}

func newNode(t *testing.T, sim *simulator.Simulator, name string) *node {
	t.Helper()
	id := memo.NewSlabID([]byte(name))
	reactor := peering.NewReactor(id, sim.SenderFor(id))

	s := slab.New(id, db.NewMemDB(), slab.WithTransmitter(reactor))
	network := peering.NewNetwork(id, s)
	s.SetRootSeedHandler(network)
	reactor.Bind(s)
	s.Start()
	sim.Register(id, reactor)

	t.Cleanup(func() { _ = s.Close() })

	return &node{id: id, slab: s, reactor: reactor, network: network}
}

func TestPresenceHandshakeExchangesPeerStatus(t *testing.T) {
	defer leaktest.CheckTimeout(t, 2*time.Second)()

	sim := simulator.New(simulator.WithLatency(1))
	a := newNode(t, sim, "a")
	b := newNode(t, sim, "b")
	defer a.reactor.Close()
	defer b.reactor.Close()

	a.reactor.AddPeer(b.id)

	for i := 0; i < 10 && sim.Pending() > 0; i++ {
		sim.AdvanceClock(context.Background(), 1)
		time.Sleep(10 * time.Millisecond)
	}

	require.Contains(t, b.slab.KnownPeers(), a.id, "b should learn about a from the presence announcement")
}

func TestRootIndexSeedPropagatesOnPresence(t *testing.T) {
	defer leaktest.CheckTimeout(t, 2*time.Second)()

	sim := simulator.New(simulator.WithLatency(1))
	a := newNode(t, sim, "a")
	b := newNode(t, sim, "b")
	defer a.reactor.Close()
	defer b.reactor.Close()

	entity := memo.NewEntityID(memo.IndexNode)
	ref, err := a.slab.NewMemo(&entity, memo.NullHead, memo.NewFullyMaterializedBody(nil, nil, nil, memo.IndexNode))
	require.NoError(t, err)
	seed, err := memo.NewEntityHead(entity, ref)
	require.NoError(t, err)
	a.network.SeedSelf(seed)

	a.reactor.AddPeer(b.id)

	for i := 0; i < 10; i++ {
		sim.AdvanceClock(context.Background(), 1)
		time.Sleep(10 * time.Millisecond)
		if _, ok := b.network.CurrentSeed(); ok {
			break
		}
	}

	got, ok := b.network.CurrentSeed()
	require.True(t, ok, "b should have picked up a's root index seed via the presence handshake")
	require.Equal(t, seed.Refs()[0].MemoID, got.Refs()[0].MemoID)
}
