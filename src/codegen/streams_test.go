package codegen_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illinois-impact/puma-compiler/src/codegen"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// buildCrossTileChain wires a Store on physical tile 0 through a Send/Receive
// pair to a Load on physical tile 1 -- the shape every cross-tile output
// chain takes once the Partitioner's legalization pass has run and the
// Memory Allocator has given the Store its address operand.
func buildCrossTileChain(t *testing.T) (m *ir.Model, send, recv *ir.Operation) {
	t.Helper()
	m = ir.NewModel("chain")

	value := m.NewSetImmediate(1)
	value.SetPTile(0)
	value.SetPCore(0)
	value.SetRegister(100)

	addr := m.NewSetImmediate(10)
	addr.SetPTile(0)
	addr.SetPCore(0)
	addr.SetRegister(102)

	store := m.NewStore(value)
	store.SetPTile(0)
	store.SetPCore(0)
	store.SetTileMemoryAddress(10)
	m.AddOperand(store, addr)

	send = m.NewSend(store)
	send.SetPTile(0)

	recv = m.NewReceive(send)
	recv.SetPTile(1)
	recv.SetTileMemoryAddress(20)

	load := m.NewLoad(recv)
	load.SetPTile(1)
	load.SetPCore(0)
	load.SetRegister(101)

	return m, send, recv
}

func TestRenderSendResolvesReceivingPhysicalTile(t *testing.T) {
	m, send, _ := buildCrossTileChain(t)

	g := codegen.New(m, map[[2]int][]ir.OpID{}, map[int][]ir.OpID{0: {send.ID}}, 2)
	out := g.TileStream(0)

	require.True(t, strings.Contains(out, "target_addr=1"), "send must target the receiving tile's physical id, got %q", out)
}

func TestRenderReceiveResolvesSendingPhysicalTile(t *testing.T) {
	m, _, recv := buildCrossTileChain(t)

	g := codegen.New(m, map[[2]int][]ir.OpID{}, map[int][]ir.OpID{1: {recv.ID}}, 2)
	out := g.TileStream(1)

	require.True(t, strings.Contains(out, "vtile_id=0"), "receive must report the sending tile's physical id, got %q", out)
}

func TestCoreStreamRendersLinearizedOps(t *testing.T) {
	m, _, _ := buildCrossTileChain(t)

	coreOps := map[[2]int][]ir.OpID{}
	for _, op := range m.OrderedOps() {
		if op.Kind == ir.KindSetImmediate || op.Kind == ir.KindStore {
			key := [2]int{op.PTile, op.PCore}
			coreOps[key] = append(coreOps[key], op.ID)
		}
	}
	g := codegen.New(m, coreOps, map[int][]ir.OpID{}, 2)
	out := g.CoreStream(0, 0)

	require.True(t, strings.Contains(out, "set(d1=100"))
	require.True(t, strings.Contains(out, "store(d1=102, r1=100"))
	require.True(t, strings.Contains(out, "hlt()"))
}
