package scratch

import (
	"testing"

	"github.com/probechain/vkernelgen/ops"
	"github.com/stretchr/testify/require"
)

func TestAllocMonotone(t *testing.T) {
	a := New(8, 1024)
	first, err := a.Alloc("x", 3)
	require.NoError(t, err)
	second, err := a.Alloc("y", 2)
	require.NoError(t, err)
	require.Equal(t, 0, first)
	require.Equal(t, 3, second)
	require.Equal(t, 5, a.Ptr())
}

func TestAllocNamedLookup(t *testing.T) {
	a := New(8, 1024)
	addr, err := a.Alloc("forest_values_p", 1)
	require.NoError(t, err)
	got, ok := a.Named("forest_values_p")
	require.True(t, ok)
	require.Equal(t, addr, got)

	_, ok = a.Named("no_such_name")
	require.False(t, ok)
}

func TestAllocOverflowReturnsError(t *testing.T) {
	a := New(8, 4)
	_, err := a.Alloc("", 5)
	require.ErrorIs(t, err, ErrArenaOverflow)
	require.Equal(t, 0, a.Ptr(), "bump pointer must not advance on a failed allocation")
}

func TestScratchConstDedup(t *testing.T) {
	a := New(8, 1024)
	addr1, instrs1, err := a.ScratchConst(42)
	require.NoError(t, err)
	require.Len(t, instrs1, 1)
	loadConst, ok := instrs1[0].Slot.(ops.LoadConst)
	require.True(t, ok)
	require.Equal(t, int64(42), loadConst.Imm)

	addr2, instrs2, err := a.ScratchConst(42)
	require.NoError(t, err)
	require.Equal(t, addr1, addr2)
	require.Empty(t, instrs2, "repeated request for the same constant must not re-materialize it")

	addr3, instrs3, err := a.ScratchConst(7)
	require.NoError(t, err)
	require.NotEqual(t, addr1, addr3)
	require.Len(t, instrs3, 1)
}

func TestVecConstDedupAndBroadcast(t *testing.T) {
	a := New(8, 1024)
	vecAddr, instrs, err := a.VecConst(5)
	require.NoError(t, err)
	require.Len(t, instrs, 2, "expected one scalar LoadConst plus one VBroadcast")
	_, isLoadConst := instrs[0].Slot.(ops.LoadConst)
	require.True(t, isLoadConst)
	broadcast, isBroadcast := instrs[1].Slot.(ops.VBroadcast)
	require.True(t, isBroadcast)
	require.Equal(t, vecAddr, broadcast.Vdst)

	vecAddr2, instrs2, err := a.VecConst(5)
	require.NoError(t, err)
	require.Equal(t, vecAddr, vecAddr2)
	require.Empty(t, instrs2)
}

func TestVecConstReusesExistingScalar(t *testing.T) {
	a := New(8, 1024)
	scalarAddr, _, err := a.ScratchConst(3)
	require.NoError(t, err)
	vecAddr, instrs, err := a.VecConst(3)
	require.NoError(t, err)
	require.Len(t, instrs, 1, "scalar already materialized, so only the broadcast should be emitted")
	broadcast := instrs[0].Slot.(ops.VBroadcast)
	require.Equal(t, scalarAddr, broadcast.Src)
	require.Equal(t, vecAddr, broadcast.Vdst)
}

func TestDebugInfoReflectsNamedAllocations(t *testing.T) {
	a := New(8, 1024)
	_, err := a.Alloc("rounds", 1)
	require.NoError(t, err)
	_, err = a.Alloc("", 4) // anonymous, must not appear in debug map
	require.NoError(t, err)
	info := a.DebugInfo("tag-1")
	require.Equal(t, "tag-1", info.BuildTag)
	entry, ok := info.ScratchMap[0]
	require.True(t, ok)
	require.Equal(t, "rounds", entry.Name)
	require.Equal(t, 1, entry.Length)
	require.Len(t, info.ScratchMap, 1)
}
