package traversal

import (
	"testing"

	"github.com/probechain/vkernelgen/hashgen"
	"github.com/probechain/vkernelgen/ops"
	"github.com/probechain/vkernelgen/problem"
	"github.com/probechain/vkernelgen/scratch"
	"github.com/stretchr/testify/require"
)

func newBuilder() *Builder {
	alloc := scratch.NewDefault()
	hasher := hashgen.New(alloc)
	return New(alloc, hasher, problem.SlotLimits)
}

func TestBuildHeaderPrologueIsTrivialBundles(t *testing.T) {
	b := newBuilder()
	initBundles, _, _, err := b.Build(4, 16, ops.VLEN(), 1)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(initBundles), 15, "7 header words * 2 ops + 1 pause, at minimum")
	for i := 0; i < 14; i += 2 {
		loadConst, ok := initBundles[i][ops.EngineLoad]
		require.True(t, ok)
		require.Len(t, loadConst, 1)
		_, isLoadConst := loadConst[0].(ops.LoadConst)
		require.True(t, isLoadConst)
	}
	pauseBundle := initBundles[14]
	flowSlots, ok := pauseBundle[ops.EngineFlow]
	require.True(t, ok)
	require.Len(t, flowSlots, 1)
	_, isPause := flowSlots[0].(ops.Pause)
	require.True(t, isPause)
}

func TestBuildSingleBatchCollapse(t *testing.T) {
	b := newBuilder()
	_, roundBundles, finalBundles, err := b.Build(4, 16, ops.VLEN(), 1)
	require.NoError(t, err)
	require.NotEmpty(t, roundBundles)
	require.NotEmpty(t, finalBundles)
	require.Equal(t, 1, b.numBatches)
}

func TestBuildRoundsOneExercisesOnlySingleTreeRound(t *testing.T) {
	b := newBuilder()
	_, roundBundles, _, err := b.Build(4, 16, ops.VLEN(), 1)
	require.NoError(t, err)

	var sawVBroadcastFromScalarTree bool
	for _, bundle := range roundBundles {
		for _, slot := range bundle[ops.EngineValu] {
			if vb, ok := slot.(ops.VBroadcast); ok && vb.Vdst == b.vNodeVal[0] {
				sawVBroadcastFromScalarTree = true
			}
		}
	}
	require.True(t, sawVBroadcastFromScalarTree, "round 0 must broadcast the single tree's root value")
}

func TestBuildRoundsManyExercisesAllStrategies(t *testing.T) {
	b := newBuilder()
	_, roundBundles, _, err := b.Build(10, 1024, 2*ops.VLEN(), 16)
	require.NoError(t, err)
	require.NotEmpty(t, roundBundles)

	var sawVSelect, sawGeneralGatherLoad bool
	for _, bundle := range roundBundles {
		for _, slot := range bundle[ops.EngineFlow] {
			if _, ok := slot.(ops.VSelect); ok {
				sawVSelect = true
			}
		}
		for _, slot := range bundle[ops.EngineLoad] {
			// single/dual-tree rounds load scalars through the shared
			// tmp_addr scratch word; only the general round's gather emits
			// per-lane LoadOffset ops against the address ring.
			if _, ok := slot.(ops.LoadOffset); ok {
				sawGeneralGatherLoad = true
			}
		}
	}
	require.True(t, sawVSelect, "dual-tree round (1, 12) or index-wrap select must appear somewhere")
	require.True(t, sawGeneralGatherLoad, "a general (non-special) round must appear among 16 rounds")
}

func TestBuildReturnsErrorOnBatchSizeNotMultipleOfVLEN(t *testing.T) {
	b := newBuilder()
	_, _, _, err := b.Build(4, 16, ops.VLEN()+1, 1)
	require.Error(t, err)
}

func TestBuildDeterministic(t *testing.T) {
	first := newBuilder()
	_, firstRounds, _, err := first.Build(4, 16, 2*ops.VLEN(), 4)
	require.NoError(t, err)

	second := newBuilder()
	_, secondRounds, _, err := second.Build(4, 16, 2*ops.VLEN(), 4)
	require.NoError(t, err)

	require.Equal(t, firstRounds, secondRounds)
}

func TestFinalizationStoresEveryBatch(t *testing.T) {
	b := newBuilder()
	_, _, finalBundles, err := b.Build(4, 16, 3*ops.VLEN(), 2)
	require.NoError(t, err)

	storeCount := 0
	for _, bundle := range finalBundles {
		storeCount += len(bundle[ops.EngineStore])
	}
	require.Equal(t, 2*3, storeCount, "2 vstores (idx, val) per batch, 3 batches")
}
