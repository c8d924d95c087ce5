package kernelbuilder

import (
	"fmt"
	"testing"

	"github.com/probechain/vkernelgen/ops"
	"github.com/probechain/vkernelgen/problem"
	"github.com/stretchr/testify/require"
)

func TestBuildKernelAccumulatesAllThreePhases(t *testing.T) {
	b := New()
	err := b.BuildKernel(4, 16, 2*ops.VLEN(), 4)
	require.NoError(t, err)
	require.NotEmpty(t, b.Bundles())
}

func TestBuildKernelRejectsSecondCall(t *testing.T) {
	b := New()
	require.NoError(t, b.BuildKernel(4, 16, ops.VLEN(), 1))
	err := b.BuildKernel(4, 16, ops.VLEN(), 1)
	require.Error(t, err)
}

func TestDebugInfoCarriesBuildTag(t *testing.T) {
	b := New()
	require.NoError(t, b.BuildKernel(4, 16, ops.VLEN(), 1))
	info := b.DebugInfo()
	require.Equal(t, b.BuildTag(), info.BuildTag)
	require.NotEmpty(t, info.ScratchMap)
}

func TestWithPipeDepthOptionIsApplied(t *testing.T) {
	b := New(WithPipeDepth(3), WithNTmpPools(4))
	require.NoError(t, b.BuildKernel(10, 1024, 2*ops.VLEN(), 13))
	require.NotEmpty(t, b.Bundles())

	names := map[string]bool{}
	for _, entry := range b.DebugInfo().ScratchMap {
		names[entry.Name] = true
	}
	require.True(t, names["idx_addr_3"], "pipe depth 3 rotates a 4-slot address ring")
	require.False(t, names["idx_addr_4"])
	require.True(t, names["v_tmp1_3"], "4 temp pools allocate v_tmp1_0..v_tmp1_3")
	require.False(t, names["v_tmp1_4"])
}

func TestScratchConstAndVecConstAppendInitBundlesOnce(t *testing.T) {
	b := New()
	first, err := b.ScratchConst(99)
	require.NoError(t, err)
	before := len(b.Bundles())
	second, err := b.ScratchConst(99)
	require.NoError(t, err)
	after := len(b.Bundles())
	require.Equal(t, first, second)
	require.Equal(t, before, after, "repeated request must not append a new init bundle")

	vFirst, err := b.VecConst(99)
	require.NoError(t, err)
	before = len(b.Bundles())
	vSecond, err := b.VecConst(99)
	require.NoError(t, err)
	after = len(b.Bundles())
	require.Equal(t, vFirst, vSecond)
	require.Equal(t, before, after, "repeated vector request must not append a new init bundle")
}

func TestBuildKernelRejectsBadBatchSize(t *testing.T) {
	b := New()
	err := b.BuildKernel(4, 16, ops.VLEN()+1, 1)
	require.ErrorIs(t, err, ErrInvariant)
}

// TestBundleInvariantsAcrossShapes builds the three end-to-end shapes and
// checks every emitted bundle against the per-bundle invariants: no engine
// exceeds its slot limit (debug unbounded), and no two slots write the same
// scratch word in one cycle.
func TestBundleInvariantsAcrossShapes(t *testing.T) {
	shapes := []struct {
		forestHeight, nNodes, batchSize, rounds int
	}{
		{10, 1024, 256, 16},
		{4, 16, ops.VLEN(), 6},
		{2, 4, 2 * ops.VLEN(), 4},
	}
	for _, shape := range shapes {
		shape := shape
		name := fmt.Sprintf("h%d_n%d_b%d_r%d", shape.forestHeight, shape.nNodes, shape.batchSize, shape.rounds)
		t.Run(name, func(t *testing.T) {
			b := New()
			require.NoError(t, b.BuildKernel(shape.forestHeight, shape.nNodes, shape.batchSize, shape.rounds))
			bundles := b.Bundles()
			require.NotEmpty(t, bundles)

			for bi, bundle := range bundles {
				writers := map[int]bool{}
				for engine, slots := range bundle {
					if engine != ops.EngineDebug {
						limit, ok := problem.SlotLimits[engine]
						require.True(t, ok, "bundle %d dispatches on unconfigured engine %s", bi, engine)
						require.LessOrEqual(t, len(slots), limit, "bundle %d exceeds %s slot limit", bi, engine)
					}
					for _, slot := range slots {
						for _, addr := range slot.Writes().ToSlice() {
							require.False(t, writers[addr], "bundle %d has two writers of scratch word %d", bi, addr)
							writers[addr] = true
						}
					}
				}
			}
		})
	}
}

func TestDeterministicBundleSequence(t *testing.T) {
	b1 := New()
	require.NoError(t, b1.BuildKernel(4, 16, 2*ops.VLEN(), 4))

	b2 := New()
	require.NoError(t, b2.BuildKernel(4, 16, 2*ops.VLEN(), 4))

	require.Equal(t, b1.Bundles(), b2.Bundles())
}
