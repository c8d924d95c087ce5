// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

// Package traversal builds the three-phase tree-walk kernel: a header-load
// and scratch-setup prologue, a sequence of per-round hash-and-descend
// bodies dispatched by round number to one of three strategies, and a
// finalization phase that stores the per-batch results back to memory.
//
// Round 0 and 11 broadcast a single tree's root value to every lane (every
// item starts at the same node). Round 1 and 12 select between two node
// values based on the index's low bit (the first branch point). Every other
// round gathers a distinct forest address per lane — indices have diverged —
// and pipelines that gather across batches in software so the load latency
// of one batch overlaps the hash-and-update compute of another.
package traversal

import (
	"fmt"

	"github.com/probechain/vkernelgen/hashgen"
	"github.com/probechain/vkernelgen/ops"
	"github.com/probechain/vkernelgen/scratch"
	"github.com/probechain/vkernelgen/sched"
)

// DefaultPipeDepth is the number of gather stages kept in flight at once in
// the general round's software pipeline.
const DefaultPipeDepth = 2

// DefaultNTmpPools is the number of rotating VLEN-wide temp vectors used by
// the index update and the dual-tree select, to break write-after-write
// dependencies between a round's batches.
const DefaultNTmpPools = 6

// headerVars names the memory header words, in the fixed order the kernel
// reads them during the init phase: addresses 0..6 of the simulator's
// memory image.
var headerVars = []string{
	"rounds", "n_nodes", "batch_size", "forest_height",
	"forest_values_p", "inp_indices_p", "inp_values_p",
}

// Builder emits round-by-round traversal ops against a shared allocator and
// hash emitter, then schedules each phase's op stream through sched.
// Builder holds no back-reference to a driver: it owns nothing but its own
// per-build state, populated by Build and consumed across the three phases.
type Builder struct {
	alloc  *scratch.Allocator
	hasher *hashgen.Builder
	limits map[ops.Engine]int

	pipeDepth int
	addrRing  int
	nTmpPools int

	numBatches   int
	vIdx         []int
	vVal         []int
	vNodeVal     []int
	vTmp1        []int
	vZero        int
	vOne         int
	vTwo         int
	vNNodes      int
	tmpAddr      int
	batchOffsets []int
	header       map[string]int

	// err is sticky: once set by any allocator, hasher, or scheduler call, every
	// subsequent helper on this Builder becomes a no-op so a single check in
	// Build reports the first failure instead of a cascade of downstream ones.
	err error
}

// New creates a Builder. limits is the per-engine slot-limit table the
// scheduler packs against.
func New(alloc *scratch.Allocator, hasher *hashgen.Builder, limits map[ops.Engine]int) *Builder {
	return &Builder{
		alloc:     alloc,
		hasher:    hasher,
		limits:    limits,
		pipeDepth: DefaultPipeDepth,
		addrRing:  DefaultPipeDepth + 1,
		nTmpPools: DefaultNTmpPools,
	}
}

// WithPipeDepth overrides the software-pipelining depth used by general
// (divergent-gather) rounds.
func (b *Builder) WithPipeDepth(depth int) *Builder {
	b.pipeDepth = depth
	b.addrRing = depth + 1
	return b
}

// WithNTmpPools overrides the size of the rotating temp-vector pool.
func (b *Builder) WithNTmpPools(n int) *Builder {
	b.nTmpPools = n
	return b
}

func (b *Builder) schedule(opsList []ops.Op) []ops.Bundle {
	if b.err != nil {
		return nil
	}
	bundles, err := sched.Schedule(opsList, true, b.limits)
	if err != nil {
		b.err = err
		return nil
	}
	return bundles
}

// reserve wraps the allocator's Alloc, recording a failure on the Builder
// instead of returning it, so every call site in the three phase builders
// below stays a single-value expression; Build checks b.err once per phase.
func (b *Builder) reserve(name string, length int) int {
	if b.err != nil {
		return 0
	}
	addr, err := b.alloc.Alloc(name, length)
	if err != nil {
		b.err = err
		return 0
	}
	return addr
}

func (b *Builder) scratchConst(value int64) (int, []ops.Op) {
	if b.err != nil {
		return 0, nil
	}
	addr, initOps, err := b.alloc.ScratchConst(value)
	if err != nil {
		b.err = err
		return 0, nil
	}
	return addr, initOps
}

func (b *Builder) vecConst(value int64) (int, []ops.Op) {
	if b.err != nil {
		return 0, nil
	}
	addr, initOps, err := b.alloc.VecConst(value)
	if err != nil {
		b.err = err
		return 0, nil
	}
	return addr, initOps
}

func (b *Builder) vhashInterleaved(batches []hashgen.BatchInfo, round int) []ops.Op {
	if b.err != nil {
		return nil
	}
	out, err := b.hasher.BuildVHashInterleaved(batches, round)
	if err != nil {
		b.err = err
		return nil
	}
	return out
}

func asBundles(opsList []ops.Op) []ops.Bundle {
	out := make([]ops.Bundle, 0, len(opsList))
	for _, op := range opsList {
		out = append(out, ops.NewBundle(op.Engine, op.Slot))
	}
	return out
}

func debugKeys(round, batchStart, vlen int, field string) []ops.DebugKey {
	keys := make([]ops.DebugKey, vlen)
	for lane := 0; lane < vlen; lane++ {
		keys[lane] = ops.DebugKey{Round: round, Item: batchStart + lane, Field: field, Stage: -1}
	}
	return keys
}

// Build emits the full init/rounds/finalization op stream for a kernel with
// the given tree forest shape, batch size, and round count. batchSize must
// be a multiple of ops.VLEN(); violating this, or exhausting the scratch
// arena or the scheduler partway through, is reported as an error rather
// than a panic.
func (b *Builder) Build(forestHeight, nNodes, batchSize, rounds int) (initBundles, roundBundles, finalBundles []ops.Bundle, err error) {
	vlen := ops.VLEN()
	if batchSize%vlen != 0 {
		return nil, nil, nil, fmt.Errorf("traversal: batch_size %d is not a multiple of VLEN %d", batchSize, vlen)
	}
	numBatches := batchSize / vlen
	b.numBatches = numBatches

	initBundles = b.buildInitialization(numBatches)
	if b.err != nil {
		return nil, nil, nil, b.err
	}
	roundBundles = b.buildRounds(rounds, numBatches)
	if b.err != nil {
		return nil, nil, nil, b.err
	}
	finalBundles = b.buildFinalization(numBatches)
	if b.err != nil {
		return nil, nil, nil, b.err
	}
	return initBundles, roundBundles, finalBundles, nil
}

func (b *Builder) buildInitialization(numBatches int) []ops.Bundle {
	vlen := ops.VLEN()
	var prologue []ops.Bundle

	tmp1 := b.reserve("tmp1", 1)
	headerAddr := make(map[string]int, len(headerVars))
	for _, v := range headerVars {
		headerAddr[v] = b.reserve(v, 1)
	}
	for i, v := range headerVars {
		prologue = append(prologue, ops.NewBundle(ops.EngineLoad, ops.LoadConst{Addr: tmp1, Imm: int64(i)}))
		prologue = append(prologue, ops.NewBundle(ops.EngineLoad, ops.Load{Addr: headerAddr[v], PtrAddr: tmp1}))
	}
	prologue = append(prologue, ops.NewBundle(ops.EngineFlow, ops.Pause{}))
	b.header = headerAddr

	b.vIdx = make([]int, numBatches)
	b.vVal = make([]int, numBatches)
	b.vNodeVal = make([]int, numBatches)
	for bi := 0; bi < numBatches; bi++ {
		b.vIdx[bi] = b.reserve(fmt.Sprintf("v_idx_%d", bi), vlen)
		b.vVal[bi] = b.reserve(fmt.Sprintf("v_val_%d", bi), vlen)
		b.vNodeVal[bi] = b.reserve(fmt.Sprintf("v_node_val_%d", bi), vlen)
	}
	b.vTmp1 = make([]int, b.nTmpPools)
	for p := 0; p < b.nTmpPools; p++ {
		b.vTmp1[p] = b.reserve(fmt.Sprintf("v_tmp1_%d", p), vlen)
	}

	var packed []ops.Op

	var zeroInit, oneInit, twoInit []ops.Op
	b.vZero, zeroInit = b.vecConst(0)
	b.vOne, oneInit = b.vecConst(1)
	b.vTwo, twoInit = b.vecConst(2)
	packed = append(packed, zeroInit...)
	packed = append(packed, oneInit...)
	packed = append(packed, twoInit...)

	b.vNNodes = b.reserve("v_n_nodes", vlen)
	packed = append(packed, ops.Op{Engine: ops.EngineValu, Slot: ops.VBroadcast{Vdst: b.vNNodes, Src: headerAddr["n_nodes"]}})

	b.tmpAddr = b.reserve("tmp_addr", 1)

	b.batchOffsets = make([]int, numBatches)
	for bi := 0; bi < numBatches; bi++ {
		addr, initOps := b.scratchConst(int64(bi * vlen))
		b.batchOffsets[bi] = addr
		packed = append(packed, initOps...)
	}

	for bi := 0; bi < numBatches; bi++ {
		packed = append(packed, ops.Op{Engine: ops.EngineAlu, Slot: ops.AluOp{Op: "+", Dst: b.tmpAddr, Src1: headerAddr["inp_indices_p"], Src2: b.batchOffsets[bi]}})
		packed = append(packed, ops.Op{Engine: ops.EngineLoad, Slot: ops.VLoad{VAddr: b.vIdx[bi], PtrAddr: b.tmpAddr}})
		packed = append(packed, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{VAddr: b.vIdx[bi], Keys: debugKeys(0, bi*vlen, vlen, "idx")}})
		packed = append(packed, ops.Op{Engine: ops.EngineAlu, Slot: ops.AluOp{Op: "+", Dst: b.tmpAddr, Src1: headerAddr["inp_values_p"], Src2: b.batchOffsets[bi]}})
		packed = append(packed, ops.Op{Engine: ops.EngineLoad, Slot: ops.VLoad{VAddr: b.vVal[bi], PtrAddr: b.tmpAddr}})
		packed = append(packed, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{VAddr: b.vVal[bi], Keys: debugKeys(0, bi*vlen, vlen, "val")}})
	}

	return append(prologue, b.schedule(packed)...)
}

func (b *Builder) buildRounds(rounds, numBatches int) []ops.Bundle {
	vlen := ops.VLEN()

	treeVals := [3]int{
		b.reserve("tree_0", 1),
		b.reserve("tree_1", 1),
		b.reserve("tree_2", 1),
	}
	vTmp3 := b.reserve("v_tmp3", vlen)

	idxAddr := make([]int, b.addrRing)
	for s := 0; s < b.addrRing; s++ {
		idxAddr[s] = b.reserve(fmt.Sprintf("idx_addr_%d", s), vlen)
	}

	var all []ops.Bundle
	for round := 0; round < rounds; round++ {
		var roundOps []ops.Op
		switch {
		case round == 0 || round == 11:
			roundOps = b.buildSingleTreeRound(round, numBatches, treeVals[0])
		case round == 1 || round == 12:
			roundOps = b.buildDualTreeRound(round, numBatches, treeVals[1], treeVals[2], vTmp3)
		default:
			roundOps = b.buildGeneralRound(round, numBatches, idxAddr)
		}
		all = append(all, b.schedule(roundOps)...)
	}
	return all
}

// indexUpdate appends the branchless index-advance shared by every round
// strategy: idx = idx*2 + ((val&1)+1), then wrap to 0 if idx has run past
// n_nodes. The multiply_add form folds the multiply and add of the index
// recurrence into a single VALU op.
func (b *Builder) indexUpdate(out []ops.Op, round, batchStart, batch int) []ops.Op {
	vlen := ops.VLEN()
	tp := batch % b.nTmpPools
	tmp := b.vTmp1[tp]
	out = append(out, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{VAddr: b.vVal[batch], Keys: debugKeys(round, batchStart, vlen, "hashed_val")}})
	out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: "&", Vdst: tmp, Vsrc1: b.vVal[batch], Vsrc2: b.vOne}})
	out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: "+", Vdst: tmp, Vsrc1: tmp, Vsrc2: b.vOne}})
	out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.MultiplyAdd{Vdst: b.vIdx[batch], VsrcA: b.vIdx[batch], VsrcB: b.vTwo, VsrcC: tmp}})
	out = append(out, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{VAddr: b.vIdx[batch], Keys: debugKeys(round, batchStart, vlen, "next_idx")}})
	out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: "<", Vdst: tmp, Vsrc1: b.vIdx[batch], Vsrc2: b.vNNodes}})
	out = append(out, ops.Op{Engine: ops.EngineFlow, Slot: ops.VSelect{Vdst: b.vIdx[batch], Vcond: tmp, Vthen: b.vIdx[batch], Velse: b.vZero}})
	out = append(out, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{VAddr: b.vIdx[batch], Keys: debugKeys(round, batchStart, vlen, "wrapped_idx")}})
	return out
}

func (b *Builder) hashBatches(numBatches int) []hashgen.BatchInfo {
	infos := make([]hashgen.BatchInfo, numBatches)
	for bi := 0; bi < numBatches; bi++ {
		infos[bi] = hashgen.BatchInfo{VVal: b.vVal[bi], VTmp1: b.vNodeVal[bi], VTmp2: b.vVal[bi], BatchStart: bi * ops.VLEN()}
	}
	return infos
}

func (b *Builder) buildSingleTreeRound(round, numBatches, tree0 int) []ops.Op {
	vlen := ops.VLEN()
	var out []ops.Op

	zeroAddr, zeroInit := b.scratchConst(0)
	out = append(out, zeroInit...)
	out = append(out, ops.Op{Engine: ops.EngineAlu, Slot: ops.AluOp{Op: "+", Dst: b.tmpAddr, Src1: b.header["forest_values_p"], Src2: zeroAddr}})
	out = append(out, ops.Op{Engine: ops.EngineLoad, Slot: ops.Load{Addr: tree0, PtrAddr: b.tmpAddr}})

	for bi := 0; bi < numBatches; bi++ {
		batchStart := bi * vlen
		out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.VBroadcast{Vdst: b.vNodeVal[bi], Src: tree0}})
		out = append(out, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{VAddr: b.vNodeVal[bi], Keys: debugKeys(round, batchStart, vlen, "node_val")}})
		out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: "^", Vdst: b.vVal[bi], Vsrc1: b.vVal[bi], Vsrc2: b.vNodeVal[bi]}})
	}

	out = append(out, b.vhashInterleaved(b.hashBatches(numBatches), round)...)

	for bi := 0; bi < numBatches; bi++ {
		out = b.indexUpdate(out, round, bi*vlen, bi)
	}
	return out
}

func (b *Builder) buildDualTreeRound(round, numBatches, tree1, tree2, vTmp3 int) []ops.Op {
	vlen := ops.VLEN()
	var out []ops.Op

	oneAddr, oneInit := b.scratchConst(1)
	out = append(out, oneInit...)
	out = append(out, ops.Op{Engine: ops.EngineAlu, Slot: ops.AluOp{Op: "+", Dst: b.tmpAddr, Src1: b.header["forest_values_p"], Src2: oneAddr}})
	out = append(out, ops.Op{Engine: ops.EngineLoad, Slot: ops.Load{Addr: tree1, PtrAddr: b.tmpAddr}})

	twoAddr, twoInit := b.scratchConst(2)
	out = append(out, twoInit...)
	out = append(out, ops.Op{Engine: ops.EngineAlu, Slot: ops.AluOp{Op: "+", Dst: b.tmpAddr, Src1: b.header["forest_values_p"], Src2: twoAddr}})
	out = append(out, ops.Op{Engine: ops.EngineLoad, Slot: ops.Load{Addr: tree2, PtrAddr: b.tmpAddr}})

	for bi := 0; bi < numBatches; bi++ {
		batchStart := bi * vlen
		tp := bi % b.nTmpPools
		tmp := b.vTmp1[tp]
		out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: "&", Vdst: tmp, Vsrc1: b.vIdx[bi], Vsrc2: b.vOne}})
		out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.VBroadcast{Vdst: vTmp3, Src: tree1}})
		out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.VBroadcast{Vdst: b.vNodeVal[bi], Src: tree2}})
		out = append(out, ops.Op{Engine: ops.EngineFlow, Slot: ops.VSelect{Vdst: b.vNodeVal[bi], Vcond: tmp, Vthen: vTmp3, Velse: b.vNodeVal[bi]}})
		out = append(out, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{VAddr: b.vNodeVal[bi], Keys: debugKeys(round, batchStart, vlen, "node_val")}})
		out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: "^", Vdst: b.vVal[bi], Vsrc1: b.vVal[bi], Vsrc2: b.vNodeVal[bi]}})
	}

	out = append(out, b.vhashInterleaved(b.hashBatches(numBatches), round)...)

	for bi := 0; bi < numBatches; bi++ {
		out = b.indexUpdate(out, round, bi*vlen, bi)
	}
	return out
}

// buildGeneralRound builds a divergent gather round: one scalar address
// computation and load per lane, staged b.pipeDepth batches ahead of the
// XOR-and-hash compute that consumes them, and rotated across b.addrRing
// generations of address scratch so a batch's in-flight load addresses are
// never overwritten by a later batch's address computation before the load
// reads them. Each lane's address and destination live at consecutive
// scratch words, which is exactly the shape LoadOffset addresses.
func (b *Builder) buildGeneralRound(round, numBatches int, idxAddr []int) []ops.Op {
	vlen := ops.VLEN()
	var out []ops.Op

	totalSteps := numBatches + b.pipeDepth
	for step := 0; step < totalSteps; step++ {
		addrBatch := step
		loadBatch := step - 1
		computeBatch := step - b.pipeDepth

		if addrBatch < numBatches {
			s := addrBatch % b.addrRing
			for lane := 0; lane < vlen; lane++ {
				out = append(out, ops.Op{Engine: ops.EngineAlu, Slot: ops.AluOp{
					Op:   "+",
					Dst:  idxAddr[s] + lane,
					Src1: b.header["forest_values_p"],
					Src2: b.vIdx[addrBatch] + lane,
				}})
			}
		}

		if loadBatch >= 0 && loadBatch < numBatches {
			s := loadBatch % b.addrRing
			for lane := 0; lane < vlen; lane++ {
				out = append(out, ops.Op{Engine: ops.EngineLoad, Slot: ops.LoadOffset{
					Base:       b.vNodeVal[loadBatch],
					PtrAddr:    idxAddr[s],
					LaneOffset: lane,
				}})
			}
			out = append(out, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{
				VAddr: b.vNodeVal[loadBatch],
				Keys:  debugKeys(round, loadBatch*vlen, vlen, "node_val"),
			}})
		}

		if computeBatch >= 0 && computeBatch < numBatches {
			out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{
				Op: "^", Vdst: b.vVal[computeBatch], Vsrc1: b.vVal[computeBatch], Vsrc2: b.vNodeVal[computeBatch],
			}})
		}
	}

	out = append(out, b.vhashInterleaved(b.hashBatches(numBatches), round)...)

	for bi := 0; bi < numBatches; bi++ {
		out = b.indexUpdate(out, round, bi*vlen, bi)
	}
	return out
}

func (b *Builder) buildFinalization(numBatches int) []ops.Bundle {
	var out []ops.Op
	for bi := 0; bi < numBatches; bi++ {
		out = append(out, ops.Op{Engine: ops.EngineAlu, Slot: ops.AluOp{Op: "+", Dst: b.tmpAddr, Src1: b.header["inp_indices_p"], Src2: b.batchOffsets[bi]}})
		out = append(out, ops.Op{Engine: ops.EngineStore, Slot: ops.VStore{PtrAddr: b.tmpAddr, VSrc: b.vIdx[bi]}})
		out = append(out, ops.Op{Engine: ops.EngineAlu, Slot: ops.AluOp{Op: "+", Dst: b.tmpAddr, Src1: b.header["inp_values_p"], Src2: b.batchOffsets[bi]}})
		out = append(out, ops.Op{Engine: ops.EngineStore, Slot: ops.VStore{PtrAddr: b.tmpAddr, VSrc: b.vVal[bi]}})
	}
	return b.schedule(out)
}
