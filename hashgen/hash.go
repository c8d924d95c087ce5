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

// Package hashgen emits the vectorized hash-mixing stage sequence that
// drives one round of tree traversal. Each of problem.HashStages describes
// val = (val Op1 Val1) Op2 (val Op3 Val3); stages whose shape is
// (v + c1) + (v << s) collapse algebraically into a single multiply_add,
// since (v + c1) + (v << s) = v*(1+2^s) + c1.
package hashgen

import (
	"github.com/probechain/vkernelgen/ops"
	"github.com/probechain/vkernelgen/problem"
	"github.com/probechain/vkernelgen/scratch"
)

// Builder emits hash-stage operations against a shared scratch allocator, so
// stage constants are cached and broadcast exactly once no matter how many
// rounds or batches reference them.
type Builder struct {
	alloc *scratch.Allocator
}

// New creates a Builder that allocates constants through alloc.
func New(alloc *scratch.Allocator) *Builder {
	return &Builder{alloc: alloc}
}

// fitsMultiplyAdd reports whether a hash stage has the shape
// (v + val1) + (v << val3), which collapses to a single multiply_add.
func fitsMultiplyAdd(s problem.HashStage) bool {
	return s.Op1 == "+" && s.Op2 == "+" && s.Op3 == "<<"
}

// debugKeys builds one DebugKey per lane of a VLEN-wide batch for a given
// hash stage index.
func debugKeys(roundNum, batchStart, vlen, stageIdx int) []ops.DebugKey {
	keys := make([]ops.DebugKey, vlen)
	for lane := 0; lane < vlen; lane++ {
		keys[lane] = ops.DebugKey{Round: roundNum, Item: batchStart + lane, Field: "hash_stage", Stage: stageIdx}
	}
	return keys
}

// BuildVHash emits the full hash-stage sequence for a single batch in
// place: vVal is read and overwritten with the hashed result, vTmp1/vTmp2
// are scratch workspace reused across stages. roundNum and batchStart only
// label the debug trace.
func (b *Builder) BuildVHash(vVal, vTmp1, vTmp2, roundNum, batchStart int) ([]ops.Op, error) {
	var out []ops.Op
	for hi, stage := range problem.HashStages {
		if fitsMultiplyAdd(stage) {
			multiplier := int64(1) + (int64(1) << uint(stage.Val3))
			vcMult, multInit, err := b.alloc.VecConst(multiplier)
			if err != nil {
				return nil, err
			}
			vc1, c1Init, err := b.alloc.VecConst(stage.Val1)
			if err != nil {
				return nil, err
			}
			out = append(out, multInit...)
			out = append(out, c1Init...)
			out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.MultiplyAdd{Vdst: vVal, VsrcA: vVal, VsrcB: vcMult, VsrcC: vc1}})
		} else {
			vc1, c1Init, err := b.alloc.VecConst(stage.Val1)
			if err != nil {
				return nil, err
			}
			vc3, c3Init, err := b.alloc.VecConst(stage.Val3)
			if err != nil {
				return nil, err
			}
			out = append(out, c1Init...)
			out = append(out, c3Init...)
			out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: stage.Op1, Vdst: vTmp1, Vsrc1: vVal, Vsrc2: vc1}})
			out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: stage.Op3, Vdst: vTmp2, Vsrc1: vVal, Vsrc2: vc3}})
			out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: stage.Op2, Vdst: vVal, Vsrc1: vTmp1, Vsrc2: vTmp2}})
		}
		out = append(out, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{
			VAddr: vVal,
			Keys:  debugKeys(roundNum, batchStart, ops.VLEN(), hi),
		}})
	}
	return out, nil
}

// BatchInfo names one batch's vector workspace for interleaved hashing.
type BatchInfo struct {
	VVal       int
	VTmp1      int
	VTmp2      int
	BatchStart int
}

// BuildVHashInterleaved emits the hash-stage sequence across several batches
// at once, stage-by-stage rather than batch-by-batch. For the general
// three-op stages this strictly stages op1/op3 across every batch before any
// batch's op2, since op2 depends on both and batches are otherwise
// independent — giving the scheduler two full cycles' worth of
// mutually-independent VALU work per stage instead of one. The
// multiply_add stages have no such dependency to exploit; each batch's
// multiply_add and debug trace are simply emitted back to back.
func (b *Builder) BuildVHashInterleaved(batches []BatchInfo, roundNum int) ([]ops.Op, error) {
	var out []ops.Op
	for hi, stage := range problem.HashStages {
		if fitsMultiplyAdd(stage) {
			multiplier := int64(1) + (int64(1) << uint(stage.Val3))
			vcMult, multInit, err := b.alloc.VecConst(multiplier)
			if err != nil {
				return nil, err
			}
			vc1, c1Init, err := b.alloc.VecConst(stage.Val1)
			if err != nil {
				return nil, err
			}
			out = append(out, multInit...)
			out = append(out, c1Init...)
			for _, batch := range batches {
				out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.MultiplyAdd{Vdst: batch.VVal, VsrcA: batch.VVal, VsrcB: vcMult, VsrcC: vc1}})
				out = append(out, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{
					VAddr: batch.VVal,
					Keys:  debugKeys(roundNum, batch.BatchStart, ops.VLEN(), hi),
				}})
			}
		} else {
			vc1, c1Init, err := b.alloc.VecConst(stage.Val1)
			if err != nil {
				return nil, err
			}
			vc3, c3Init, err := b.alloc.VecConst(stage.Val3)
			if err != nil {
				return nil, err
			}
			out = append(out, c1Init...)
			out = append(out, c3Init...)
			for _, batch := range batches {
				out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: stage.Op1, Vdst: batch.VTmp1, Vsrc1: batch.VVal, Vsrc2: vc1}})
				out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: stage.Op3, Vdst: batch.VTmp2, Vsrc1: batch.VVal, Vsrc2: vc3}})
			}
			for _, batch := range batches {
				out = append(out, ops.Op{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: stage.Op2, Vdst: batch.VVal, Vsrc1: batch.VTmp1, Vsrc2: batch.VTmp2}})
				out = append(out, ops.Op{Engine: ops.EngineDebug, Slot: ops.DebugVCompare{
					VAddr: batch.VVal,
					Keys:  debugKeys(roundNum, batch.BatchStart, ops.VLEN(), hi),
				}})
			}
		}
	}
	return out, nil
}

// BuildValuSelect emits a branchless select entirely on the VALU engine:
// vdst = velse + vcond*(vthen-velse), which equals vthen where vcond is 1
// and velse where vcond is 0. vtmp is scratch workspace for the
// difference term. This is an arithmetic alternative to ops.VSelect (which
// dispatches on the flow engine); the traversal emitter uses ops.VSelect for
// every lane select in this generator, since flow has spare slot capacity
// where VALU is the scarce resource during hash rounds, so this path is
// unwired but kept available for a VALU-heavy round strategy.
func BuildValuSelect(vdst, vcond, vthen, velse, vtmp int) []ops.Op {
	return []ops.Op{
		{Engine: ops.EngineValu, Slot: ops.ValuOp{Op: "-", Vdst: vtmp, Vsrc1: vthen, Vsrc2: velse}},
		{Engine: ops.EngineValu, Slot: ops.MultiplyAdd{Vdst: vdst, VsrcA: vcond, VsrcB: vtmp, VsrcC: velse}},
	}
}
