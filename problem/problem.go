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

// Package problem holds the kernel-shape constants and hash-stage table that
// the code generator is built against: vector width, scratch arena capacity,
// per-engine VLIW slot limits, and the hash-mixing stage table. These values
// are supplied by the surrounding system in the deployed form of this
// generator (the simulator and reference kernel that consume its output); a
// concrete, internally-consistent instantiation lives here so this module
// builds and tests standalone.
package problem

import "github.com/probechain/vkernelgen/ops"

// VLEN is the number of lanes in a vector scratch slot.
const VLEN = 8

func init() {
	// ops computes vector read/write address ranges and needs VLEN; wiring
	// it here keeps ops free of a dependency on problem (which itself
	// depends on ops.Engine for SlotLimits' keys).
	ops.SetVLEN(VLEN)
}

// ScratchSize is the arena's total word capacity. It must comfortably hold
// the header, per-batch vector state, the rotating temp pools, and the
// address-ring scratch used by the general gather round, for every batch
// count this generator is exercised with in its test suite.
const ScratchSize = 1 << 16

// SlotLimits maps each engine to its maximum number of dispatch slots per
// bundle. ops.EngineDebug is intentionally absent: debug ops are hazard-free
// and unlimited per cycle, and the scheduler special-cases its absence here
// rather than encoding "unbounded" as a sentinel value.
var SlotLimits = map[ops.Engine]int{
	ops.EngineLoad:  2,
	ops.EngineStore: 1,
	ops.EngineAlu:   2,
	ops.EngineValu:  2,
	ops.EngineFlow:  1,
}

// HashStage is one stage of the hash-mixing function: the round computes
// val = (val Op1 Val1) Op2 (val Op3 Val3).
type HashStage struct {
	Op1  string
	Val1 int64
	Op2  string
	Op3  string
	Val3 int64
}

// HashStages is the ordered, immutable hash-round table. Stages 0, 2 and 4
// fit the multiply-add rewrite (Op1="+", Op2="+", Op3="<<"); stages 1, 3
// and 5 exercise the general three-op path.
var HashStages = []HashStage{
	{Op1: "+", Val1: 0x7ed55d16, Op2: "+", Op3: "<<", Val3: 12},
	{Op1: "^", Val1: 0xc761c23c, Op2: "^", Op3: ">>", Val3: 19},
	{Op1: "+", Val1: 0x165667b1, Op2: "+", Op3: "<<", Val3: 5},
	{Op1: "+", Val1: 0xd3a2646c, Op2: "^", Op3: "<<", Val3: 9},
	{Op1: "+", Val1: 0xfd7046c5, Op2: "+", Op3: "<<", Val3: 3},
	{Op1: "^", Val1: 0xb55a4f09, Op2: "^", Op3: ">>", Val3: 16},
}

// ScratchDebugEntry names the symbolic owner of a scratch region, for
// post-hoc trace annotation.
type ScratchDebugEntry struct {
	Name   string
	Length int
}

// DebugInfo is produced from the allocator's debug map after a build
// completes; it never influences scheduling.
type DebugInfo struct {
	ScratchMap map[int]ScratchDebugEntry
	// BuildTag identifies one build_kernel invocation (see kernelbuilder),
	// so traces from repeated sweeps over kernel shapes can be told apart.
	BuildTag string
}
