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

package ops

import mapset "github.com/deckarep/golang-set/v2"

// VSelect is a vector conditional select: Vdst[lane] = Vthen[lane] if
// Vcond[lane] != 0 else Velse[lane]. Used for the branchless index wrap
// (idx >= n_nodes -> 0) and the dual-tree node-value pick. The mask is a
// full vector, so the read set spans all three VLEN-wide operands.
type VSelect struct {
	Vdst  int
	Vcond int
	Vthen int
	Velse int
}

func (s VSelect) Engine() Engine { return EngineFlow }

func (s VSelect) Reads() mapset.Set[int] {
	return vrange(s.Vcond, vlen).Union(vrange(s.Vthen, vlen)).Union(vrange(s.Velse, vlen))
}

func (s VSelect) Writes() mapset.Set[int] { return vrange(s.Vdst, vlen) }

// Select is the scalar counterpart of VSelect.
type Select struct {
	Dst  int
	Cond int
	Then int
	Else int
}

func (s Select) Engine() Engine { return EngineFlow }

func (s Select) Reads() mapset.Set[int] {
	return mapset.NewThreadUnsafeSet(s.Cond, s.Then, s.Else)
}

func (s Select) Writes() mapset.Set[int] { return single(s.Dst) }

// AddImm performs Dst = Src + Imm on the flow engine. Not emitted by this
// generator's round bodies, which form addresses with AluOp.
type AddImm struct {
	Dst int
	Src int
	Imm int64
}

func (a AddImm) Engine() Engine          { return EngineFlow }
func (a AddImm) Reads() mapset.Set[int]  { return single(a.Src) }
func (a AddImm) Writes() mapset.Set[int] { return single(a.Dst) }

// Pause is a barrier the init phase emits once the memory header has been
// loaded; it has no scratch effect.
type Pause struct{}

func (Pause) Engine() Engine          { return EngineFlow }
func (Pause) Reads() mapset.Set[int]  { return empty() }
func (Pause) Writes() mapset.Set[int] { return empty() }

// CondJump reads the scalar condition at Addr and jumps to Target if it is
// non-zero. Not emitted by this generator (every branch in the kernel is
// expressed branchlessly via VSelect), but included so the Slot variant set
// matches spec.md's grammar exactly.
type CondJump struct {
	Addr   int
	Target int
}

func (j CondJump) Engine() Engine          { return EngineFlow }
func (j CondJump) Reads() mapset.Set[int]  { return single(j.Addr) }
func (j CondJump) Writes() mapset.Set[int] { return empty() }

// CondJumpRel is CondJump with a PC-relative target.
type CondJumpRel struct {
	Addr   int
	Offset int
}

func (j CondJumpRel) Engine() Engine          { return EngineFlow }
func (j CondJumpRel) Reads() mapset.Set[int]  { return single(j.Addr) }
func (j CondJumpRel) Writes() mapset.Set[int] { return empty() }
