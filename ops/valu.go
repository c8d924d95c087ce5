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

// vlen is set once by the problem package's init wiring (see SetVLEN); the
// ops package cannot import problem directly (problem imports ops for
// SlotLimits' engine keys), so VALU/VSTORE/VLOAD address-range width is
// injected at process start.
var vlen = 8

// SetVLEN configures the vector width used to compute read/write address
// ranges for vector ops. Callers (problem.init, or tests) must call this
// before building any kernel if they use a non-default VLEN.
func SetVLEN(n int) { vlen = n }

// VLEN returns the currently configured vector width.
func VLEN() int { return vlen }

// ValuOp is a vector arithmetic op: Vdst = Vsrc1 Op Vsrc2, element-wise over
// VLEN lanes. vbroadcast is represented by the dedicated VBroadcast variant
// instead of overloading this one, since its read set is a single scalar
// word rather than a vector.
type ValuOp struct {
	Op    string
	Vdst  int
	Vsrc1 int
	Vsrc2 int
}

func (v ValuOp) Engine() Engine { return EngineValu }

func (v ValuOp) Reads() mapset.Set[int] {
	return vrange(v.Vsrc1, vlen).Union(vrange(v.Vsrc2, vlen))
}

func (v ValuOp) Writes() mapset.Set[int] { return vrange(v.Vdst, vlen) }

// MultiplyAdd computes Vdst = VsrcA*VsrcB + VsrcC element-wise, collapsing
// the "(val + c1) + (val << shift)" stage pattern (and the branchless index
// update's "idx*2 + ((val&1)+1)" step) into a single VALU op.
type MultiplyAdd struct {
	Vdst  int
	VsrcA int
	VsrcB int
	VsrcC int
}

func (m MultiplyAdd) Engine() Engine { return EngineValu }

func (m MultiplyAdd) Reads() mapset.Set[int] {
	return vrange(m.VsrcA, vlen).Union(vrange(m.VsrcB, vlen)).Union(vrange(m.VsrcC, vlen))
}

func (m MultiplyAdd) Writes() mapset.Set[int] { return vrange(m.Vdst, vlen) }

// VBroadcast replicates a single scalar word into all VLEN lanes of Vdst.
type VBroadcast struct {
	Vdst int
	Src  int
}

func (b VBroadcast) Engine() Engine { return EngineValu }

func (b VBroadcast) Reads() mapset.Set[int] { return single(b.Src) }

func (b VBroadcast) Writes() mapset.Set[int] { return vrange(b.Vdst, vlen) }
