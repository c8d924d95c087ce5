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

// AluOp is a scalar arithmetic op: Dst = Src1 Op Src2, on scratch words.
type AluOp struct {
	Op   string
	Dst  int
	Src1 int
	Src2 int
}

func (a AluOp) Engine() Engine { return EngineAlu }

func (a AluOp) Reads() mapset.Set[int] { return mapset.NewThreadUnsafeSet(a.Src1, a.Src2) }

func (a AluOp) Writes() mapset.Set[int] { return single(a.Dst) }
