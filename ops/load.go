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

// LoadConst materializes an immediate value directly into Addr.
type LoadConst struct {
	Addr int
	Imm  int64
}

func (l LoadConst) Engine() Engine          { return EngineLoad }
func (l LoadConst) Reads() mapset.Set[int]  { return empty() }
func (l LoadConst) Writes() mapset.Set[int] { return single(l.Addr) }

// Load reads one scalar word from memory at the pointer held in PtrAddr and
// stores it at Addr.
type Load struct {
	Addr    int
	PtrAddr int
}

func (l Load) Engine() Engine          { return EngineLoad }
func (l Load) Reads() mapset.Set[int]  { return single(l.PtrAddr) }
func (l Load) Writes() mapset.Set[int] { return single(l.Addr) }

// VLoad reads a contiguous VLEN-word vector from memory at the pointer held
// in PtrAddr and stores it at VAddr.
type VLoad struct {
	VAddr   int
	PtrAddr int
}

func (l VLoad) Engine() Engine          { return EngineLoad }
func (l VLoad) Reads() mapset.Set[int]  { return single(l.PtrAddr) }
func (l VLoad) Writes() mapset.Set[int] { return vrange(l.VAddr, vlen) }

// LoadOffset reads one scalar word from memory at the pointer held in
// PtrAddr+LaneOffset and stores it at Base+LaneOffset. Used by the
// software-pipelined divergent gather, where each vector lane's scratch word
// lives at a consecutive address.
type LoadOffset struct {
	Base       int
	PtrAddr    int
	LaneOffset int
}

func (l LoadOffset) Engine() Engine          { return EngineLoad }
func (l LoadOffset) Reads() mapset.Set[int]  { return single(l.PtrAddr + l.LaneOffset) }
func (l LoadOffset) Writes() mapset.Set[int] { return single(l.Base + l.LaneOffset) }
