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

// Store writes the scalar word in Src to memory at the pointer held in
// PtrAddr. Stores never write scratch (their effect is on external memory),
// so Writes is always empty.
type Store struct {
	PtrAddr int
	Src     int
}

func (s Store) Engine() Engine          { return EngineStore }
func (s Store) Reads() mapset.Set[int]  { return mapset.NewThreadUnsafeSet(s.PtrAddr, s.Src) }
func (s Store) Writes() mapset.Set[int] { return empty() }

// VStore writes the VLEN-word vector in VSrc to memory at the pointer held
// in PtrAddr.
type VStore struct {
	PtrAddr int
	VSrc    int
}

func (s VStore) Engine() Engine      { return EngineStore }
func (s VStore) Reads() mapset.Set[int] {
	return single(s.PtrAddr).Union(vrange(s.VSrc, vlen))
}
func (s VStore) Writes() mapset.Set[int] { return empty() }
