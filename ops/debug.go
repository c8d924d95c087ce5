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

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// DebugKey identifies one traced value for post-hoc comparison against a
// reference interpreter: which round, which item index, which named field
// of the computation, and (for hash stages) which stage number.
type DebugKey struct {
	Round int
	Item  int
	Field string
	Stage int // -1 when Field does not carry a stage number
}

func (k DebugKey) String() string {
	if k.Stage < 0 {
		return fmt.Sprintf("(round=%d item=%d %s)", k.Round, k.Item, k.Field)
	}
	return fmt.Sprintf("(round=%d item=%d %s stage=%d)", k.Round, k.Item, k.Field, k.Stage)
}

// DebugCompare traces a scalar value. Purely observational: no read or write
// set, so it never participates in hazard analysis and always places.
type DebugCompare struct {
	Addr int
	Key  DebugKey
}

func (DebugCompare) Engine() Engine          { return EngineDebug }
func (DebugCompare) Reads() mapset.Set[int]  { return empty() }
func (DebugCompare) Writes() mapset.Set[int] { return empty() }

// DebugVCompare traces a VLEN-wide vector value, one key per lane.
type DebugVCompare struct {
	VAddr int
	Keys  []DebugKey // len(Keys) == VLEN()
}

func (DebugVCompare) Engine() Engine          { return EngineDebug }
func (DebugVCompare) Reads() mapset.Set[int]  { return empty() }
func (DebugVCompare) Writes() mapset.Set[int] { return empty() }
