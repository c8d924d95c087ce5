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

// Package ops defines the Operation/Bundle data model: a closed set of
// per-engine instruction variants, each knowing its own read and write
// address sets, plus the Bundle type the scheduler packs them into.
package ops

import mapset "github.com/deckarep/golang-set/v2"

// Engine names one of the VLIW core's dispatch pipelines.
type Engine int

const (
	EngineLoad Engine = iota
	EngineStore
	EngineAlu
	EngineValu
	EngineFlow
	EngineDebug
)

func (e Engine) String() string {
	switch e {
	case EngineLoad:
		return "load"
	case EngineStore:
		return "store"
	case EngineAlu:
		return "alu"
	case EngineValu:
		return "valu"
	case EngineFlow:
		return "flow"
	case EngineDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// EnginePriority orders engines for scheduling preference: get loads out
// early, then stores, then VALU/ALU arithmetic, then flow, with debug last
// (it is placed unconditionally regardless of priority).
var EnginePriority = map[Engine]int{
	EngineLoad:  0,
	EngineStore: 1,
	EngineValu:  2,
	EngineAlu:   3,
	EngineFlow:  4,
	EngineDebug: 5,
}

// Slot is one dispatch-slot operation. Every concrete variant below
// implements it; the set is closed, so a scheduler pre-pass over Slot values
// is exhaustive by construction rather than by runtime opcode dispatch.
type Slot interface {
	// Engine names the pipeline this slot dispatches on.
	Engine() Engine
	// Reads returns the scratch word addresses this op reads.
	Reads() mapset.Set[int]
	// Writes returns the scratch word addresses this op writes.
	Writes() mapset.Set[int]
}

// Op pairs an engine with its slot; Engine is redundant with Slot.Engine()
// but kept explicit to mirror the (engine, slot) pair spec.md's data model
// describes and to let callers group ops by engine without a type switch.
type Op struct {
	Engine Engine
	Slot   Slot
}

// Bundle is one VLIW dispatch cycle: an ordered list of slots per engine.
type Bundle map[Engine][]Slot

// NewBundle builds a single-op bundle, used by callers that bypass packing
// (header-load prologue, constant-init ops that must fire before any
// reference to the constant).
func NewBundle(engine Engine, slot Slot) Bundle {
	return Bundle{engine: {slot}}
}

func vrange(base, length int) mapset.Set[int] {
	s := mapset.NewThreadUnsafeSet[int]()
	for i := 0; i < length; i++ {
		s.Add(base + i)
	}
	return s
}

func single(addr int) mapset.Set[int] {
	return mapset.NewThreadUnsafeSet[int](addr)
}

func empty() mapset.Set[int] {
	return mapset.NewThreadUnsafeSet[int]()
}
