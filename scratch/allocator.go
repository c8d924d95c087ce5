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

// Package scratch manages the kernel's scratch-word arena: a monotone bump
// allocator plus scalar/vector constant caches so a constant value is ever
// materialized once no matter how many call sites ask for it.
package scratch

import (
	"errors"
	"fmt"

	"github.com/probechain/vkernelgen/ops"
	"github.com/probechain/vkernelgen/problem"
)

// ErrArenaOverflow is returned when an allocation would exceed the arena's
// configured capacity.
var ErrArenaOverflow = errors.New("scratch: out of scratch space")

// debugEntry names the symbolic owner of a scratch region.
type debugEntry struct {
	name   string
	length int
}

// Allocator is a bump allocator over the kernel's scratch word arena, plus
// dedup caches so repeated requests for the same constant return the same
// address instead of reserving new words.
//
// The zero value is not usable; use New.
type Allocator struct {
	vlen   int
	size   int
	ptr    int
	named  map[string]int
	debug  map[int]debugEntry
	scalar map[int64]int
	vector map[int64]int
}

// New creates an Allocator with the given vector length and total capacity.
func New(vlen, size int) *Allocator {
	return &Allocator{
		vlen:   vlen,
		size:   size,
		named:  make(map[string]int),
		debug:  make(map[int]debugEntry),
		scalar: make(map[int64]int),
		vector: make(map[int64]int),
	}
}

// NewDefault creates an Allocator sized per the problem package's declared
// vector length and scratch capacity.
func NewDefault() *Allocator {
	return New(problem.VLEN, problem.ScratchSize)
}

// Alloc reserves length contiguous words and returns the base address. If
// name is non-empty, the region is registered under that name for debug
// tracing and later lookup via Named. Alloc returns ErrArenaOverflow,
// wrapped with the requested size and the arena's capacity, if the arena is
// exhausted; the bump pointer is left unmoved so a caller that chooses to
// continue anyway does not compound the failure.
func (a *Allocator) Alloc(name string, length int) (int, error) {
	addr := a.ptr
	newPtr := addr + length
	if newPtr > a.size {
		return 0, fmt.Errorf("%w: requested %d words at %d, capacity %d", ErrArenaOverflow, length, addr, a.size)
	}
	if name != "" {
		a.named[name] = addr
		a.debug[addr] = debugEntry{name: name, length: length}
	}
	a.ptr = newPtr
	return addr, nil
}

// Named looks up a previously allocated region by name. The second return
// value is false if no region was ever allocated under that name.
func (a *Allocator) Named(name string) (int, bool) {
	addr, ok := a.named[name]
	return addr, ok
}

// ScratchConst returns the address of a scalar constant equal to value,
// materializing it with a LoadConst op the first time it is requested for
// any given value. Subsequent calls with the same value return the cached
// address and no init ops. An error here is always ErrArenaOverflow.
func (a *Allocator) ScratchConst(value int64) (int, []ops.Op, error) {
	if addr, ok := a.scalar[value]; ok {
		return addr, nil, nil
	}
	addr, err := a.Alloc("", 1)
	if err != nil {
		return 0, nil, err
	}
	a.scalar[value] = addr
	return addr, []ops.Op{{Engine: ops.EngineLoad, Slot: ops.LoadConst{Addr: addr, Imm: value}}}, nil
}

// ScratchConstNamed is ScratchConst but registers the backing word under name
// for debug tracing, used for constants the caller wants to recognize in a
// trace dump (e.g. the loop bound n_nodes) rather than an anonymous word.
func (a *Allocator) ScratchConstNamed(value int64, name string) (int, []ops.Op, error) {
	if addr, ok := a.scalar[value]; ok {
		return addr, nil, nil
	}
	addr, err := a.Alloc(name, 1)
	if err != nil {
		return 0, nil, err
	}
	a.scalar[value] = addr
	return addr, []ops.Op{{Engine: ops.EngineLoad, Slot: ops.LoadConst{Addr: addr, Imm: value}}}, nil
}

// VecConst returns the address of a VLEN-wide vector constant with every
// lane equal to value, broadcasting from the scalar constant the first time
// it is requested. Subsequent calls with the same value return the cached
// address and no init ops.
func (a *Allocator) VecConst(value int64) (int, []ops.Op, error) {
	if addr, ok := a.vector[value]; ok {
		return addr, nil, nil
	}
	scalarAddr, initOps, err := a.ScratchConst(value)
	if err != nil {
		return 0, nil, err
	}
	vecAddr, err := a.Alloc(fmt.Sprintf("vc_%d", value), a.vlen)
	if err != nil {
		return 0, nil, err
	}
	a.vector[value] = vecAddr
	allOps := append(initOps, ops.Op{Engine: ops.EngineValu, Slot: ops.VBroadcast{Vdst: vecAddr, Src: scalarAddr}})
	return vecAddr, allOps, nil
}

// Ptr returns the next free address, i.e. the number of words reserved so
// far.
func (a *Allocator) Ptr() int { return a.ptr }

// DebugInfo snapshots the symbolic scratch map for post-hoc trace
// annotation. It never influences scheduling or allocation.
func (a *Allocator) DebugInfo(buildTag string) problem.DebugInfo {
	m := make(map[int]problem.ScratchDebugEntry, len(a.debug))
	for addr, e := range a.debug {
		m[addr] = problem.ScratchDebugEntry{Name: e.name, Length: e.length}
	}
	return problem.DebugInfo{ScratchMap: m, BuildTag: buildTag}
}
