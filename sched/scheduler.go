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

// Package sched implements the static list scheduler that packs a flat
// sequence of operations into VLIW bundles: a pre-pass computes RAW/WAW/WAR
// hazards from each op's Reads()/Writes() sets, a critical-path height
// orders candidates, and an iterative per-cycle fill lets same-cycle WAR
// dependencies settle before moving on.
package sched

import (
	"errors"
	"fmt"
	"sort"

	"github.com/probechain/vkernelgen/ops"
)

// ErrDependencyCycle is returned when the ready set empties with unscheduled
// ops remaining — the hazard graph built from the input has a cycle, which
// can only happen if a caller fed ops whose Reads()/Writes() are internally
// inconsistent with program order.
type ErrDependencyCycle struct {
	Remaining int
}

func (e ErrDependencyCycle) Error() string {
	return fmt.Sprintf("sched: %d operations remain unscheduled with an empty ready set (cyclic dependency)", e.Remaining)
}

// ErrEngineOverflow is returned when an op targets an engine whose
// configured slot limit is zero; such an op can never be placed regardless
// of hazards, and would otherwise stall the scheduler until it fell through
// to the generic dependency-cycle case, mislabeling the actual cause.
var ErrEngineOverflow = errors.New("sched: op targets an engine with a zero slot limit")

// Schedule packs opsList into bundles. When vliw is false, every op gets its
// own single-slot bundle (trivial mode); when true, ops are packed subject
// to limits, honoring RAW/WAW/WAR hazards computed from each op's Slot.
//
// limits maps engine to its maximum slot count per bundle; an engine absent
// from limits is treated as a limit of 1. ops.EngineDebug is always
// unbounded and hazard-free regardless of limits.
//
// Schedule returns ErrEngineOverflow if an op targets a zero-limit engine,
// or ErrDependencyCycle if the op stream otherwise cannot be fully
// scheduled — both are construction-time invariant violations, not
// recoverable conditions, but are reported to the caller rather than
// panicking.
func Schedule(opsList []ops.Op, vliw bool, limits map[ops.Engine]int) ([]ops.Bundle, error) {
	if !vliw {
		return scheduleTrivial(opsList), nil
	}
	return schedulePacked(opsList, limits)
}

func scheduleTrivial(opsList []ops.Op) []ops.Bundle {
	bundles := make([]ops.Bundle, 0, len(opsList))
	for _, op := range opsList {
		bundles = append(bundles, ops.NewBundle(op.Engine, op.Slot))
	}
	return bundles
}

func engineLimit(limits map[ops.Engine]int, e ops.Engine) int {
	if l, ok := limits[e]; ok {
		return l
	}
	return 1
}

// latencyWeights precomputes weight(engine) = ceil(base_limit/engine_limit)
// for every engine that appears with a configured limit, biasing load 2x and
// clamping flow/store to the load weight, per spec.md's scarcity-derived
// variant (the intended one; see DESIGN.md for the discarded fixed-weight
// alternative).
func latencyWeights(limits map[ops.Engine]int) map[ops.Engine]int {
	baseLimit := 1
	for e, l := range limits {
		if e == ops.EngineDebug {
			continue
		}
		if l > baseLimit {
			baseLimit = l
		}
	}
	ceilDiv := func(a, b int) int { return (a + b - 1) / b }

	loadLimit := engineLimit(limits, ops.EngineLoad)
	loadWeight := ceilDiv(baseLimit, loadLimit)
	loadBias := loadWeight * 2

	weights := map[ops.Engine]int{
		ops.EngineDebug: 0,
		ops.EngineLoad:  loadBias,
	}
	for _, e := range []ops.Engine{ops.EngineStore, ops.EngineAlu, ops.EngineValu, ops.EngineFlow} {
		w := ceilDiv(baseLimit, engineLimit(limits, e))
		if e == ops.EngineFlow || e == ops.EngineStore {
			if w > loadWeight {
				w = loadWeight
			}
		}
		weights[e] = w
	}
	return weights
}

func schedulePacked(opsList []ops.Op, limits map[ops.Engine]int) ([]ops.Bundle, error) {
	n := len(opsList)
	if n == 0 {
		return nil, nil
	}

	for _, op := range opsList {
		if op.Engine == ops.EngineDebug {
			continue
		}
		if engineLimit(limits, op.Engine) <= 0 {
			return nil, fmt.Errorf("%w: engine %s", ErrEngineOverflow, op.Engine)
		}
	}

	reads := make([]map[int]bool, n)
	writes := make([]map[int]bool, n)
	for i, op := range opsList {
		reads[i] = toSet(op.Slot.Reads().ToSlice())
		writes[i] = toSet(op.Slot.Writes().ToSlice())
	}

	// predHard[i]: RAW/WAW predecessors, must land strictly earlier.
	// predWar[i]: WAR predecessors, may land in the same bundle.
	predHard := make([]map[int]bool, n)
	predWar := make([]map[int]bool, n)
	for i := range opsList {
		predHard[i] = map[int]bool{}
		predWar[i] = map[int]bool{}
	}

	lastWrite := map[int]int{}
	lastRead := map[int]map[int]bool{}
	for i, op := range opsList {
		if op.Engine == ops.EngineDebug {
			continue
		}
		for addr := range reads[i] {
			if j, ok := lastWrite[addr]; ok {
				predHard[i][j] = true
			}
		}
		for addr := range writes[i] {
			if j, ok := lastWrite[addr]; ok {
				predHard[i][j] = true
			}
		}
		for addr := range writes[i] {
			if readers, ok := lastRead[addr]; ok {
				for reader := range readers {
					if reader < i {
						predWar[i][reader] = true
					}
				}
			}
		}
		for addr := range writes[i] {
			lastWrite[addr] = i
		}
		for addr := range reads[i] {
			if lastRead[addr] == nil {
				lastRead[addr] = map[int]bool{}
			}
			lastRead[addr][i] = true
		}
	}

	depCount := make([]int, n)
	succ := make([]map[int]bool, n)
	for i := range opsList {
		succ[i] = map[int]bool{}
	}
	for i := range opsList {
		depCount[i] = len(predHard[i])
		for p := range predHard[i] {
			succ[p][i] = true
		}
	}

	weights := latencyWeights(limits)
	height := make([]int, n)
	for i := n - 1; i >= 0; i-- {
		w := weights[opsList[i].Engine]
		best := 0
		for s := range succ[i] {
			if height[s] > best {
				best = height[s]
			}
		}
		height[i] = w + best
	}

	scheduled := make([]bool, n)
	var ready []int
	for i := 0; i < n; i++ {
		if depCount[i] == 0 {
			ready = append(ready, i)
		}
	}

	var bundles []ops.Bundle
	for len(ready) > 0 {
		sort.SliceStable(ready, func(a, b int) bool {
			ia, ib := ready[a], ready[b]
			if height[ia] != height[ib] {
				return height[ia] > height[ib]
			}
			pa, pb := ops.EnginePriority[opsList[ia].Engine], ops.EnginePriority[opsList[ib].Engine]
			if pa != pb {
				return pa < pb
			}
			return ia < ib
		})

		bundle := ops.Bundle{}
		slotCounts := map[ops.Engine]int{}
		bundleWrites := map[int]bool{}
		scheduledThisCycle := map[int]bool{}

		readySet := ready
		var carryOver []int
		progress := true
		for progress && len(readySet) > 0 {
			progress = false
			var newReady []int
			for _, i := range readySet {
				op := opsList[i]
				if op.Engine == ops.EngineDebug {
					bundle[op.Engine] = append(bundle[op.Engine], op.Slot)
					scheduled[i] = true
					scheduledThisCycle[i] = true
					progress = true
					continue
				}

				blockedByWar := false
				for p := range predWar[i] {
					if !scheduled[p] && !scheduledThisCycle[p] {
						blockedByWar = true
						break
					}
				}
				if blockedByWar {
					newReady = append(newReady, i)
					continue
				}

				limit := engineLimit(limits, op.Engine)
				if slotCounts[op.Engine] >= limit {
					newReady = append(newReady, i)
					continue
				}

				if intersects(reads[i], bundleWrites) || intersects(writes[i], bundleWrites) {
					newReady = append(newReady, i)
					continue
				}

				bundle[op.Engine] = append(bundle[op.Engine], op.Slot)
				slotCounts[op.Engine]++
				for addr := range writes[i] {
					bundleWrites[addr] = true
				}
				scheduled[i] = true
				scheduledThisCycle[i] = true
				progress = true
			}
			readySet = newReady
		}
		carryOver = readySet

		if len(bundle) > 0 {
			bundles = append(bundles, bundle)
		}

		ready = carryOver
		for i := range scheduledThisCycle {
			for j := range succ[i] {
				if scheduled[j] {
					continue
				}
				delete(predHard[j], i)
				if len(predHard[j]) == 0 {
					ready = append(ready, j)
				}
			}
		}

		if len(scheduledThisCycle) == 0 {
			remaining := 0
			for _, s := range scheduled {
				if !s {
					remaining++
				}
			}
			if remaining > 0 {
				return nil, ErrDependencyCycle{Remaining: remaining}
			}
		}
	}

	unscheduled := 0
	for _, s := range scheduled {
		if !s {
			unscheduled++
		}
	}
	if unscheduled > 0 {
		return nil, ErrDependencyCycle{Remaining: unscheduled}
	}

	return bundles, nil
}

func toSet(vals []int) map[int]bool {
	s := make(map[int]bool, len(vals))
	for _, v := range vals {
		s[v] = true
	}
	return s
}

func intersects(a, b map[int]bool) bool {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if big[k] {
			return true
		}
	}
	return false
}
