// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/cockroachdb/lispcore"
	"github.com/spf13/cobra"
)

var (
	walkLen     int
	walkCycleAt int
	walkPolicy  string
	walkEnd     string
	walkStride  int
	walkDotted  bool
	walkLimit   int
)

func init() {
	cmd := newWalkCmd()
	cmd.Flags().IntVar(&walkLen, "len", 10, "Number of nodes in the chain")
	cmd.Flags().IntVar(&walkCycleAt, "cycle-at", -1, "Close the chain into a cycle back to node K (0-based)")
	cmd.Flags().StringVar(&walkPolicy, "policy", "on", "Cycle policy: off, safe or on")
	cmd.Flags().StringVar(&walkEnd, "end", "on", "End policy: off or on")
	cmd.Flags().IntVar(&walkStride, "stride", 1, "Links per step: 1 for lists, 2 for property lists")
	cmd.Flags().BoolVar(&walkDotted, "dotted", false, "End the chain in a non-nil atom instead of nil")
	cmd.Flags().IntVar(&walkLimit, "limit", 0, "Stop after N nodes; required with --policy off on a cycle")
	rootCmd.AddCommand(cmd)
}

func newWalkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Walk a generated pair chain",
		Long: `The walk command builds a chain of pair nodes holding 1, 2, 3... and walks
it with the requested policies, reporting how many nodes were produced and
why the walk ended.

Example:
  lispcore walk --len 5
  lispcore walk --len 3 --cycle-at 0 --policy safe
  lispcore walk --len 6 --stride 2 --dotted --end off
  lispcore walk --len 4 --cycle-at 1 --policy off --limit 20 -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWalk()
		},
	}
	return cmd
}

type walkResult struct {
	Produced        int      `json:"produced"`
	State           string   `json:"state"`
	Error           string   `json:"error,omitempty"`
	Steps           int      `json:"steps"`
	CycleSuppressed bool     `json:"cycle_suppressed"`
	Limited         bool     `json:"limited"`
	Cars            []uint64 `json:"cars,omitempty"`
}

func parseCyclePolicy(s string) (lispcore.CyclePolicy, error) {
	for _, p := range []lispcore.CyclePolicy{lispcore.CycleOff, lispcore.CycleSafe, lispcore.CycleOn} {
		if p.String() == s {
			return p, nil
		}
	}
	return lispcore.CycleOff, fmt.Errorf("unknown cycle policy %q", s)
}

func parseEndPolicy(s string) (lispcore.EndPolicy, error) {
	for _, p := range []lispcore.EndPolicy{lispcore.EndOff, lispcore.EndOn} {
		if p.String() == s {
			return p, nil
		}
	}
	return lispcore.EndOff, fmt.Errorf("unknown end policy %q", s)
}

// dottedEnd is the atom a --dotted chain ends in.
const dottedEnd lispcore.Value = 999

// buildChain returns a chain of n nodes holding 1..n. If cycleAt is in range
// the last node links back to node cycleAt; otherwise the chain ends in end.
func buildChain(a *lispcore.Arena, n, cycleAt int, end lispcore.Value) lispcore.Value {
	head := end
	var nodes []lispcore.Value
	for i := n; i > 0; i-- {
		head = a.Cons(lispcore.Value(i), head)
		nodes = append(nodes, head)
	}
	if cycleAt >= 0 && n > 0 {
		// nodes is in reverse order.
		a.SetSecond(nodes[0], nodes[n-1-cycleAt])
	}
	return head
}

func runWalk() error {
	if walkLen < 0 {
		return fmt.Errorf("--len must not be negative")
	}
	if walkCycleAt >= walkLen {
		return fmt.Errorf("--cycle-at %d out of range for a chain of %d nodes", walkCycleAt, walkLen)
	}
	cycle, err := parseCyclePolicy(walkPolicy)
	if err != nil {
		return err
	}
	end, err := parseEndPolicy(walkEnd)
	if err != nil {
		return err
	}
	if walkStride != 1 && walkStride != 2 {
		return fmt.Errorf("--stride must be 1 or 2, got %d", walkStride)
	}
	if cycle == lispcore.CycleOff && walkCycleAt >= 0 && walkLimit <= 0 {
		return fmt.Errorf("--limit is required to walk a cycle with --policy off")
	}

	a := lispcore.NewArena(walkLen)
	tail := lispcore.Nil
	if walkDotted {
		tail = dottedEnd
	}
	head := buildChain(a, walkLen, walkCycleAt, tail)

	var w *lispcore.Walker
	if walkStride == 2 {
		w = lispcore.PlistTails(a, head, end, cycle)
	} else {
		w = lispcore.Tails(a, head, end, cycle)
	}
	printVerbose("Walking %d nodes: cycle-at=%d policy=%s end=%s stride=%d\n",
		walkLen, walkCycleAt, cycle, end, walkStride)

	var result walkResult
	for {
		if walkLimit > 0 && result.Produced >= walkLimit {
			result.Limited = true
			break
		}
		car, ok := w.NextCar()
		if !ok {
			break
		}
		printVerbose("  %d: %d\n", result.Produced, car)
		result.Produced++
		result.Cars = append(result.Cars, uint64(car))
	}
	result.State = w.State().String()
	result.Steps = w.Steps()
	result.CycleSuppressed = w.CycleSuppressed()
	if err := w.Err(); err != nil {
		result.Error = err.Error()
	}

	if jsonOut {
		return printJSON(result)
	}

	printInfo("\nWalk Results:\n")
	printInfo("  Produced: %d\n", result.Produced)
	printInfo("  State:    %s\n", result.State)
	printInfo("  Steps:    %d\n", result.Steps)
	if result.CycleSuppressed {
		printInfo("  Cycle:    suppressed\n")
	}
	if result.Limited {
		printInfo("  Limit:    reached after %d\n", walkLimit)
	}
	if result.Error != "" {
		printInfo("  Error:    %s\n", result.Error)
	}
	return nil
}
