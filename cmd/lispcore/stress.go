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
	"math/rand"

	"github.com/cockroachdb/lispcore"
	"github.com/spf13/cobra"
)

var (
	stressOps        int
	stressThreshold  float64
	stressGrow       float64
	stressIncrement  int
	stressSeed       int64
	stressDegenerate bool
	stressWeak       string
	stressSweepEvery int
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressOps, "ops", 100000, "Number of operations to run")
	cmd.Flags().Float64Var(&stressThreshold, "threshold", 0.8125, "Rehash threshold, in (0, 1]")
	cmd.Flags().Float64Var(&stressGrow, "grow", 1.5, "Rehash size factor, > 1")
	cmd.Flags().IntVar(&stressIncrement, "increment", 0, "Rehash size increment; overrides --grow")
	cmd.Flags().Int64Var(&stressSeed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&stressDegenerate, "degenerate", false, "Hash every key to the same bucket")
	cmd.Flags().StringVar(&stressWeak, "weak", "none",
		"Table weakness: none, key, value, key-or-value or key-and-value")
	cmd.Flags().IntVar(&stressSweepEvery, "sweep-every", 1000, "Sweep a weak table every N operations")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a randomized table workload",
		Long: `The stress command runs a random mix of inserts, updates, removals and
lookups against a table and checks every result against a builtin map. Weak
tables are swept periodically with a fixed liveness rule: a handle is live
unless it is a multiple of 3.

Example:
  lispcore stress --ops 1000000
  lispcore stress --threshold 0.5 --grow 2 --degenerate
  lispcore stress --weak key-or-value --sweep-every 100 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
	return cmd
}

type stressResult struct {
	Strategy string `json:"strategy"`
	Weakness string `json:"weakness"`
	Seed     int64  `json:"seed"`
	Ops      int    `json:"ops"`
	Entries  int    `json:"entries"`
	Capacity int    `json:"capacity"`
	Resizes  int    `json:"resizes"`
	Swept    int    `json:"swept"`
}

func parseWeakness(s string) (lispcore.Weakness, error) {
	for _, w := range []lispcore.Weakness{
		lispcore.WeakNone,
		lispcore.WeakKey,
		lispcore.WeakValue,
		lispcore.WeakKeyOrValue,
		lispcore.WeakKeyAndValue,
	} {
		if w.String() == s {
			return w, nil
		}
	}
	return lispcore.WeakNone, fmt.Errorf("unknown weakness %q", s)
}

func stressLive(v lispcore.Value) bool {
	return v%3 != 0
}

func runStress() error {
	if stressOps < 0 {
		return fmt.Errorf("--ops must not be negative")
	}
	if !(stressThreshold > 0 && stressThreshold <= 1) {
		return fmt.Errorf("--threshold must be in (0, 1], got %g", stressThreshold)
	}
	if stressIncrement < 0 {
		return fmt.Errorf("--increment must not be negative")
	}
	if stressIncrement == 0 && !(stressGrow > 1) {
		return fmt.Errorf("--grow must be greater than 1, got %g", stressGrow)
	}
	weakness, err := parseWeakness(stressWeak)
	if err != nil {
		return err
	}
	if weakness != lispcore.WeakNone && stressSweepEvery <= 0 {
		return fmt.Errorf("--sweep-every must be positive")
	}

	strategy := lispcore.Eq()
	if stressDegenerate {
		strategy = lispcore.Strategy{
			Name:  "degenerate",
			Equal: func(a, b lispcore.Value) bool { return a == b },
			Hash:  func(lispcore.Value) uintptr { return 0 },
		}
	}

	options := []lispcore.Option{lispcore.WithRehashThreshold(stressThreshold)}
	if stressIncrement > 0 {
		options = append(options, lispcore.WithRehashIncrement(stressIncrement))
	} else {
		options = append(options, lispcore.WithRehashSize(stressGrow))
	}
	registry := lispcore.NewWeakRegistry()
	if weakness != lispcore.WeakNone {
		options = append(options, lispcore.WithWeakness(weakness, registry))
	}
	m := lispcore.New(strategy, 0, options...)

	printVerbose("Running %d ops: strategy=%s threshold=%g rehash-size=%g weakness=%s seed=%d\n",
		stressOps, strategy.Name, m.RehashThreshold(), m.RehashSize(), weakness, stressSeed)

	// Keys are drawn from a range small enough that most operations after
	// warmup touch existing entries.
	keySpace := stressOps / 4
	if keySpace < 16 {
		keySpace = 16
	}
	rng := rand.New(rand.NewSource(stressSeed))
	e := make(map[lispcore.Value]lispcore.Value)
	var swept int

	for i := 0; i < stressOps; i++ {
		k := lispcore.Value(rng.Intn(keySpace))
		v := lispcore.Value(rng.Int63())
		capacity := m.Capacity()

		switch r := rng.Float64(); {
		case r < 0.4:
			m.Set(k, v)
			e[k] = v
		case r < 0.6:
			slot, hash, ok := m.Lookup(k)
			if _, expected := e[k]; ok != expected {
				return fmt.Errorf("op %d: lookup(%d) = %t, expected %t", i, k, ok, expected)
			}
			if ok {
				m.SetValue(slot, v)
			} else {
				m.Put(k, v, hash)
			}
			e[k] = v
		case r < 0.8:
			_, expected := e[k]
			if ok := m.Remove(k); ok != expected {
				return fmt.Errorf("op %d: remove(%d) = %t, expected %t", i, k, ok, expected)
			}
			delete(e, k)
		default:
			got, ok := m.Get(k)
			expected, expectedOK := e[k]
			if ok != expectedOK || got != expected {
				return fmt.Errorf("op %d: get(%d) = %d/%t, expected %d/%t", i, k, got, ok, expected, expectedOK)
			}
		}

		if m.Capacity() != capacity {
			printVerbose("op %d: resized %d -> %d (count=%d)\n", i, capacity, m.Capacity(), m.Len())
		}

		if weakness != lispcore.WeakNone && (i+1)%stressSweepEvery == 0 {
			var expected int
			for k, v := range e {
				if weakness.Dead(stressLive(k), stressLive(v)) {
					delete(e, k)
					expected++
				}
			}
			n := registry.Sweep(stressLive)
			if n != expected {
				return fmt.Errorf("op %d: sweep removed %d, expected %d", i, n, expected)
			}
			printVerbose("op %d: swept %d\n", i, n)
			swept += n
		}

		if m.Len() != len(e) {
			return fmt.Errorf("op %d: len = %d, expected %d", i, m.Len(), len(e))
		}
	}

	var mismatch error
	m.All(func(k, v lispcore.Value) bool {
		if expected, ok := e[k]; !ok || expected != v {
			mismatch = fmt.Errorf("final: entry %d=%d, expected %d/%t", k, v, expected, ok)
			return false
		}
		return true
	})
	if mismatch != nil {
		return mismatch
	}

	result := stressResult{
		Strategy: strategy.Name,
		Weakness: weakness.String(),
		Seed:     stressSeed,
		Ops:      stressOps,
		Entries:  m.Len(),
		Capacity: m.Capacity(),
		Resizes:  m.Resizes(),
		Swept:    swept,
	}
	if jsonOut {
		return printJSON(result)
	}

	printInfo("\nStress Results:\n")
	printInfo("  Strategy: %s\n", result.Strategy)
	printInfo("  Weakness: %s\n", result.Weakness)
	printInfo("  Ops:      %d\n", result.Ops)
	printInfo("  Entries:  %d\n", result.Entries)
	printInfo("  Capacity: %d\n", result.Capacity)
	printInfo("  Resizes:  %d\n", result.Resizes)
	if weakness != lispcore.WeakNone {
		printInfo("  Swept:    %d\n", result.Swept)
	}
	return nil
}
