// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// slotbench drives SlotList (pushes), SlotMap32 (a seeded random mix of
// adds and removes) and SlotTable (inserts, then removal of every
// seventh key) for -ops operations each and reports throughput. It exists
// because these containers are explicitly performance-oriented (avoid
// per-element heap allocation) and otherwise have no external
// interface to exercise from the command line.
//
// Usage:
//
//	slotbench -ops 1000000 -container slotmap
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/aristanetworks/glog"
	slotglog "github.com/aristanetworks/slotkit/glog"
	"github.com/aristanetworks/slotkit/monitor"
	"github.com/aristanetworks/slotkit/slotlist"
	"github.com/aristanetworks/slotkit/slotmap"
	"github.com/aristanetworks/slotkit/slottable"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	ops := flag.Int("ops", 200000, "number of operations to run")
	container := flag.String("container", "all", "slotlist, slotmap, slottable, or all")
	debug := flag.Bool("debug", false, "log final slotlist contents (only sensible for small -ops)")
	flag.Parse()

	logger := &slotglog.Glog{}
	reg := prometheus.NewRegistry()

	switch *container {
	case "slotlist", "all":
		runSlotList(*ops, *debug, logger, reg)
	}
	switch *container {
	case "slotmap", "all":
		runSlotMap(*ops, logger, reg)
	}
	switch *container {
	case "slottable", "all":
		runSlotTable(*ops, logger, reg)
	}

	printMetrics(reg)
	if *debug {
		fmt.Println(monitor.VarsToString())
	}
	glog.Flush()
}

func runSlotList(ops int, debug bool, logger *slotglog.Glog, reg *prometheus.Registry) {
	l := slotlist.New[int64](0)
	l.SetLogger(logger)
	start := time.Now()
	for i := 0; i < ops; i++ {
		l.Push(int64(i))
	}
	report("slotlist.Push", ops, time.Since(start))
	instrument(reg, "slotlist", l)
	if debug {
		l.LogContents(logger)
	}
}

func runSlotMap(ops int, logger *slotglog.Glog, reg *prometheus.Registry) {
	m := slotmap.NewMap32[int64]()
	m.SetLogger(logger)
	var live []slotmap.ID32
	r := rand.New(rand.NewSource(1))
	start := time.Now()
	for i := 0; i < ops; i++ {
		if len(live) > 0 && r.Intn(3) == 0 {
			idx := r.Intn(len(live))
			m.Remove(live[idx])
			live[idx] = live[len(live)-1]
			live = live[:len(live)-1]
			continue
		}
		id, ptr, ok := m.Add()
		if !ok {
			fmt.Fprintln(os.Stderr, "slotmap: allocation failure")
			os.Exit(1)
		}
		*ptr = int64(i)
		live = append(live, id)
	}
	report("slotmap.Add/Remove", ops, time.Since(start))
	instrument(reg, "slotmap", m)
}

type benchRecord struct {
	key   int64
	value int64
}

func runSlotTable(ops int, logger *slotglog.Glog, reg *prometheus.Registry) {
	hasher := slottable.NewIntHasher[int64]()
	cmp := slottable.KeyEqual(func(r benchRecord) int64 { return r.key })
	tbl := slottable.New[int64, benchRecord](hasher, cmp)
	tbl.SetLogger(logger)
	start := time.Now()
	for i := 0; i < ops; i++ {
		tbl.Insert(int64(i), benchRecord{key: int64(i), value: int64(i)})
	}
	for i := 0; i < ops; i += 7 {
		tbl.Remove(int64(i))
	}
	report("slottable.Insert/Remove", ops, time.Since(start))
	instrument(reg, "slottable", tbl)
}

func instrument(reg *prometheus.Registry, name string, stats monitor.Stats) {
	if _, err := monitor.NewInstrument(reg, name, stats); err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to register metrics: %v\n", name, err)
	}
}

func printMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to gather metrics: %v\n", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fmt.Printf("%-24s %.0f\n", mf.GetName(), m.GetGauge().GetValue())
		}
	}
}

func report(name string, ops int, elapsed time.Duration) {
	fmt.Printf("%-24s %8d ops in %10s (%.0f ops/sec)\n",
		name, ops, elapsed, float64(ops)/elapsed.Seconds())
}
