// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package monitor

import "github.com/prometheus/client_golang/prometheus"

// Stats is the minimal set of size/occupancy accessors every slot
// container exposes (SlotList, SlotMap32/64, and SlotTable all satisfy
// this with their Allocated/Count methods; SlotTable's FreeCount-
// shaped accessor is Used()-Count()).
type Stats interface {
	Allocated() int
	Count() int
}

// Instrument wraps a slot container's size accessors as Prometheus
// gauges, registered under the given name. Call Refresh (e.g. from a
// periodic scrape hook) to update the gauges from the container's
// current state; these containers are not thread-safe, so Refresh must
// be called from the same goroutine that owns the container, the same
// way every other mutating operation on it must be.
//
// Grounded on cmd/ocprometheus/collector.go's pattern of holding
// constructed prometheus.Metric values and refreshing them from
// observed state.
type Instrument struct {
	name      string
	allocated prometheus.Gauge
	count     prometheus.Gauge
	stats     Stats
}

// NewInstrument registers allocated/count gauges for stats under name
// with reg, and returns an Instrument that refreshes them on demand.
func NewInstrument(reg prometheus.Registerer, name string, stats Stats) (*Instrument, error) {
	i := &Instrument{
		name:  name,
		stats: stats,
		allocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name + "_allocated",
			Help: "Current backing capacity of the " + name + " slot container.",
		}),
		count: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name + "_count",
			Help: "Current live record count of the " + name + " slot container.",
		}),
	}
	if err := reg.Register(i.allocated); err != nil {
		return nil, err
	}
	if err := reg.Register(i.count); err != nil {
		return nil, err
	}
	i.Refresh()
	return i, nil
}

// Refresh updates the gauges from the container's current state.
func (i *Instrument) Refresh() {
	i.allocated.Set(float64(i.stats.Allocated()))
	i.count.Set(float64(i.stats.Count()))
}
