// Package stats provides a minimal StatsReceiver backed by go-metrics.
// A StatsReceiver can be passed down a call tree and scoped at each level;
// hierarchical names use a '/' path separator.
package stats

import (
	"encoding/json"
	"strings"

	"github.com/rcrowley/go-metrics"
)

// Counter is an event counter.
type Counter interface {
	Inc(delta int64)
	Count() int64
	Clear()
}

// Gauge holds an int64 value that can be set arbitrarily.
type Gauge interface {
	Update(value int64)
	Value() int64
}

// StatsReceiver creates and registers instruments on demand.
type StatsReceiver interface {
	// Scope returns a receiver that namespaces instrument names with the
	// given scope elements:
	//
	//   statsReceiver.Scope("foo").Counter("bar")  // counts as "foo/bar"
	Scope(scope ...string) StatsReceiver

	// Counter returns the named counter, registering it if needed.
	Counter(name ...string) Counter

	// Gauge returns the named gauge, registering it if needed.
	Gauge(name ...string) Gauge

	// Render marshals all registered instruments as JSON.
	Render(pretty bool) []byte
}

// DefaultStatsReceiver returns a receiver over a fresh go-metrics registry.
func DefaultStatsReceiver() StatsReceiver {
	return &defaultStatsReceiver{registry: metrics.NewRegistry()}
}

// NilStatsReceiver returns a receiver whose instruments discard all updates.
func NilStatsReceiver(scope ...string) StatsReceiver {
	return nilStatsReceiver{}
}

type defaultStatsReceiver struct {
	registry metrics.Registry
	scope    []string
}

func (s *defaultStatsReceiver) Scope(scope ...string) StatsReceiver {
	return &defaultStatsReceiver{registry: s.registry, scope: append(append([]string{}, s.scope...), scope...)}
}

func (s *defaultStatsReceiver) Counter(name ...string) Counter {
	return s.registry.GetOrRegister(s.scoped(name), metrics.NewCounter).(metrics.Counter)
}

func (s *defaultStatsReceiver) Gauge(name ...string) Gauge {
	return s.registry.GetOrRegister(s.scoped(name), metrics.NewGauge).(metrics.Gauge)
}

func (s *defaultStatsReceiver) Render(pretty bool) []byte {
	values := map[string]int64{}
	s.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Counter:
			values[name] = m.Count()
		case metrics.Gauge:
			values[name] = m.Value()
		}
	})
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(values, "", "  ")
	} else {
		b, err = json.Marshal(values)
	}
	if err != nil {
		return []byte("{}")
	}
	return b
}

// Slashes in name elements would collide with the path separator, so they
// are replaced rather than rejected: instrument names can be dynamically
// generated and it is better to mangle than to panic.
func (s *defaultStatsReceiver) scoped(name []string) string {
	elems := make([]string, 0, len(s.scope)+len(name))
	for _, e := range append(append([]string{}, s.scope...), name...) {
		elems = append(elems, strings.Replace(e, "/", "_SLASH_", -1))
	}
	return strings.Join(elems, "/")
}

type nilStatsReceiver struct{}

func (s nilStatsReceiver) Scope(scope ...string) StatsReceiver { return s }
func (s nilStatsReceiver) Counter(name ...string) Counter      { return nilCounter{} }
func (s nilStatsReceiver) Gauge(name ...string) Gauge          { return nilGauge{} }
func (s nilStatsReceiver) Render(pretty bool) []byte           { return []byte("{}") }

type nilCounter struct{}

func (nilCounter) Inc(int64)    {}
func (nilCounter) Count() int64 { return 0 }
func (nilCounter) Clear()       {}

type nilGauge struct{}

func (nilGauge) Update(int64) {}
func (nilGauge) Value() int64 { return 0 }
