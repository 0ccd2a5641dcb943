package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricInstruments is a lazily-populated cache of OTel instruments so
// callers can record by name without pre-declaring every counter.
type MetricInstruments struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex
}

// NewMetricInstruments creates an instrument cache backed by the named
// meter (conventionally "sshagent/<component>").
func NewMetricInstruments(meterName string) *MetricInstruments {
	return &MetricInstruments{
		meter:      otel.Meter(meterName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// RecordCounter increments a named counter, creating it on first use.
func (m *MetricInstruments) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	c, err := m.counter(name)
	if err != nil {
		return
	}
	c.Add(ctx, value, metric.WithAttributes(attrs...))
}

// RecordDuration records a duration-valued observation (seconds) in a named
// histogram, creating it on first use.
func (m *MetricInstruments) RecordDuration(ctx context.Context, name string, seconds float64, attrs ...attribute.KeyValue) {
	h, err := m.histogram(name)
	if err != nil {
		return
	}
	h.Record(ctx, seconds, metric.WithAttributes(attrs...))
}

func (m *MetricInstruments) counter(name string) (metric.Int64Counter, error) {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; ok {
		return c, nil
	}
	c, err := m.meter.Int64Counter(name)
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", name, err)
	}
	m.counters[name] = c
	return c, nil
}

func (m *MetricInstruments) histogram(name string) (metric.Float64Histogram, error) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if ok {
		return h, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.histograms[name]; ok {
		return h, nil
	}
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", name, err)
	}
	m.histograms[name] = h
	return h, nil
}
