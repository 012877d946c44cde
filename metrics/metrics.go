// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics counts what the JVM entry layer does and exports the
// counts as OTel instruments. Totals are also kept locally so they can be
// inspected without a meter provider.
package metrics // import "go.opentelemetry.io/jvmentry/metrics"

import (
	"context"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"go.opentelemetry.io/jvmentry/vc"
)

var (
	// OTel metric instrumentation
	meter = otel.Meter("go.opentelemetry.io/jvmentry",
		metric.WithInstrumentationVersion(vc.Version()))
	counters [IDMax]metric.Int64Counter
	gauges   [IDMax]metric.Int64Gauge

	totals [IDMax]atomic.Int64
)

func init() {
	for _, md := range GetDefinitions() {
		switch typ := md.Type; typ {
		case MetricTypeCounter:
			counter, err := meter.Int64Counter(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Counter: %v", err)
				continue
			}
			counters[md.ID] = counter
		case MetricTypeGauge:
			gauge, err := meter.Int64Gauge(md.Name,
				metric.WithDescription(md.Description),
				metric.WithUnit(md.Unit))
			if err != nil {
				log.Errorf("Creating Int64Gauge: %v", err)
				continue
			}
			gauges[md.ID] = gauge
		default:
			panic(fmt.Sprintf("Unknown metric type: %v", typ))
		}
	}
}

// Add records value for metric id. Zero counter values are dropped.
func Add(id MetricID, value MetricValue) {
	if id <= IDInvalid || id >= IDMax {
		log.Errorf("Metric value %d out of range [%d,%d]- needs investigation",
			id, IDInvalid+1, IDMax-1)
		return
	}
	if c := counters[id]; c != nil {
		if value == 0 {
			return
		}
		totals[id].Add(int64(value))
		c.Add(context.Background(), int64(value))
		return
	}
	if g := gauges[id]; g != nil {
		totals[id].Store(int64(value))
		g.Record(context.Background(), int64(value))
	}
}

// Value returns the running total of a counter or last value of a gauge.
func Value(id MetricID) MetricValue {
	if id <= IDInvalid || id >= IDMax {
		return 0
	}
	return MetricValue(totals[id].Load())
}
