// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/jvmentry/metrics"

// MetricID is the type for metric IDs.
type MetricID uint16

// MetricValue is the type for metric values.
type MetricValue int64

// MetricType is the type of a metric.
type MetricType uint8

const (
	MetricTypeCounter MetricType = iota
	MetricTypeGauge
)

// MetricDefinition describes one metric exported through OTel.
type MetricDefinition struct {
	ID          MetricID
	Name        string
	Description string
	Unit        string
	Type        MetricType
}
