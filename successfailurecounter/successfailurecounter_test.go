// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package successfailurecounter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.opentelemetry.io/jvmentry/metrics"
)

func TestSuccessFailureCounter(t *testing.T) {
	tests := map[string]struct {
		call            func(*SuccessFailureCounter)
		expectedSuccess metrics.MetricValue
		expectedFailure metrics.MetricValue
	}{
		"default failure - no report": {
			call:            func(*SuccessFailureCounter) {},
			expectedFailure: 1,
		},
		"report success": {
			call:            func(sfc *SuccessFailureCounter) { sfc.ReportSuccess() },
			expectedSuccess: 1,
		},
		"report failure": {
			call:            func(sfc *SuccessFailureCounter) { sfc.ReportFailure() },
			expectedFailure: 1,
		},
		"double report counts once": {
			call: func(sfc *SuccessFailureCounter) {
				sfc.Report(true)
				sfc.Report(false)
			},
			expectedSuccess: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			success := metrics.Value(metrics.IDSymbolResolved)
			failure := metrics.Value(metrics.IDSymbolMissing)

			sfc := New(metrics.IDSymbolResolved, metrics.IDSymbolMissing)
			func() {
				defer sfc.DefaultToFailure()
				tc.call(&sfc)
			}()

			assert.Equal(t, success+tc.expectedSuccess, metrics.Value(metrics.IDSymbolResolved))
			assert.Equal(t, failure+tc.expectedFailure, metrics.Value(metrics.IDSymbolMissing))
		})
	}
}
