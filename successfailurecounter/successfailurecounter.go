// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// successfailurecounter reports the outcome of one operation to exactly one
// of a pair of metrics.
//
// A SuccessFailureCounter is meant to live on the stack of the operation it
// reports; it is not safe for concurrent use.
package successfailurecounter // import "go.opentelemetry.io/jvmentry/successfailurecounter"

import (
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/jvmentry/metrics"
)

// SuccessFailureCounter increments a success or a failure metric exactly once.
type SuccessFailureCounter struct {
	success, fail metrics.MetricID
	sealed        bool
}

// New returns a SuccessFailureCounter that can be reported exactly once.
func New(success, fail metrics.MetricID) SuccessFailureCounter {
	return SuccessFailureCounter{success: success, fail: fail}
}

// ReportSuccess increments the success metric or logs an error otherwise.
func (sfc *SuccessFailureCounter) ReportSuccess() {
	if sfc.sealed {
		log.Errorf("Attempted to report success/failure status more than once.")
		return
	}
	metrics.Add(sfc.success, 1)
	sfc.sealed = true
}

// ReportFailure increments the failure metric or logs an error otherwise.
func (sfc *SuccessFailureCounter) ReportFailure() {
	if sfc.sealed {
		log.Errorf("Attempted to report failure/success status more than once.")
		return
	}
	metrics.Add(sfc.fail, 1)
	sfc.sealed = true
}

// Report reports success when ok is set, failure otherwise.
func (sfc *SuccessFailureCounter) Report(ok bool) {
	if ok {
		sfc.ReportSuccess()
	} else {
		sfc.ReportFailure()
	}
}

// DefaultToFailure increments the failure metric if nothing was reported before.
func (sfc *SuccessFailureCounter) DefaultToFailure() {
	if !sfc.sealed {
		metrics.Add(sfc.fail, 1)
		sfc.sealed = true
	}
}
