// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jvmti // import "go.opentelemetry.io/jvmentry/jvmti"

import "fmt"

// Error is a jvmtiError code. Calls across the runtime boundary report
// failures through these codes and never panic.
type Error int32

// nolint:revive
const (
	ErrNone                  Error = 0
	ErrInvalidThread         Error = 10
	ErrInvalidObject         Error = 20
	ErrInvalidClass          Error = 21
	ErrClassNotPrepared      Error = 22
	ErrInvalidMethodID       Error = 23
	ErrInvalidClassFormat    Error = 60
	ErrUnsupportedVersion    Error = 68
	ErrUnmodifiableClass     Error = 79
	ErrNotAvailable          Error = 98
	ErrMustPossessCapability Error = 99
	ErrNullPointer           Error = 100
	ErrInvalidEventType      Error = 102
	ErrIllegalArgument       Error = 103
	ErrOutOfMemory           Error = 110
	ErrAccessDenied          Error = 111
	ErrWrongPhase            Error = 112
	ErrInternal              Error = 113
	ErrUnattachedThread      Error = 115
	ErrInvalidEnvironment    Error = 116
)

var errorNames = map[Error]string{
	ErrNone:                  "JVMTI_ERROR_NONE",
	ErrInvalidThread:         "JVMTI_ERROR_INVALID_THREAD",
	ErrInvalidObject:         "JVMTI_ERROR_INVALID_OBJECT",
	ErrInvalidClass:          "JVMTI_ERROR_INVALID_CLASS",
	ErrClassNotPrepared:      "JVMTI_ERROR_CLASS_NOT_PREPARED",
	ErrInvalidMethodID:       "JVMTI_ERROR_INVALID_METHODID",
	ErrInvalidClassFormat:    "JVMTI_ERROR_INVALID_CLASS_FORMAT",
	ErrUnsupportedVersion:    "JVMTI_ERROR_UNSUPPORTED_VERSION",
	ErrUnmodifiableClass:     "JVMTI_ERROR_UNMODIFIABLE_CLASS",
	ErrNotAvailable:          "JVMTI_ERROR_NOT_AVAILABLE",
	ErrMustPossessCapability: "JVMTI_ERROR_MUST_POSSESS_CAPABILITY",
	ErrNullPointer:           "JVMTI_ERROR_NULL_POINTER",
	ErrInvalidEventType:      "JVMTI_ERROR_INVALID_EVENT_TYPE",
	ErrIllegalArgument:       "JVMTI_ERROR_ILLEGAL_ARGUMENT",
	ErrOutOfMemory:           "JVMTI_ERROR_OUT_OF_MEMORY",
	ErrAccessDenied:          "JVMTI_ERROR_ACCESS_DENIED",
	ErrWrongPhase:            "JVMTI_ERROR_WRONG_PHASE",
	ErrInternal:              "JVMTI_ERROR_INTERNAL",
	ErrUnattachedThread:      "JVMTI_ERROR_UNATTACHED_THREAD",
	ErrInvalidEnvironment:    "JVMTI_ERROR_INVALID_ENVIRONMENT",
}

func (e Error) Error() string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("JVMTI_ERROR(%d)", int32(e))
}

// Err converts the code to a Go error, nil for ErrNone.
func (e Error) Err() error {
	if e == ErrNone {
		return nil
	}
	return e
}

// JNIResult is the status code of the JNI invocation interface
// (GetEnv, AttachCurrentThread, DetachCurrentThread).
type JNIResult int32

const (
	JNIOk       JNIResult = 0
	JNIErr      JNIResult = -1
	JNIDetached JNIResult = -2
	JNIEVersion JNIResult = -3
)

func (r JNIResult) Error() string {
	switch r {
	case JNIOk:
		return "JNI_OK"
	case JNIErr:
		return "JNI_ERR"
	case JNIDetached:
		return "JNI_EDETACHED"
	case JNIEVersion:
		return "JNI_EVERSION"
	}
	return fmt.Sprintf("JNI(%d)", int32(r))
}

// Err converts the code to a Go error, nil for JNIOk.
func (r JNIResult) Err() error {
	if r == JNIOk {
		return nil
	}
	return r
}
