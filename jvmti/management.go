// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jvmti // import "go.opentelemetry.io/jvmentry/jvmti"

const (
	// ManagementVersion is the jmm interface version requested from
	// JVM_GetManagement (JMM_VERSION_2 with minor 3).
	ManagementVersion int32 = 0x20030000

	// ManagementExecuteDiagnosticCommandSlot is the index of
	// ExecuteDiagnosticCommand in the VMManagement table.
	ManagementExecuteDiagnosticCommandSlot = 38
)

// Management is the subset of the HotSpot VMManagement interface the agent
// uses.
type Management interface {
	// ExecuteDiagnosticCommand runs a jcmd style command such as
	// "Compiler.codelist" and returns its output.
	ExecuteDiagnosticCommand(jni JNIEnv, command string) (string, Error)
}

// GetManagementFunc is the signature of JVM_GetManagement. It returns nil when
// the requested version is not supported.
type GetManagementFunc func(version int32) Management
