// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf // import "go.opentelemetry.io/jvmentry/libpf"

// Address represents an address, or offset within a process
type Address uintptr

// Valid reports whether the address is not the null sentinel.
func (adr Address) Valid() bool {
	return adr != 0
}
