// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package libpf holds the small value types shared by the ELF reader, the
// process inspection code and the JVM entry layer.
package libpf // import "go.opentelemetry.io/jvmentry/libpf"

import "github.com/zeebo/xxh3"

// SymbolValue represents the value associated with a symbol, e.g. either an
// offset or an absolute address
type SymbolValue uint64

// SymbolName represents the name of a symbol
type SymbolName string

// SymbolValueInvalid is the value returned by lookups when symbol was not found.
const SymbolValueInvalid = SymbolValue(0)

// Hash32 returns a 32 bits hash of the name for use as cache key.
func (s SymbolName) Hash32() uint32 {
	return uint32(xxh3.HashString(string(s)))
}

// Symbol represents the name of a symbol
type Symbol struct {
	Name    SymbolName
	Address SymbolValue
	Size    uint64
}
