// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jvmti // import "go.opentelemetry.io/jvmentry/jvmti"

import "sync/atomic"

// FunctionTableSize is the number of slots in jvmtiInterface_1_.
const FunctionTableSize = 156

// RedefineClassesFunc is the signature of the JVMTI RedefineClasses slot.
type RedefineClassesFunc func(env Env, definitions []ClassDefinition) Error

// RetransformClassesFunc is the signature of the JVMTI RetransformClasses slot.
type RetransformClassesFunc func(env Env, classes []Class) Error

// GenerateEventsFunc is the signature of the JVMTI GenerateEvents slot.
type GenerateEventsFunc func(env Env, event Event) Error

type tableEntry struct {
	fn any
}

// FunctionTable is the JVMTI function table of an environment. Slots hold
// one of the *Func types of this package, or nil for reserved entries.
// Which index holds which function depends on the runtime version.
// Reads and writes of single slots are atomic.
type FunctionTable struct {
	slots [FunctionTableSize]atomic.Pointer[tableEntry]
}

// Get returns the function stored at slot index, or nil.
func (t *FunctionTable) Get(index int) any {
	if index < 0 || index >= FunctionTableSize {
		return nil
	}
	if e := t.slots[index].Load(); e != nil {
		return e.fn
	}
	return nil
}

// Set stores fn at slot index. Out of range indexes are ignored.
func (t *FunctionTable) Set(index int, fn any) {
	if index < 0 || index >= FunctionTableSize {
		return
	}
	t.slots[index].Store(&tableEntry{fn: fn})
}

// Swap stores fn at slot index and returns the previous function.
func (t *FunctionTable) Swap(index int, fn any) any {
	if index < 0 || index >= FunctionTableSize {
		return nil
	}
	if old := t.slots[index].Swap(&tableEntry{fn: fn}); old != nil {
		return old.fn
	}
	return nil
}

// Patch replaces the function at slot index with update(current). update
// runs again if the slot changed concurrently, and returning nil leaves the
// slot untouched. It reports whether the slot was replaced.
func (t *FunctionTable) Patch(index int, update func(cur any) any) bool {
	if index < 0 || index >= FunctionTableSize {
		return false
	}
	for {
		old := t.slots[index].Load()
		var cur any
		if old != nil {
			cur = old.fn
		}
		fn := update(cur)
		if fn == nil {
			return false
		}
		if t.slots[index].CompareAndSwap(old, &tableEntry{fn: fn}) {
			return true
		}
	}
}
