// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package jvmtitest provides an in-memory Java runtime implementing the
// jvmti interfaces. It keeps a class registry, a patchable function table,
// per OS thread attach bookkeeping and event delivery, which is enough to
// drive the agent without a real JVM.
package jvmtitest // import "go.opentelemetry.io/jvmentry/jvmti/jvmtitest"

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"go.opentelemetry.io/jvmentry/jvmti"
)

// Slots are the function table indexes the fake runtime dispatches through.
// A negative index means the runtime does not provide the function.
type Slots struct {
	RedefineClasses    int
	GenerateEvents     int
	RetransformClasses int
}

// DefaultSlots is the JVMTI 1.1+ table layout.
var DefaultSlots = Slots{RedefineClasses: 86, GenerateEvents: 122, RetransformClasses: 151}

// Class is a class known to the fake runtime.
type Class struct {
	Signature string
	Methods   []jvmti.MethodID
}

// VM is a fake jvmti.JavaVM.
type VM struct {
	env *Env

	// GetEnvResult, when not JNIOk, makes GetEnv fail.
	GetEnvResult jvmti.JNIResult

	mu       sync.Mutex
	attached map[int]*JNIEnv

	attaches atomic.Int32
	detaches atomic.Int32
}

var _ jvmti.JavaVM = &VM{}

// NewVM creates a runtime reporting the given java.vm.name and
// java.vm.version properties and using slots for its function table.
func NewVM(vmName, vmVersion string, slots Slots) *VM {
	vm := &VM{attached: make(map[int]*JNIEnv)}
	vm.env = newEnv(vm, slots)
	if vmName != "" {
		vm.env.Properties["java.vm.name"] = vmName
	}
	if vmVersion != "" {
		vm.env.Properties["java.vm.version"] = vmVersion
	}
	return vm
}

// Env returns the runtime's JVMTI environment.
func (vm *VM) Env() *Env {
	return vm.env
}

func (vm *VM) GetEnv(version jvmti.Version) (jvmti.Env, jvmti.JNIResult) {
	if vm.GetEnvResult != jvmti.JNIOk {
		return nil, vm.GetEnvResult
	}
	if version != jvmti.Version1_0 {
		return nil, jvmti.JNIEVersion
	}
	return vm.env, jvmti.JNIOk
}

func (vm *VM) GetJNIEnv(_ jvmti.Version) (jvmti.JNIEnv, jvmti.JNIResult) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if jni, ok := vm.attached[unix.Gettid()]; ok {
		return jni, jvmti.JNIOk
	}
	return nil, jvmti.JNIDetached
}

func (vm *VM) AttachCurrentThreadAsDaemon(_ jvmti.Version, name string) (jvmti.JNIEnv,
	jvmti.JNIResult) {
	tid := unix.Gettid()

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if jni, ok := vm.attached[tid]; ok {
		return jni, jvmti.JNIOk
	}
	jni := &JNIEnv{tid: tid, Name: name}
	vm.attached[tid] = jni
	vm.attaches.Add(1)
	return jni, jvmti.JNIOk
}

func (vm *VM) DetachCurrentThread() jvmti.JNIResult {
	tid := unix.Gettid()

	vm.mu.Lock()
	defer vm.mu.Unlock()
	jni, ok := vm.attached[tid]
	if !ok {
		return jvmti.JNIDetached
	}
	jni.detached.Store(true)
	delete(vm.attached, tid)
	vm.detaches.Add(1)
	return jvmti.JNIOk
}

// Attached returns the number of currently attached threads.
func (vm *VM) Attached() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.attached)
}

// AttachCounts returns the total number of attach and detach operations.
func (vm *VM) AttachCounts() (attaches, detaches int) {
	return int(vm.attaches.Load()), int(vm.detaches.Load())
}

// JNIEnv is the fake per thread execution context.
type JNIEnv struct {
	tid      int
	Name     string
	detached atomic.Bool
}

func (e *JNIEnv) ThreadID() int {
	return e.tid
}

// Valid reports whether the env's thread is still attached.
func (e *JNIEnv) Valid() bool {
	return !e.detached.Load()
}
