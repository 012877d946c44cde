// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jvmtitest // import "go.opentelemetry.io/jvmentry/jvmti/jvmtitest"

import (
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/jvmentry/jvmti"
)

// Env is a fake jvmti.Env. The Redefine/Retransform/GenerateEvents
// implementations installed in its function table call the optional
// hooks below, which lets tests block inside the runtime or fail calls.
type Env struct {
	vm    *VM
	slots Slots
	table jvmti.FunctionTable

	// Properties answers GetSystemProperty.
	Properties map[string]string

	// CapabilitiesResult is returned from AddCapabilities.
	CapabilitiesResult jvmti.Error

	// OnRedefine runs inside RedefineClasses, RetransformClasses and
	// GenerateEvents before they return Result.
	OnRedefine func()
	// Result is returned by the function table implementations.
	Result jvmti.Error

	mu           sync.Mutex
	classes      map[jvmti.Class]*Class
	order        []jvmti.Class
	nextMethodID jvmti.MethodID
	callbacks    jvmti.EventCallbacks
	enabled      map[jvmti.Event]bool
	capabilities jvmti.Capabilities
	generated    []jvmti.Event

	methodCalls atomic.Int64
}

var _ jvmti.Env = &Env{}

func newEnv(vm *VM, slots Slots) *Env {
	env := &Env{
		vm:           vm,
		slots:        slots,
		Properties:   make(map[string]string),
		classes:      make(map[jvmti.Class]*Class),
		enabled:      make(map[jvmti.Event]bool),
		nextMethodID: 0x7f0000001000,
	}
	env.table.Set(slots.RedefineClasses, jvmti.RedefineClassesFunc(env.redefineClasses))
	env.table.Set(slots.GenerateEvents, jvmti.GenerateEventsFunc(env.generateEvents))
	env.table.Set(slots.RetransformClasses,
		jvmti.RetransformClassesFunc(env.retransformClasses))
	return env
}

func (e *Env) Functions() *jvmti.FunctionTable {
	return &e.table
}

func (e *Env) GetSystemProperty(name string) (string, jvmti.Error) {
	if v, ok := e.Properties[name]; ok {
		return v, jvmti.ErrNone
	}
	return "", jvmti.ErrNotAvailable
}

func (e *Env) AddCapabilities(caps *jvmti.Capabilities) jvmti.Error {
	if e.CapabilitiesResult != jvmti.ErrNone {
		return e.CapabilitiesResult
	}
	e.mu.Lock()
	e.capabilities = *caps
	e.mu.Unlock()
	return jvmti.ErrNone
}

// Capabilities returns the capabilities granted so far.
func (e *Env) Capabilities() jvmti.Capabilities {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capabilities
}

func (e *Env) SetEventCallbacks(callbacks *jvmti.EventCallbacks) jvmti.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if callbacks == nil {
		e.callbacks = jvmti.EventCallbacks{}
		return jvmti.ErrNone
	}
	e.callbacks = *callbacks
	return jvmti.ErrNone
}

func (e *Env) SetEventNotificationMode(enable bool, event jvmti.Event) jvmti.Error {
	if _, ok := eventKnown[event]; !ok {
		return jvmti.ErrInvalidEventType
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled[event] = enable
	return jvmti.ErrNone
}

var eventKnown = map[jvmti.Event]struct{}{
	jvmti.EventVMInit:               {},
	jvmti.EventVMDeath:              {},
	jvmti.EventClassLoad:            {},
	jvmti.EventClassPrepare:         {},
	jvmti.EventCompiledMethodLoad:   {},
	jvmti.EventDynamicCodeGenerated: {},
}

// Enabled reports whether notifications for event are on.
func (e *Env) Enabled(event jvmti.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled[event]
}

func (e *Env) GetLoadedClasses() ([]jvmti.Class, jvmti.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	classes := make([]jvmti.Class, len(e.order))
	copy(classes, e.order)
	return classes, jvmti.ErrNone
}

func (e *Env) GetClassMethods(class jvmti.Class) ([]jvmti.MethodID, jvmti.Error) {
	e.methodCalls.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.classes[class]
	if !ok {
		return nil, jvmti.ErrInvalidClass
	}
	methods := make([]jvmti.MethodID, len(c.Methods))
	copy(methods, c.Methods)
	return methods, jvmti.ErrNone
}

// MethodCalls returns how often GetClassMethods was called.
func (e *Env) MethodCalls() int {
	return int(e.methodCalls.Load())
}

func (e *Env) GetClassSignature(class jvmti.Class) (string, jvmti.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.classes[class]; ok {
		return c.Signature, jvmti.ErrNone
	}
	return "", jvmti.ErrInvalidClass
}

// Generated returns the events requested through GenerateEvents.
func (e *Env) Generated() []jvmti.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]jvmti.Event(nil), e.generated...)
}

// DefineClass loads a class with numMethods methods without sending
// events. It returns the class handle.
func (e *Env) DefineClass(signature string, numMethods int) jvmti.Class {
	e.mu.Lock()
	defer e.mu.Unlock()
	class := jvmti.Class(len(e.order) + 1)
	c := &Class{Signature: signature}
	for range numMethods {
		c.Methods = append(c.Methods, e.newMethodIDLocked())
	}
	e.classes[class] = c
	e.order = append(e.order, class)
	return class
}

// LoadClass defines a class and delivers ClassLoad and ClassPrepare on the
// calling goroutine.
func (e *Env) LoadClass(jni jvmti.JNIEnv, signature string, numMethods int) jvmti.Class {
	class := e.DefineClass(signature, numMethods)
	cb := e.snapshot()
	if cb.ClassLoad != nil && e.Enabled(jvmti.EventClassLoad) {
		cb.ClassLoad(e, jni, 0, class)
	}
	e.Prepare(jni, class)
	return class
}

// Prepare delivers a ClassPrepare event for class if enabled.
func (e *Env) Prepare(jni jvmti.JNIEnv, class jvmti.Class) {
	cb := e.snapshot()
	if cb.ClassPrepare != nil && e.Enabled(jvmti.EventClassPrepare) {
		cb.ClassPrepare(e, jni, 0, class)
	}
}

// Start delivers VMInit if enabled.
func (e *Env) Start(jni jvmti.JNIEnv) {
	cb := e.snapshot()
	if cb.VMInit != nil && e.Enabled(jvmti.EventVMInit) {
		cb.VMInit(e, jni, 0)
	}
}

// Shutdown delivers VMDeath if enabled.
func (e *Env) Shutdown(jni jvmti.JNIEnv) {
	cb := e.snapshot()
	if cb.VMDeath != nil && e.Enabled(jvmti.EventVMDeath) {
		cb.VMDeath(e, jni)
	}
}

func (e *Env) snapshot() jvmti.EventCallbacks {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callbacks
}

func (e *Env) newMethodIDLocked() jvmti.MethodID {
	id := e.nextMethodID
	e.nextMethodID += 8
	return id
}

// RedefineClasses dispatches through the function table like a JVMTI caller.
func (e *Env) RedefineClasses(definitions []jvmti.ClassDefinition) jvmti.Error {
	fn, ok := e.table.Get(e.slots.RedefineClasses).(jvmti.RedefineClassesFunc)
	if !ok {
		return jvmti.ErrNotAvailable
	}
	return fn(e, definitions)
}

// RetransformClasses dispatches through the function table.
func (e *Env) RetransformClasses(classes []jvmti.Class) jvmti.Error {
	fn, ok := e.table.Get(e.slots.RetransformClasses).(jvmti.RetransformClassesFunc)
	if !ok {
		return jvmti.ErrNotAvailable
	}
	return fn(e, classes)
}

// GenerateEvents dispatches through the function table.
func (e *Env) GenerateEvents(event jvmti.Event) jvmti.Error {
	fn, ok := e.table.Get(e.slots.GenerateEvents).(jvmti.GenerateEventsFunc)
	if !ok {
		return jvmti.ErrNotAvailable
	}
	return fn(e, event)
}

// redefineClasses replaces the method IDs of each redefined class, the way
// obsolete methods get fresh jmethodIDs after a redefinition.
func (e *Env) redefineClasses(_ jvmti.Env, definitions []jvmti.ClassDefinition) jvmti.Error {
	if e.OnRedefine != nil {
		e.OnRedefine()
	}
	if e.Result != jvmti.ErrNone {
		return e.Result
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, def := range definitions {
		c, ok := e.classes[def.Class]
		if !ok {
			return jvmti.ErrInvalidClass
		}
		for i := range c.Methods {
			c.Methods[i] = e.newMethodIDLocked()
		}
	}
	return jvmti.ErrNone
}

func (e *Env) retransformClasses(_ jvmti.Env, classes []jvmti.Class) jvmti.Error {
	if e.OnRedefine != nil {
		e.OnRedefine()
	}
	if e.Result != jvmti.ErrNone {
		return e.Result
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, class := range classes {
		if _, ok := e.classes[class]; !ok {
			return jvmti.ErrInvalidClass
		}
	}
	return jvmti.ErrNone
}

func (e *Env) generateEvents(_ jvmti.Env, event jvmti.Event) jvmti.Error {
	if e.OnRedefine != nil {
		e.OnRedefine()
	}
	if e.Result != jvmti.ErrNone {
		return e.Result
	}
	e.mu.Lock()
	e.generated = append(e.generated, event)
	e.mu.Unlock()
	return jvmti.ErrNone
}
