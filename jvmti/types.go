// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package jvmti describes the surface of the Java runtime that the profiler
// agent talks to: the JavaVM invocation interface, the JVMTI environment and
// its function table, JNI thread environments and the AsyncGetCallTrace
// structures. The types mirror jvmti.h and jni.h closely so that a cgo
// backend can implement them without translation tables.
package jvmti // import "go.opentelemetry.io/jvmentry/jvmti"

import "fmt"

// Version is a JNI/JVMTI interface version as passed to GetEnv.
type Version int32

const (
	// Version1_0 requests any JVMTI 1.x environment.
	Version1_0 Version = 0x30010000
	// JNIVersion1_6 is the JNI version used for thread attach and GetEnv.
	JNIVersion1_6 Version = 0x00010006
)

// Class is an opaque reference to a loaded class. It is stable for the
// lifetime of the class.
type Class uintptr

// MethodID is the opaque jmethodID of a method. It stays valid as long as the
// declaring class is loaded.
type MethodID uintptr

// Thread is an opaque reference to a java.lang.Thread.
type Thread uintptr

// ClassDefinition is one entry passed to RedefineClasses.
type ClassDefinition struct {
	Class    Class
	Bytecode []byte
}

// Event identifies a JVMTI event kind. Values follow jvmtiEvent.
type Event int32

const (
	EventVMInit                Event = 50
	EventVMDeath               Event = 51
	EventThreadStart           Event = 52
	EventThreadEnd             Event = 53
	EventClassFileLoadHook     Event = 54
	EventClassLoad             Event = 55
	EventClassPrepare          Event = 56
	EventVMStart               Event = 57
	EventCompiledMethodLoad    Event = 68
	EventCompiledMethodUnload  Event = 69
	EventDynamicCodeGenerated  Event = 70
	EventMonitorContendedEnter Event = 75
)

var eventNames = map[Event]string{
	EventVMInit:                "VMInit",
	EventVMDeath:               "VMDeath",
	EventThreadStart:           "ThreadStart",
	EventThreadEnd:             "ThreadEnd",
	EventClassFileLoadHook:     "ClassFileLoadHook",
	EventClassLoad:             "ClassLoad",
	EventClassPrepare:          "ClassPrepare",
	EventVMStart:               "VMStart",
	EventCompiledMethodLoad:    "CompiledMethodLoad",
	EventCompiledMethodUnload:  "CompiledMethodUnload",
	EventDynamicCodeGenerated:  "DynamicCodeGenerated",
	EventMonitorContendedEnter: "MonitorContendedEnter",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", int32(e))
}

// Capabilities is the subset of jvmtiCapabilities the agent asks for.
type Capabilities struct {
	CanRedefineClasses                  bool
	CanRetransformClasses               bool
	CanRetransformAnyClass              bool
	CanGenerateAllClassHookEvents       bool
	CanGetBytecodes                     bool
	CanGetConstantPool                  bool
	CanGetSourceFileName                bool
	CanGetLineNumbers                   bool
	CanGenerateCompiledMethodLoadEvents bool
	CanGenerateMonitorEvents            bool
	CanTagObjects                       bool
}

// EventCallbacks holds the handlers registered with SetEventCallbacks. A nil
// handler leaves the event unhandled.
type EventCallbacks struct {
	VMInit       func(env Env, jni JNIEnv, thread Thread)
	VMDeath      func(env Env, jni JNIEnv)
	ClassLoad    func(env Env, jni JNIEnv, thread Thread, class Class)
	ClassPrepare func(env Env, jni JNIEnv, thread Thread, class Class)
}
