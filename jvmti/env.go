// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jvmti // import "go.opentelemetry.io/jvmentry/jvmti"

// JavaVM is the JNI invocation interface of the single runtime hosted by
// this process.
type JavaVM interface {
	// GetEnv returns the JVMTI environment for the requested version.
	GetEnv(version Version) (Env, JNIResult)

	// GetJNIEnv returns the JNI environment of the calling OS thread, or
	// JNIDetached when the thread is not attached.
	GetJNIEnv(version Version) (JNIEnv, JNIResult)

	// AttachCurrentThreadAsDaemon attaches the calling OS thread under the
	// given name. Attaching an already attached thread returns its env.
	AttachCurrentThreadAsDaemon(version Version, name string) (JNIEnv, JNIResult)

	// DetachCurrentThread releases the runtime's per-thread state of the
	// calling OS thread.
	DetachCurrentThread() JNIResult
}

// JNIEnv is the execution context of one attached OS thread. It must only be
// used on the thread it was obtained on.
type JNIEnv interface {
	// ThreadID is the OS thread id the env belongs to.
	ThreadID() int
}

// Env is a JVMTI environment.
type Env interface {
	// Functions returns the environment's function table. Patching a slot
	// changes what every caller of that JVMTI function dispatches to.
	Functions() *FunctionTable

	GetSystemProperty(name string) (string, Error)
	AddCapabilities(caps *Capabilities) Error
	SetEventCallbacks(callbacks *EventCallbacks) Error
	SetEventNotificationMode(enable bool, event Event) Error

	// GetLoadedClasses returns all classes currently loaded.
	GetLoadedClasses() ([]Class, Error)

	// GetClassMethods returns the methods declared by class. As a side
	// effect the runtime allocates a jmethodID for each of them.
	GetClassMethods(class Class) ([]MethodID, Error)

	GetClassSignature(class Class) (string, Error)
}
