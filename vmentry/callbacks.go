// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vmentry // import "go.opentelemetry.io/jvmentry/vmentry"

import (
	"go.opentelemetry.io/jvmentry/jvmti"
	"go.opentelemetry.io/jvmentry/periodiccaller"
)

func (v *VM) registerCallbacks() {
	callbacks := jvmti.EventCallbacks{
		VMInit:       v.vmInit,
		VMDeath:      v.vmDeath,
		ClassLoad:    v.classLoad,
		ClassPrepare: v.classPrepare,
	}
	if err := v.env.SetEventCallbacks(&callbacks).Err(); err != nil {
		v.log.Warnf("Failed to set event callbacks: %v", err)
		return
	}
	v.enableEvent(jvmti.EventVMDeath)
	v.enableEvent(jvmti.EventClassLoad)
	v.enableEvent(jvmti.EventClassPrepare)
}

func (v *VM) vmInit(env jvmti.Env, _ jvmti.JNIEnv, _ jvmti.Thread) {
	if v.Dead() {
		return
	}
	if err := v.methods.LoadAll(v.ctx, env); err != nil {
		v.log.Warnf("Failed to load method IDs: %v", err)
	}
	v.ready()
}

// ready runs once the VM is live, from VMInit or directly after a late attach.
func (v *VM) ready() {
	v.mu.Lock()
	if v.started {
		v.mu.Unlock()
		return
	}
	v.started = true
	v.mu.Unlock()

	if lib := v.resolver.LibraryHandle(libJavaName); lib != nil {
		v.libjava.Store(lib)
	} else {
		v.log.Debugf("%s not found", libJavaName)
	}
	v.notify("Started", v.profiler, Profiler.Started)
	v.startLoopRestarts()
}

func (v *VM) vmDeath(_ jvmti.Env, _ jvmti.JNIEnv) {
	if v.dead.Swap(true) {
		return
	}
	v.stopLoopRestarts()
	v.notify("Shutdown", v.profiler, Profiler.Shutdown)
	v.cancel()
	v.log.Info("VM shut down")
}

// ClassLoad is enabled only because some runtimes deliver ClassPrepare only
// when it is.
func (v *VM) classLoad(_ jvmti.Env, _ jvmti.JNIEnv, _ jvmti.Thread, _ jvmti.Class) {}

func (v *VM) classPrepare(env jvmti.Env, _ jvmti.JNIEnv, _ jvmti.Thread, class jvmti.Class) {
	if v.Dead() {
		return
	}
	if err := v.methods.Load(env, class); err != nil {
		v.log.Debugf("Class prepare: %v", err)
	}
}

// notify calls fn on p. Panics are logged instead of unwinding into the VM.
func (v *VM) notify(what string, p Profiler, fn func(Profiler, *VM)) {
	if p == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			v.log.Errorf("Profiler %s panicked: %v", what, r)
		}
	}()
	fn(p, v)
}

func (v *VM) startLoopRestarts() {
	if v.opts.Loop <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopLoop != nil || v.Dead() {
		return
	}
	v.stopLoop = periodiccaller.Start(v.ctx, v.opts.Loop, func() {
		if err := v.RestartProfiler(nil); err != nil {
			v.log.Warnf("Profiler restart failed: %v", err)
		}
	})
}

func (v *VM) stopLoopRestarts() {
	v.mu.Lock()
	stop := v.stopLoop
	v.stopLoop = nil
	v.mu.Unlock()
	if stop != nil {
		stop()
	}
}
