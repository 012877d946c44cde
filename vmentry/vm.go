// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package vmentry connects a sampling profiler to a running HotSpot JVM.
//
// It locates the runtime's unofficial entry points, AsyncGetCallTrace and
// JVM_GetManagement, by symbol name. It hooks the JVMTI functions that
// redefine classes so samplers know when method identities are in flux. It
// also keeps a cache of method IDs that is filled as classes get prepared.
package vmentry // import "go.opentelemetry.io/jvmentry/vmentry"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/jvmentry/config"
	"go.opentelemetry.io/jvmentry/jvmti"
	"go.opentelemetry.io/jvmentry/metrics"
)

const (
	libJVMName  = "libjvm.so"
	libJavaName = "libjava.so"
)

// ErrNoJVMTI is returned by Init when the runtime has no JVMTI environment.
var ErrNoJVMTI = errors.New("JVMTI environment unavailable")

// Profiler is notified about the VM lifecycle.
type Profiler interface {
	// Started runs once the VM is live.
	Started(vm *VM)
	// Shutdown runs when the VM dies.
	Shutdown(vm *VM)
	// Restart restarts profiling with the given timer configuration.
	Restart(timer any) error
}

// Option configures Init.
type Option func(*VM)

// WithOptions sets the agent options.
func WithOptions(opts *config.Options) Option {
	return func(v *VM) {
		v.opts = opts
	}
}

// WithProfiler registers the profiler receiving lifecycle notifications.
func WithProfiler(p Profiler) Option {
	return func(v *VM) {
		v.profiler = p
	}
}

// WithResolver replaces the resolver of loaded libraries.
func WithResolver(r LibraryResolver) Option {
	return func(v *VM) {
		v.resolver = r
	}
}

// WithBinder sets the Binder making native entry points callable.
func WithBinder(b Binder) Option {
	return func(v *VM) {
		v.binder = b
	}
}

// VM is the agent's view of the running Java virtual machine.
type VM struct {
	vm  jvmti.JavaVM
	env jvmti.Env

	opts      *config.Options
	profiler  Profiler
	resolver  LibraryResolver
	binder    Binder
	sessionID uuid.UUID
	log       *log.Entry

	hotspotVersion int
	libjvm         *Library
	libjava        atomic.Pointer[Library]
	callTrace      jvmti.CallTraceFunc
	management     func() jvmti.Management

	methods *MethodIDs
	hooks   hooks

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	started  bool
	stopLoop func()
	dead     atomic.Bool
}

// Init attaches to the runtime. attach is set when the agent is loaded into
// a live VM rather than at startup. Init only fails when the runtime has no
// JVMTI environment; every other missing piece disables a feature.
func Init(vm jvmti.JavaVM, attach bool, opts ...Option) (*VM, error) {
	v := &VM{
		vm:        vm,
		binder:    unboundBinder{},
		sessionID: uuid.New(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.opts == nil {
		v.opts = config.Default()
	}
	if v.resolver == nil {
		v.resolver = NewResolver(v.opts.SymbolCacheSize)
	}
	v.log = log.WithField("session", v.sessionID.String())
	v.methods = NewMethodIDs(v.opts.MethodIDWorkers)
	v.hooks.methods = v.methods
	v.management = func() jvmti.Management { return nil }
	v.ctx, v.cancel = context.WithCancel(context.Background())

	env, res := vm.GetEnv(jvmti.Version1_0)
	if err := res.Err(); err != nil {
		v.cancel()
		return nil, fmt.Errorf("%w: %w", ErrNoJVMTI, err)
	}
	v.env = env

	v.libjvm = v.resolver.LibraryHandle(libJVMName)
	if v.libjvm == nil {
		v.log.Warnf("%s not found, running without native entry points", libJVMName)
	}

	version, vmName := detectVersion(env, v.libjvm)
	v.hotspotVersion = version
	v.log.Infof("Attached to %q, HotSpot version %d (late attach: %v)", vmName, version, attach)

	v.bindEntryPoints(isZero(vmName))
	v.requestCapabilities()
	v.registerCallbacks()

	// Hooks go in before any method IDs are cached so a redefinition racing
	// with the initial load still reloads the class.
	if !v.opts.NoHooks {
		n := v.hooks.install(env.Functions(), layoutsFor(version))
		v.log.Debugf("Installed %d JVMTI hooks", n)
	}

	if !attach {
		v.enableEvent(jvmti.EventVMInit)
		return v, nil
	}
	if err := v.methods.LoadAll(v.ctx, env); err != nil {
		v.log.Warnf("Failed to load method IDs: %v", err)
	}
	v.replayEvents()
	v.ready()
	return v, nil
}

func (v *VM) bindEntryPoints(zero bool) {
	if v.libjvm == nil {
		return
	}
	switch {
	case v.opts.NoCapture:
		v.log.Info("Capture disabled by options")
	case zero:
		v.log.Info("Zero VM does not support capture")
	default:
		if addr := v.libjvm.Lookup(AsyncGetCallTraceSymbol); addr.Valid() {
			v.callTrace = v.binder.BindCallTrace(addr)
		} else {
			v.log.Warnf("%s not found, capture disabled", AsyncGetCallTraceSymbol)
		}
	}

	addr := v.libjvm.Lookup(GetManagementSymbol)
	if !addr.Valid() {
		v.log.Infof("%s not found", GetManagementSymbol)
		return
	}
	getManagement := v.binder.BindGetManagement(addr)
	if getManagement == nil {
		return
	}
	v.management = sync.OnceValue(func() jvmti.Management {
		return getManagement(jvmti.ManagementVersion)
	})
}

func (v *VM) requestCapabilities() {
	caps := jvmti.Capabilities{
		CanRedefineClasses:                  true,
		CanRetransformClasses:               true,
		CanGenerateAllClassHookEvents:       true,
		CanGetBytecodes:                     true,
		CanGetConstantPool:                  true,
		CanGetSourceFileName:                true,
		CanGetLineNumbers:                   true,
		CanGenerateCompiledMethodLoadEvents: true,
		CanGenerateMonitorEvents:            true,
	}
	if err := v.env.AddCapabilities(&caps).Err(); err != nil {
		v.log.Warnf("Failed to add capabilities: %v", err)
	}
}

func (v *VM) enableEvent(event jvmti.Event) {
	if err := v.env.SetEventNotificationMode(true, event).Err(); err != nil {
		v.log.Warnf("Failed to enable %v events: %v", event, err)
	}
}

// replayEvents asks the runtime to resend code events that happened before
// a late attach.
func (v *VM) replayEvents() {
	for _, l := range layoutsFor(v.hotspotVersion) {
		generate, ok := v.env.Functions().Get(l.GenerateEvents).(jvmti.GenerateEventsFunc)
		if !ok {
			continue
		}
		for _, event := range []jvmti.Event{jvmti.EventDynamicCodeGenerated,
			jvmti.EventCompiledMethodLoad} {
			if err := generate(v.env, event).Err(); err != nil {
				v.log.Debugf("GenerateEvents(%v): %v", event, err)
			}
		}
		return
	}
}

// JVMTI returns the JVMTI environment.
func (v *VM) JVMTI() jvmti.Env {
	return v.env
}

// JNI returns the JNI environment of the calling thread, or nil when the
// thread is not attached to the VM.
func (v *VM) JNI() jvmti.JNIEnv {
	jni, res := v.vm.GetJNIEnv(jvmti.JNIVersion1_6)
	if res != jvmti.JNIOk {
		return nil
	}
	return jni
}

// AttachThread attaches the calling goroutine's OS thread to the VM as a
// daemon thread. The goroutine stays locked to the thread until
// DetachThread. It returns nil if the attach failed.
func (v *VM) AttachThread(name string) jvmti.JNIEnv {
	runtime.LockOSThread()
	jni, res := v.vm.AttachCurrentThreadAsDaemon(jvmti.JNIVersion1_6, name)
	if err := res.Err(); err != nil {
		runtime.UnlockOSThread()
		metrics.Add(metrics.IDThreadAttachFailures, 1)
		v.log.Warnf("Failed to attach thread %q: %v", name, err)
		return nil
	}
	metrics.Add(metrics.IDThreadAttaches, 1)
	return jni
}

// DetachThread detaches the calling thread. A JNI environment obtained
// before must not be used afterwards.
func (v *VM) DetachThread() {
	if err := v.vm.DetachCurrentThread().Err(); err != nil {
		v.log.Debugf("Failed to detach thread: %v", err)
	}
	runtime.UnlockOSThread()
}

// Management returns the HotSpot management interface or nil.
func (v *VM) Management() jvmti.Management {
	return v.management()
}

// HotspotVersion returns the detected JDK major version, 0 if unknown.
func (v *VM) HotspotVersion() int {
	return v.hotspotVersion
}

// InRedefineClasses reports whether a class redefinition is in progress.
// Stack traces taken meanwhile may hold stale method identities.
func (v *VM) InRedefineClasses() bool {
	return v.hooks.active()
}

// CallTrace returns AsyncGetCallTrace, or nil when capture is unavailable.
func (v *VM) CallTrace() jvmti.CallTraceFunc {
	return v.callTrace
}

// MethodIDs returns the method ID cache.
func (v *VM) MethodIDs() *MethodIDs {
	return v.methods
}

// LibJVM returns libjvm.so or nil.
func (v *VM) LibJVM() *Library {
	return v.libjvm
}

// LibJava returns libjava.so once the VM is live, nil before.
func (v *VM) LibJava() *Library {
	return v.libjava.Load()
}

// SessionID identifies this attach in logs.
func (v *VM) SessionID() uuid.UUID {
	return v.sessionID
}

// Dead reports whether the VM has shut down.
func (v *VM) Dead() bool {
	return v.dead.Load()
}

// RestartProfiler asks the profiler to restart with timer. Without a
// registered profiler it does nothing.
func (v *VM) RestartProfiler(timer any) (err error) {
	if v.profiler == nil || v.Dead() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("profiler restart panicked: %v", r)
		}
	}()
	metrics.Add(metrics.IDProfilerRestarts, 1)
	return v.profiler.Restart(timer)
}

// Close stops background work and releases the files opened by the
// resolver. The JVMTI hooks stay installed.
func (v *VM) Close() {
	v.stopLoopRestarts()
	v.cancel()
	if c, ok := v.resolver.(io.Closer); ok {
		if err := c.Close(); err != nil {
			v.log.Debugf("Failed to close resolver: %v", err)
		}
	}
}
