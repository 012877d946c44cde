// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vmentry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/jvmentry/config"
	"go.opentelemetry.io/jvmentry/jvmti"
	"go.opentelemetry.io/jvmentry/jvmti/jvmtitest"
	"go.opentelemetry.io/jvmentry/libpf"
)

func TestInitNoJVMTI(t *testing.T) {
	rt := newOpenJDK17()
	rt.GetEnvResult = jvmti.JNIEVersion

	v, err := Init(rt, false, WithResolver(fakeResolver{}))
	require.ErrorIs(t, err, ErrNoJVMTI)
	require.ErrorIs(t, err, jvmti.JNIEVersion)
	assert.Nil(t, v)
}

func TestInit(t *testing.T) {
	tests := map[string]struct {
		vmName      string
		vmVersion   string
		wantVersion int
		wantCapture bool
	}{
		"openjdk 17": {
			vmName:      "OpenJDK 64-Bit Server VM",
			vmVersion:   "17.0.8+7",
			wantVersion: 17,
			wantCapture: true,
		},
		"hotspot 8": {
			vmName:      "Java HotSpot(TM) 64-Bit Server VM",
			vmVersion:   "25.402-b06",
			wantVersion: 8,
			wantCapture: true,
		},
		"graalvm 21": {
			vmName:      "GraalVM CE 21.0.1+12.1",
			vmVersion:   "21.0.1+12-jvmci-23.1-b22",
			wantVersion: 21,
			wantCapture: true,
		},
		"zero": {
			vmName:      "OpenJDK 64-Bit Zero VM",
			vmVersion:   "11.0.21+9",
			wantVersion: 11,
		},
		"openj9": {
			vmName:      "Eclipse OpenJ9 VM",
			vmVersion:   "openj9-0.40.0",
			wantVersion: 0,
			wantCapture: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rt := jvmtitest.NewVM(tc.vmName, tc.vmVersion, jvmtitest.DefaultSlots)
			binder := &fakeBinder{}
			v, err := Init(rt, false,
				WithResolver(newFakeResolver(t, libjvmSymbols)),
				WithBinder(binder))
			require.NoError(t, err)
			defer v.Close()

			assert.Equal(t, tc.wantVersion, v.HotspotVersion())
			assert.Same(t, rt.Env(), v.JVMTI())
			assert.NotNil(t, v.LibJVM())
			assert.Nil(t, v.LibJava())
			assert.NotEqual(t, [16]byte{}, [16]byte(v.SessionID()))

			if !tc.wantCapture {
				assert.Nil(t, v.CallTrace())
				return
			}
			require.NotNil(t, v.CallTrace())
			assert.Equal(t, testBias+0x8a1230, binder.callTraceAddr)

			trace := jvmti.NewCallTrace(8)
			v.CallTrace()(trace, 8, 0)
			require.Equal(t, int32(1), trace.NumFrames)
			assert.Equal(t, jvmti.Frame{Kind: jvmti.FrameJava, BCI: 7,
				Method: 0x7f0000001000}, trace.Frame(0))

			v.CallTrace()(trace, 0, 0)
			failure, failed := trace.Failure()
			require.True(t, failed)
			assert.Equal(t, jvmti.TicksUnknownState, failure)
		})
	}
}

func TestInitSetsUpRuntime(t *testing.T) {
	rt := newOpenJDK17()
	env := rt.Env()
	initTestVM(t, rt, false)

	caps := env.Capabilities()
	assert.True(t, caps.CanRedefineClasses)
	assert.True(t, caps.CanRetransformClasses)
	assert.True(t, caps.CanGenerateAllClassHookEvents)
	assert.True(t, caps.CanGetBytecodes)
	assert.True(t, caps.CanGetConstantPool)
	assert.True(t, caps.CanGetSourceFileName)
	assert.True(t, caps.CanGetLineNumbers)
	assert.True(t, caps.CanGenerateCompiledMethodLoadEvents)
	assert.True(t, caps.CanGenerateMonitorEvents)

	for _, event := range []jvmti.Event{jvmti.EventVMInit, jvmti.EventVMDeath,
		jvmti.EventClassLoad, jvmti.EventClassPrepare} {
		assert.True(t, env.Enabled(event), event.String())
	}
	assert.Empty(t, env.Generated())
}

func TestInitToleratesRefusedCapabilities(t *testing.T) {
	rt := newOpenJDK17()
	rt.Env().CapabilitiesResult = jvmti.ErrNotAvailable
	v := initTestVM(t, rt, false)

	assert.Equal(t, 17, v.HotspotVersion())
	assert.NotNil(t, v.CallTrace())
}

func TestInitMissingSymbols(t *testing.T) {
	rt := newOpenJDK17()
	binder := &fakeBinder{}
	v, err := Init(rt, false,
		WithResolver(newFakeResolver(t, fakeSymbols{})),
		WithBinder(binder))
	require.NoError(t, err)
	defer v.Close()

	assert.Nil(t, v.CallTrace())
	assert.Nil(t, v.Management())
	assert.Zero(t, binder.callTraceAddr)
	assert.Zero(t, binder.managementAddr)
}

func TestInitWithoutLibJVM(t *testing.T) {
	rt := newOpenJDK17()
	v, err := Init(rt, false, WithResolver(fakeResolver{}), WithBinder(&fakeBinder{}))
	require.NoError(t, err)
	defer v.Close()

	assert.Nil(t, v.LibJVM())
	assert.Nil(t, v.CallTrace())
	assert.Nil(t, v.Management())
	assert.Equal(t, 17, v.HotspotVersion())
}

func TestInitWithoutBinder(t *testing.T) {
	rt := newOpenJDK17()
	v, err := Init(rt, false, WithResolver(newFakeResolver(t, libjvmSymbols)))
	require.NoError(t, err)
	defer v.Close()

	assert.Nil(t, v.CallTrace())
	assert.Nil(t, v.Management())
}

func TestInitNoCaptureOption(t *testing.T) {
	rt := newOpenJDK17()
	v := initTestVM(t, rt, false, WithOptions(testOptions(func(o *config.Options) {
		o.NoCapture = true
	})))

	assert.Nil(t, v.CallTrace())
	assert.NotNil(t, v.Management())
}

func TestManagement(t *testing.T) {
	rt := newOpenJDK17()
	binder := &fakeBinder{}
	v, err := Init(rt, false,
		WithResolver(newFakeResolver(t, libjvmSymbols)),
		WithBinder(binder))
	require.NoError(t, err)
	defer v.Close()

	assert.Equal(t, testBias+0x8b4560, binder.managementAddr)
	mgmt := v.Management()
	require.NotNil(t, mgmt)
	assert.Equal(t, mgmt, v.Management())
	assert.Equal(t, []int32{jvmti.ManagementVersion}, binder.managementVersions)

	out, jerr := mgmt.ExecuteDiagnosticCommand(v.JNI(), "VM.version")
	require.Equal(t, jvmti.ErrNone, jerr)
	assert.Contains(t, out, "17.0.8")
}

func TestManagementUnsupported(t *testing.T) {
	rt := newOpenJDK17()
	v, err := Init(rt, false,
		WithResolver(newFakeResolver(t, libjvmSymbols)),
		WithBinder(&fakeBinder{noManagement: true}))
	require.NoError(t, err)
	defer v.Close()

	assert.Nil(t, v.Management())
	assert.NotNil(t, v.CallTrace())
}

func TestLateAttach(t *testing.T) {
	rt := newOpenJDK17()
	env := rt.Env()
	var classes []jvmti.Class
	for _, sig := range []string{"Ljava/lang/Object;", "Ljava/lang/Thread;", "LMain;"} {
		classes = append(classes, env.DefineClass(sig, 3))
	}
	profiler := &fakeProfiler{}
	v := initTestVM(t, rt, true, WithProfiler(profiler))

	assert.Equal(t, len(classes), v.MethodIDs().Len())
	for _, class := range classes {
		ids, ok := v.MethodIDs().Lookup(class)
		require.True(t, ok)
		assert.Len(t, ids, 3)
	}
	assert.False(t, env.Enabled(jvmti.EventVMInit))
	assert.Equal(t, []jvmti.Event{jvmti.EventDynamicCodeGenerated,
		jvmti.EventCompiledMethodLoad}, env.Generated())
	assert.NotNil(t, v.LibJava())
	assert.Equal(t, int32(1), profiler.started.Load())

	// A late VMInit does not start the profiler twice.
	v.vmInit(env, nil, 0)
	assert.Equal(t, int32(1), profiler.started.Load())
}

// redefiningEnv redefines class right after its methods were listed, like
// another agent racing with the initial method ID load.
type redefiningEnv struct {
	*jvmtitest.Env
	class jvmti.Class
	once  sync.Once
}

func (e *redefiningEnv) GetClassMethods(class jvmti.Class) ([]jvmti.MethodID, jvmti.Error) {
	ids, jerr := e.Env.GetClassMethods(class)
	if class == e.class {
		e.once.Do(func() {
			e.Env.RedefineClasses([]jvmti.ClassDefinition{{Class: class}})
		})
	}
	return ids, jerr
}

// envVM hands out env instead of the runtime's own environment.
type envVM struct {
	*jvmtitest.VM
	env jvmti.Env
}

func (vm envVM) GetEnv(jvmti.Version) (jvmti.Env, jvmti.JNIResult) {
	return vm.env, jvmti.JNIOk
}

func TestLateAttachRedefineDuringLoad(t *testing.T) {
	rt := newOpenJDK17()
	rt.Env().DefineClass("Ljava/lang/Object;", 1)
	class := rt.Env().DefineClass("Lcom/example/Racy;", 2)
	env := &redefiningEnv{Env: rt.Env(), class: class}

	v, err := Init(envVM{VM: rt, env: env}, true,
		WithResolver(newFakeResolver(t, libjvmSymbols)), WithBinder(&fakeBinder{}))
	require.NoError(t, err)
	defer v.Close()

	cached, ok := v.MethodIDs().Lookup(class)
	require.True(t, ok)
	current, jerr := rt.Env().GetClassMethods(class)
	require.Equal(t, jvmti.ErrNone, jerr)
	assert.Equal(t, current, cached)
	assert.False(t, v.InRedefineClasses())
}

type closingResolver struct {
	fakeResolver
	closed atomic.Int32
}

func (r *closingResolver) Close() error {
	r.closed.Add(1)
	return nil
}

func TestCloseReleasesResolver(t *testing.T) {
	r := &closingResolver{fakeResolver: newFakeResolver(t, libjvmSymbols)}
	v, err := Init(newOpenJDK17(), false, WithResolver(r), WithBinder(&fakeBinder{}))
	require.NoError(t, err)

	v.Close()
	assert.Equal(t, int32(1), r.closed.Load())
}

func TestStartupLifecycle(t *testing.T) {
	rt := newOpenJDK17()
	env := rt.Env()
	boot := env.DefineClass("Ljava/lang/System;", 6)
	profiler := &fakeProfiler{}
	v := initTestVM(t, rt, false, WithProfiler(profiler))

	assert.Zero(t, v.MethodIDs().Len())
	assert.Nil(t, v.LibJava())

	env.Start(nil)
	assert.Equal(t, int32(1), profiler.started.Load())
	assert.NotNil(t, v.LibJava())
	_, ok := v.MethodIDs().Lookup(boot)
	assert.True(t, ok)

	class := env.LoadClass(nil, "Lcom/example/Late;", 2)
	ids, ok := v.MethodIDs().Lookup(class)
	require.True(t, ok)
	assert.Len(t, ids, 2)

	env.Shutdown(nil)
	assert.True(t, v.Dead())
	assert.Equal(t, int32(1), profiler.shutdowns.Load())
	env.Shutdown(nil)
	assert.Equal(t, int32(1), profiler.shutdowns.Load())

	// Events after death are ignored.
	dead := env.LoadClass(nil, "Lcom/example/AfterDeath;", 1)
	_, ok = v.MethodIDs().Lookup(dead)
	assert.False(t, ok)
	require.NoError(t, v.RestartProfiler(nil))
	assert.Zero(t, profiler.restarts.Load())
}

func TestProfilerPanicsAreRecovered(t *testing.T) {
	rt := newOpenJDK17()
	env := rt.Env()
	profiler := &fakeProfiler{panics: true}
	v := initTestVM(t, rt, false, WithProfiler(profiler))

	assert.NotPanics(t, func() { env.Start(nil) })
	assert.NotPanics(t, func() { env.Shutdown(nil) })
	assert.Equal(t, int32(1), profiler.started.Load())
	assert.Equal(t, int32(1), profiler.shutdowns.Load())
	assert.True(t, v.Dead())
}

func TestRestartProfiler(t *testing.T) {
	rt := newOpenJDK17()
	v := initTestVM(t, rt, false)
	require.NoError(t, v.RestartProfiler(nil))

	rt = newOpenJDK17()
	profiler := &fakeProfiler{}
	v = initTestVM(t, rt, false, WithProfiler(profiler))
	require.NoError(t, v.RestartProfiler("cpu=10ms"))
	assert.Equal(t, int32(1), profiler.restarts.Load())
}

type panickingRestart struct {
	fakeProfiler
}

func (*panickingRestart) Restart(any) error {
	panic("bad timer")
}

func TestRestartProfilerPanic(t *testing.T) {
	rt := newOpenJDK17()
	v := initTestVM(t, rt, false, WithProfiler(&panickingRestart{}))
	require.Error(t, v.RestartProfiler(nil))
}

func TestLoopRestartsStopAfterVMDeath(t *testing.T) {
	rt := newOpenJDK17()
	env := rt.Env()
	profiler := &fakeProfiler{}
	initTestVM(t, rt, false, WithProfiler(profiler),
		WithOptions(testOptions(func(o *config.Options) {
			o.Loop = 5 * time.Millisecond
		})))

	// No restarts before the VM is live.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, profiler.restarts.Load())

	env.Start(nil)
	require.Eventually(t, func() bool {
		return profiler.restarts.Load() >= 2
	}, 5*time.Second, 5*time.Millisecond)

	env.Shutdown(nil)
	restarts := profiler.restarts.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, restarts, profiler.restarts.Load())
}

func TestAttachDetachThread(t *testing.T) {
	rt := newOpenJDK17()
	v := initTestVM(t, rt, false)

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Nil(t, v.JNI())

			jni := v.AttachThread("jvmentry-worker")
			if !assert.NotNil(t, jni, "worker %d", i) {
				return
			}
			assert.Same(t, jni, v.JNI())

			v.DetachThread()
			assert.False(t, jni.(*jvmtitest.JNIEnv).Valid())
			assert.Nil(t, v.JNI())
		}()
	}
	wg.Wait()

	assert.Zero(t, rt.Attached())
	attaches, detaches := rt.AttachCounts()
	assert.Equal(t, 4, attaches)
	assert.Equal(t, attaches, detaches)
}

func TestLibraryAddresses(t *testing.T) {
	lib := newTestLibrary(t, libjvmSymbols, nil)
	assert.Equal(t, testBias, lib.Bias())
	assert.Equal(t, libpf.Address(0), lib.Lookup(""))
}
