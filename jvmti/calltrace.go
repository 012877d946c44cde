// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jvmti // import "go.opentelemetry.io/jvmentry/jvmti"

import "fmt"

// CallFrame is one ASGCT_CallFrame. When BCI is one of the BCI* frame type
// markers, MethodID does not hold a method but the marker's payload.
type CallFrame struct {
	BCI      int32
	MethodID MethodID
}

// CallTrace is the ASGCT_CallTrace buffer. It is owned by the caller and
// filled in place by the capture function. NumFrames is either the number of
// valid Frames or a CallTraceFailure code (zero or negative).
type CallTrace struct {
	Env       JNIEnv
	NumFrames int32
	Frames    []CallFrame
}

// CallTraceFunc is the signature of AsyncGetCallTrace. depth is the capacity
// available in trace.Frames; ucontext is the signal context or 0.
type CallTraceFunc func(trace *CallTrace, depth int32, ucontext uintptr)

// NewCallTrace allocates a trace buffer for up to depth frames. Allocate
// buffers up front; the capture path itself must not allocate.
func NewCallTrace(depth int) *CallTrace {
	return &CallTrace{Frames: make([]CallFrame, depth)}
}

// Frame type markers stored in CallFrame.BCI.
const (
	BCINativeFrame       int32 = -10 // native function name
	BCIAlloc             int32 = -11 // name of the allocated class
	BCIAllocOutsideTLAB  int32 = -12 // name of the class allocated outside TLAB
	BCILock              int32 = -13 // class name of the locked object
	BCIPark              int32 = -14 // class name of the park() blocker
	BCIThreadID          int32 = -15 // payload designates a thread
	BCIError             int32 = -16 // payload is an error string
	BCIInstrument        int32 = -17 // synthetic frame hidden from call stacks
	bciFirstMarker             = BCIInstrument
	bciLastMarker              = BCINativeFrame
	callTraceFailureTypes      = 12
)

// FrameKind tells how a decoded Frame is to be interpreted.
type FrameKind uint8

const (
	FrameJava FrameKind = iota
	FrameNative
	FrameAlloc
	FrameAllocOutsideTLAB
	FrameLock
	FramePark
	FrameThreadID
	FrameError
	FrameInstrument
)

var frameKindNames = [...]string{
	FrameJava:             "java",
	FrameNative:           "native",
	FrameAlloc:            "alloc",
	FrameAllocOutsideTLAB: "alloc_outside_tlab",
	FrameLock:             "lock",
	FramePark:             "park",
	FrameThreadID:         "thread_id",
	FrameError:            "error",
	FrameInstrument:       "instrument",
}

func (k FrameKind) String() string {
	if int(k) < len(frameKindNames) {
		return frameKindNames[k]
	}
	return fmt.Sprintf("FrameKind(%d)", uint8(k))
}

// Frame is the decoded form of a CallFrame. For FrameJava, Method and BCI are
// set. For every other kind, Payload carries the raw marker payload (a name
// pointer, class, thread id or error string pointer) and Method is zero.
type Frame struct {
	Kind    FrameKind
	BCI     int32
	Method  MethodID
	Payload uintptr
}

// DecodeFrame converts a raw CallFrame. It does not allocate.
func DecodeFrame(cf CallFrame) Frame {
	if cf.BCI < bciFirstMarker || cf.BCI > bciLastMarker {
		return Frame{Kind: FrameJava, BCI: cf.BCI, Method: cf.MethodID}
	}
	// BCINativeFrame maps to FrameNative, BCIInstrument to FrameInstrument.
	kind := FrameNative + FrameKind(BCINativeFrame-cf.BCI)
	return Frame{Kind: kind, BCI: cf.BCI, Payload: uintptr(cf.MethodID)}
}

// Frame returns the decoded frame i. It does not allocate and is safe to use
// from a signal handler context.
func (t *CallTrace) Frame(i int) Frame {
	return DecodeFrame(t.Frames[i])
}

// Failure reports the failure code when the capture produced no frames.
func (t *CallTrace) Failure() (CallTraceFailure, bool) {
	if t.NumFrames > 0 {
		return 0, false
	}
	return CallTraceFailure(t.NumFrames), true
}

// CallTraceFailure is the reason AsyncGetCallTrace returned no frames.
// The values follow ticks_* in hotspot/share/prims/forte.cpp.
type CallTraceFailure int32

const (
	TicksNoJavaFrame        CallTraceFailure = 0
	TicksNoClassLoad        CallTraceFailure = -1
	TicksGCActive           CallTraceFailure = -2
	TicksUnknownNotJava     CallTraceFailure = -3
	TicksNotWalkableNotJava CallTraceFailure = -4
	TicksUnknownJava        CallTraceFailure = -5
	TicksNotWalkableJava    CallTraceFailure = -6
	TicksUnknownState       CallTraceFailure = -7
	TicksThreadExit         CallTraceFailure = -8
	TicksDeopt              CallTraceFailure = -9
	TicksSafepoint          CallTraceFailure = -10
	TicksSkipped            CallTraceFailure = -11
)

var failureNames = [callTraceFailureTypes]string{
	"no_Java_frame",
	"no_class_load",
	"GC_active",
	"unknown_not_Java",
	"not_walkable_not_Java",
	"unknown_Java",
	"not_walkable_Java",
	"unknown_state",
	"thread_exit",
	"deopt",
	"safepoint",
	"skipped",
}

func (f CallTraceFailure) String() string {
	if f <= 0 && -f < callTraceFailureTypes {
		return failureNames[-f]
	}
	return fmt.Sprintf("ticks(%d)", int32(f))
}
