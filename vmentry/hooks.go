// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vmentry // import "go.opentelemetry.io/jvmentry/vmentry"

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/jvmentry/jvmti"
	"go.opentelemetry.io/jvmentry/metrics"
)

// hooks wraps the JVMTI functions that change class metadata. While any of
// them runs, inFlight is positive and stack walking must not trust method
// identities.
type hooks struct {
	inFlight atomic.Int32
	methods  *MethodIDs

	installed atomic.Bool

	origRedefineClasses    jvmti.RedefineClassesFunc
	origRetransformClasses jvmti.RetransformClassesFunc
	origGenerateEvents     jvmti.GenerateEventsFunc
}

func (h *hooks) enter() {
	h.inFlight.Add(1)
	metrics.Add(metrics.IDHookCalls, 1)
}

func (h *hooks) exit() {
	h.inFlight.Add(-1)
}

func (h *hooks) active() bool {
	return h.inFlight.Load() > 0
}

func hookResult(result jvmti.Error) jvmti.Error {
	if result != jvmti.ErrNone {
		metrics.Add(metrics.IDHookErrors, 1)
	}
	return result
}

// reload refreshes the method IDs of redefined classes. It runs before the
// counter drops so samplers never see stale IDs as valid.
func (h *hooks) reload(env jvmti.Env, class jvmti.Class) {
	if h.methods == nil {
		return
	}
	if err := h.methods.Reload(env, class); err != nil {
		log.Debugf("Reloading method IDs after redefinition: %v", err)
	}
}

func (h *hooks) redefineClassesHook(env jvmti.Env,
	definitions []jvmti.ClassDefinition) jvmti.Error {
	h.enter()
	defer h.exit()

	result := h.origRedefineClasses(env, definitions)
	if result == jvmti.ErrNone {
		for _, def := range definitions {
			h.reload(env, def.Class)
		}
	}
	return hookResult(result)
}

func (h *hooks) retransformClassesHook(env jvmti.Env, classes []jvmti.Class) jvmti.Error {
	h.enter()
	defer h.exit()

	result := h.origRetransformClasses(env, classes)
	if result == jvmti.ErrNone {
		for _, class := range classes {
			h.reload(env, class)
		}
	}
	return hookResult(result)
}

func (h *hooks) generateEventsHook(env jvmti.Env, event jvmti.Event) jvmti.Error {
	h.enter()
	defer h.exit()

	return hookResult(h.origGenerateEvents(env, event))
}

// install patches table using the first layout in candidates whose slot
// holds the expected function. Hooks without a matching slot are skipped.
// It returns the number of installed hooks.
func (h *hooks) install(table *jvmti.FunctionTable, candidates []Layout) int {
	if !h.installed.CompareAndSwap(false, true) {
		return 0
	}

	n := 0
	if installHook(table, "RedefineClasses", candidates,
		func(l Layout) int { return l.RedefineClasses },
		&h.origRedefineClasses, jvmti.RedefineClassesFunc(h.redefineClassesHook)) {
		n++
	}
	if installHook(table, "RetransformClasses", candidates,
		func(l Layout) int { return l.RetransformClasses },
		&h.origRetransformClasses, jvmti.RetransformClassesFunc(h.retransformClassesHook)) {
		n++
	}
	if installHook(table, "GenerateEvents", candidates,
		func(l Layout) int { return l.GenerateEvents },
		&h.origGenerateEvents, jvmti.GenerateEventsFunc(h.generateEventsHook)) {
		n++
	}
	return n
}

// installHook stores the original function in orig before the hook becomes
// visible in the table. The original is whatever the slot holds at the moment
// the hook replaces it.
func installHook[F any](table *jvmti.FunctionTable, name string, candidates []Layout,
	slotOf func(Layout) int, orig *F, hook F) bool {
	for _, l := range candidates {
		slot := slotOf(l)
		if slot < 0 {
			continue
		}
		patched := table.Patch(slot, func(cur any) any {
			fn, ok := cur.(F)
			if !ok {
				var zero F
				*orig = zero
				return nil
			}
			*orig = fn
			return hook
		})
		if !patched {
			log.Debugf("Slot %d does not hold %s, trying older layout", slot, name)
			continue
		}
		log.Debugf("Hooked %s at slot %d", name, slot)
		return true
	}
	log.Warnf("Not hooking %s: no function table slot matches", name)
	return false
}
