// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vmentry // import "go.opentelemetry.io/jvmentry/vmentry"

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/jvmentry/jvmti"
	"go.opentelemetry.io/jvmentry/metrics"
)

// MethodIDs caches the jmethodIDs of prepared classes. The runtime creates
// jmethodIDs lazily, and creating them from the sampling path is unsafe, so
// they are created here ahead of time.
//
// Readers never lock. Each class entry is published once and only replaced
// after the class got redefined.
type MethodIDs struct {
	workers int

	// classes maps jvmti.Class to []jvmti.MethodID
	classes sync.Map
	count   atomic.Int64
}

// NewMethodIDs returns an empty cache. LoadAll uses up to workers goroutines.
func NewMethodIDs(workers int) *MethodIDs {
	if workers < 1 {
		workers = 1
	}
	return &MethodIDs{workers: workers}
}

// Load fetches and stores the method IDs of class. Loading a class already
// in the cache does nothing.
func (m *MethodIDs) Load(env jvmti.Env, class jvmti.Class) error {
	if _, ok := m.classes.Load(class); ok {
		return nil
	}
	ids, err := m.fetch(env, class)
	if err != nil {
		return err
	}
	if _, loaded := m.classes.LoadOrStore(class, ids); !loaded {
		m.grow(1)
		metrics.Add(metrics.IDClassesLoaded, 1)
		metrics.Add(metrics.IDMethodIDsLoaded, metrics.MetricValue(len(ids)))
	}
	return nil
}

// Reload replaces the cached method IDs of class with the current ones.
func (m *MethodIDs) Reload(env jvmti.Env, class jvmti.Class) error {
	ids, err := m.fetch(env, class)
	if err != nil {
		m.Invalidate(class)
		return err
	}
	if _, loaded := m.classes.Swap(class, ids); !loaded {
		m.grow(1)
		metrics.Add(metrics.IDClassesLoaded, 1)
	}
	metrics.Add(metrics.IDMethodIDsLoaded, metrics.MetricValue(len(ids)))
	return nil
}

func (m *MethodIDs) fetch(env jvmti.Env, class jvmti.Class) ([]jvmti.MethodID, error) {
	ids, jerr := env.GetClassMethods(class)
	if err := jerr.Err(); err != nil {
		metrics.Add(metrics.IDMethodIDLoadErrors, 1)
		return nil, fmt.Errorf("GetClassMethods(%#x): %w", class, err)
	}
	return ids, nil
}

// LoadAll loads the method IDs of every class loaded so far. Classes that
// fail to load, e.g. because they are not prepared yet, are skipped.
func (m *MethodIDs) LoadAll(ctx context.Context, env jvmti.Env) error {
	classes, jerr := env.GetLoadedClasses()
	if err := jerr.Err(); err != nil {
		return fmt.Errorf("GetLoadedClasses: %w", err)
	}

	var failed atomic.Int32
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, class := range classes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.Load(env, class); err != nil {
				failed.Add(1)
				log.Debugf("Skipping class: %v", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Debugf("Loaded method IDs of %d classes, %d failed",
		len(classes)-int(failed.Load()), failed.Load())
	return nil
}

// Invalidate drops the cached method IDs of class.
func (m *MethodIDs) Invalidate(class jvmti.Class) {
	if _, loaded := m.classes.LoadAndDelete(class); loaded {
		m.grow(-1)
	}
}

func (m *MethodIDs) grow(delta int64) {
	metrics.Add(metrics.IDMethodIDCacheSize, metrics.MetricValue(m.count.Add(delta)))
}

// Lookup returns the cached method IDs of class.
func (m *MethodIDs) Lookup(class jvmti.Class) ([]jvmti.MethodID, bool) {
	v, ok := m.classes.Load(class)
	if !ok {
		return nil, false
	}
	return v.([]jvmti.MethodID), true
}

// Len returns the number of classes in the cache.
func (m *MethodIDs) Len() int {
	return int(m.count.Load())
}
