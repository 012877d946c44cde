// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vmentry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/jvmentry/jvmti"
	"go.opentelemetry.io/jvmentry/jvmti/jvmtitest"
	"go.opentelemetry.io/jvmentry/metrics"
)

func newTestEnv() *jvmtitest.Env {
	return jvmtitest.NewVM("OpenJDK 64-Bit Server VM", "21.0.1+12",
		jvmtitest.DefaultSlots).Env()
}

func TestMethodIDsLoadIsIdempotent(t *testing.T) {
	env := newTestEnv()
	class := env.DefineClass("Ljava/lang/String;", 5)
	m := NewMethodIDs(1)

	require.NoError(t, m.Load(env, class))
	first, ok := m.Lookup(class)
	require.True(t, ok)
	require.Len(t, first, 5)

	require.NoError(t, m.Load(env, class))
	second, _ := m.Lookup(class)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.MethodCalls())
	assert.Equal(t, 1, m.Len())
}

func TestMethodIDsConcurrentLoad(t *testing.T) {
	env := newTestEnv()
	class := env.DefineClass("Ljava/util/HashMap;", 40)
	m := NewMethodIDs(1)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Load(env, class))
		}()
	}
	wg.Wait()

	ids, ok := m.Lookup(class)
	require.True(t, ok)
	assert.Len(t, ids, 40)
	assert.Equal(t, 1, m.Len())
}

func TestMethodIDsLoadUnknownClass(t *testing.T) {
	m := NewMethodIDs(1)
	err := m.Load(newTestEnv(), 0x4242)
	require.ErrorIs(t, err, jvmti.ErrInvalidClass)
	assert.Zero(t, m.Len())
}

func TestMethodIDsLoadAll(t *testing.T) {
	env := newTestEnv()
	for i := range 50 {
		env.DefineClass(fmt.Sprintf("Lcom/example/C%d;", i), i%7)
	}
	m := NewMethodIDs(4)

	require.NoError(t, m.LoadAll(context.Background(), env))
	assert.Equal(t, 50, m.Len())
	assert.Equal(t, 50, env.MethodCalls())

	// Loaded classes are not fetched again.
	require.NoError(t, m.LoadAll(context.Background(), env))
	assert.Equal(t, 50, env.MethodCalls())
}

func TestMethodIDsLoadAllCanceled(t *testing.T) {
	env := newTestEnv()
	env.DefineClass("LA;", 1)
	m := NewMethodIDs(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.LoadAll(ctx, env), context.Canceled)
	assert.Zero(t, m.Len())
}

func TestMethodIDsReloadAndInvalidate(t *testing.T) {
	env := newTestEnv()
	class := env.DefineClass("LB;", 2)
	m := NewMethodIDs(1)
	require.NoError(t, m.Load(env, class))
	old, _ := m.Lookup(class)

	require.Equal(t, jvmti.ErrNone,
		env.RedefineClasses([]jvmti.ClassDefinition{{Class: class}}))
	require.NoError(t, m.Reload(env, class))
	cur, ok := m.Lookup(class)
	require.True(t, ok)
	assert.NotEqual(t, old, cur)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, metrics.MetricValue(1), metrics.Value(metrics.IDMethodIDCacheSize))

	m.Invalidate(class)
	_, ok = m.Lookup(class)
	assert.False(t, ok)
	assert.Zero(t, m.Len())
	assert.Zero(t, metrics.Value(metrics.IDMethodIDCacheSize))
	m.Invalidate(class)
	assert.Zero(t, m.Len())
}

func newTestEnvWith(vmName, vmVersion string) *jvmtitest.Env {
	return jvmtitest.NewVM(vmName, vmVersion, jvmtitest.DefaultSlots).Env()
}
