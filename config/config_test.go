// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentArgs(t *testing.T) {
	tests := map[string]struct {
		args    string
		want    *Options
		wantErr bool
	}{
		"empty": {
			args: "",
			want: Default(),
		},
		"all options": {
			args: "loglevel=debug,loop=30s,nocapture,nohooks,methodid-workers=8,symbol-cache-size=64",
			want: &Options{
				LogLevel:        "debug",
				Loop:            30 * time.Second,
				NoCapture:       true,
				NoHooks:         true,
				MethodIDWorkers: 8,
				SymbolCacheSize: 64,
			},
		},
		"spaces and empty items": {
			args: " loop=1m, ,nohooks ",
			want: &Options{
				LogLevel:        defaultLogLevel,
				Loop:            time.Minute,
				NoHooks:         true,
				MethodIDWorkers: defaultMethodIDWorkers,
				SymbolCacheSize: defaultSymbolCacheSize,
			},
		},
		"unknown option":  {args: "start,event=cpu", wantErr: true},
		"bad duration":    {args: "loop=soon", wantErr: true},
		"bad log level":   {args: "loglevel=loud", wantErr: true},
		"negative loop":   {args: "loop=-1s", wantErr: true},
		"too few workers": {args: "methodid-workers=0", wantErr: true},
		"tiny cache":      {args: "symbol-cache-size=1", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseAgentArgs(tc.args)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseAgentArgsEnvironment(t *testing.T) {
	t.Setenv("JVMENTRY_LOOP", "5s")
	t.Setenv("JVMENTRY_NOHOOKS", "true")

	got, err := ParseAgentArgs("loglevel=warn")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, got.Loop)
	assert.True(t, got.NoHooks)
	assert.Equal(t, "warn", got.LogLevel)

	// Explicit agent options win over the environment.
	got, err = ParseAgentArgs("loop=7s")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, got.Loop)
}
