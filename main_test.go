// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	tests := map[string]struct {
		argv     []string
		wantArgs arguments
		wantErr  bool
		sane     bool
	}{
		"libjvm": {
			argv:     []string{"-libjvm", "/usr/lib/jvm/lib/server/libjvm.so"},
			wantArgs: arguments{libjvm: "/usr/lib/jvm/lib/server/libjvm.so"},
			sane:     true,
		},
		"pid verbose": {
			argv:     []string{"-pid=4711", "-v"},
			wantArgs: arguments{pid: 4711, verboseMode: true},
			sane:     true,
		},
		"version": {
			argv:     []string{"-version"},
			wantArgs: arguments{version: true},
			sane:     true,
		},
		"both": {
			argv:     []string{"-pid=1", "-libjvm=/x"},
			wantArgs: arguments{pid: 1, libjvm: "/x"},
		},
		"neither": {
			argv: []string{},
		},
		"unknown flag": {
			argv:    []string{"-tracers=all"},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			args, err := parseArgs(tc.argv)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			args.fs = nil
			assert.Equal(t, tc.wantArgs, *args)
			if tc.sane {
				assert.NoError(t, args.sanityCheck())
			} else {
				assert.Error(t, args.sanityCheck())
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, exitSuccess, mainWithExitCode([]string{"-version"}))
	assert.Equal(t, exitParseError, mainWithExitCode([]string{"-bogus"}))
	assert.Equal(t, exitParseError, mainWithExitCode(nil))
	assert.Equal(t, exitFailure, mainWithExitCode([]string{"-libjvm=/nonexistent/libjvm.so"}))
	assert.Equal(t, exitFailure, mainWithExitCode([]string{"-pid", "1", "-v"}))
}

func TestInspectNonJVM(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	r, err := inspect(&arguments{libjvm: exe})
	require.NoError(t, err)
	assert.Equal(t, exe, r.path)
	assert.Zero(t, r.callTrace)
	assert.Zero(t, r.getManagement)
	assert.Zero(t, r.hotspotVersion)
	assert.Len(t, r.layouts, 2)

	var out bytes.Buffer
	r.print(&out)
	assert.Regexp(t, `AsyncGetCallTrace:\s+missing`, out.String())
	assert.Contains(t, out.String(), "hotspot version:    unknown")
}

func TestInspectSelfWithoutJVM(t *testing.T) {
	_, err := inspect(&arguments{pid: os.Getpid()})
	require.ErrorContains(t, err, "libjvm.so is not mapped")
}
