// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/jvmentry/libpf"
	"go.opentelemetry.io/jvmentry/process"
	"go.opentelemetry.io/jvmentry/remotememory"
	"go.opentelemetry.io/jvmentry/vmentry"
)

const inspectCacheSize = 16

// report is what inspect found out about a libjvm.so.
type report struct {
	path           string
	bias           libpf.Address
	callTrace      libpf.Address
	getManagement  libpf.Address
	majorVersion   libpf.Address
	hotspotVersion int
	layouts        []vmentry.Layout
}

// versionReader reads the major version variable from wherever it lives.
type versionReader func(addr libpf.Address) (uint32, error)

func inspect(args *arguments) (*report, error) {
	m := process.Mapping{Path: args.libjvm}
	var mem remotememory.RemoteMemory
	if args.pid != 0 {
		mappings, _, err := process.GetMappings(args.pid)
		if err != nil {
			return nil, err
		}
		var ok bool
		m, ok = process.FindLibrary(mappings, "libjvm.so")
		if !ok {
			return nil, fmt.Errorf("libjvm.so is not mapped into PID %d", args.pid)
		}
		// Resolve the path within the mount namespace of the process.
		m.Path = fmt.Sprintf("/proc/%d/root%s", args.pid, m.Path)
		mem = remotememory.NewProcessVirtualMemory(args.pid)
	}

	lib, ef, err := vmentry.OpenLibrary(m, mem, inspectCacheSize)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	var read versionReader = lib.ReadUint32
	if args.pid == 0 {
		// Without a process only the initial value in the file is known.
		read = func(addr libpf.Address) (uint32, error) {
			return ef.ReadUint32(libpf.SymbolValue(addr - lib.Bias()))
		}
	}

	r := &report{
		path:          lib.Path(),
		bias:          lib.Bias(),
		callTrace:     lib.Lookup(vmentry.AsyncGetCallTraceSymbol),
		getManagement: lib.Lookup(vmentry.GetManagementSymbol),
		majorVersion:  lib.LookupDemangled(vmentry.VMMajorVersionSymbol),
		layouts:       vmentry.Layouts(),
	}
	if r.majorVersion.Valid() {
		major, err := read(r.majorVersion)
		if err != nil {
			log.Warnf("Failed to read %s: %v", vmentry.VMMajorVersionSymbol, err)
		} else {
			r.hotspotVersion = vmentry.VersionFromMajor(major)
		}
	}
	return r, nil
}

func symbolStatus(addr libpf.Address) string {
	if !addr.Valid() {
		return "missing"
	}
	return fmt.Sprintf("%#x", uint64(addr))
}

func (r *report) print(w io.Writer) {
	fmt.Fprintf(w, "library:            %s\n", r.path)
	fmt.Fprintf(w, "load bias:          %#x\n", uint64(r.bias))
	fmt.Fprintf(w, "%-19s %s\n", vmentry.AsyncGetCallTraceSymbol+":",
		symbolStatus(r.callTrace))
	fmt.Fprintf(w, "%-19s %s\n", vmentry.GetManagementSymbol+":",
		symbolStatus(r.getManagement))
	fmt.Fprintf(w, "major version var:  %s\n", symbolStatus(r.majorVersion))
	if r.hotspotVersion != 0 {
		fmt.Fprintf(w, "hotspot version:    %d\n", r.hotspotVersion)
	} else {
		fmt.Fprintf(w, "hotspot version:    unknown\n")
	}
	for _, l := range r.layouts {
		fmt.Fprintf(w, "layout since %-2d      RedefineClasses=%d GenerateEvents=%d "+
			"RetransformClasses=%d\n",
			l.Since, l.RedefineClasses, l.GenerateEvents, l.RetransformClasses)
	}
}
