// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vmentry // import "go.opentelemetry.io/jvmentry/vmentry"

import "slices"

// Layout gives the JVMTI function table slots of the hooked functions. A
// negative slot means the table has no such function.
type Layout struct {
	// Since is the lowest HotSpot version tag using this layout.
	Since              int
	RedefineClasses    int
	GenerateEvents     int
	RetransformClasses int
}

// layouts is ordered newest first. The slots are zero based indexes into
// jvmtiInterface_1, e.g. RedefineClasses is the 87th function.
var layouts = []Layout{
	// JVMTI 1.1 and later
	{Since: 6, RedefineClasses: 86, GenerateEvents: 122, RetransformClasses: 151},
	// JVMTI 1.0
	{Since: 0, RedefineClasses: 86, GenerateEvents: 122, RetransformClasses: -1},
}

// Layouts returns the known layouts, newest first.
func Layouts() []Layout {
	return slices.Clone(layouts)
}

// layoutsFor returns the layouts usable with version, best match first.
// An unknown version, as reported for VMs not based on HotSpot, gets every
// layout. Rows whose slots do not hold the expected functions are rejected
// at install time.
func layoutsFor(version int) []Layout {
	if version == 0 {
		return layouts
	}
	for i, l := range layouts {
		if version >= l.Since {
			return layouts[i:]
		}
	}
	return nil
}
