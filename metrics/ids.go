// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/jvmentry/metrics"

// To add a new metric append an ID here and a definition below. ONLY APPEND !
const (
	// Leave out the 0 value. It's an indication of not explicitly initialized variables.
	IDInvalid MetricID = iota

	// Symbols resolved in runtime libraries
	IDSymbolResolved

	// Symbols not found in runtime libraries
	IDSymbolMissing

	// Calls that went through a JVMTI function table hook
	IDHookCalls

	// Hooked calls whose original returned an error code
	IDHookErrors

	// Classes whose method IDs were loaded into the cache
	IDClassesLoaded

	// Method IDs stored in the cache
	IDMethodIDsLoaded

	// Failed GetClassMethods calls
	IDMethodIDLoadErrors

	// Native threads attached to the runtime
	IDThreadAttaches

	// Failed attach attempts
	IDThreadAttachFailures

	// Profiler restarts requested through the controller
	IDProfilerRestarts

	// Classes currently held in the method ID cache
	IDMethodIDCacheSize

	// Max valid metric ID
	IDMax
)

//nolint:lll
var definitions = []MetricDefinition{
	{IDSymbolResolved, "jvm.symbols.resolved", "Symbols resolved in runtime libraries", "{symbol}", MetricTypeCounter},
	{IDSymbolMissing, "jvm.symbols.missing", "Symbols not found in runtime libraries", "{symbol}", MetricTypeCounter},
	{IDHookCalls, "jvm.hooks.calls", "Calls through JVMTI function table hooks", "{call}", MetricTypeCounter},
	{IDHookErrors, "jvm.hooks.errors", "Hooked calls returning an error code", "{call}", MetricTypeCounter},
	{IDClassesLoaded, "jvm.methodids.classes", "Classes with cached method IDs", "{class}", MetricTypeCounter},
	{IDMethodIDsLoaded, "jvm.methodids.loaded", "Method IDs stored in the cache", "{method}", MetricTypeCounter},
	{IDMethodIDLoadErrors, "jvm.methodids.errors", "Failed GetClassMethods calls", "{call}", MetricTypeCounter},
	{IDThreadAttaches, "jvm.threads.attaches", "Native threads attached to the runtime", "{thread}", MetricTypeCounter},
	{IDThreadAttachFailures, "jvm.threads.attach_failures", "Failed thread attach attempts", "{thread}", MetricTypeCounter},
	{IDProfilerRestarts, "jvm.profiler.restarts", "Profiler restarts requested", "{restart}", MetricTypeCounter},
	{IDMethodIDCacheSize, "jvm.methodids.cached", "Classes currently in the method ID cache", "{class}", MetricTypeGauge},
}

// GetDefinitions returns the metric definitions.
func GetDefinitions() []MetricDefinition {
	return definitions
}
