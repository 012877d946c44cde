// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config parses the agent option string handed to the agent at load
// time, e.g. -agentpath:libjvmentry.so=loglevel=debug,loop=30s,nohooks.
package config // import "go.opentelemetry.io/jvmentry/config"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
	log "github.com/sirupsen/logrus"
)

const (
	// Default values for agent options
	defaultLogLevel        = "info"
	defaultMethodIDWorkers = 4
	defaultSymbolCacheSize = 256

	minSymbolCacheSize = 16
	maxMethodIDWorkers = 64

	// EnvVarPrefix is the prefix of environment variables overriding options,
	// e.g. JVMENTRY_LOGLEVEL.
	EnvVarPrefix = "JVMENTRY"
)

// Help strings for agent options
var (
	logLevelHelp        = "Log level (trace, debug, info, warn, error)."
	loopHelp            = "Restart the profiler every given interval. 0 disables."
	noCaptureHelp       = "Do not resolve AsyncGetCallTrace."
	noHooksHelp         = "Do not patch the JVMTI function table."
	methodIDWorkersHelp = "Number of goroutines loading method IDs on late attach."
	symbolCacheSizeHelp = "Number of symbol lookups cached per library."
)

// Options are the parsed agent options.
type Options struct {
	LogLevel        string
	Loop            time.Duration
	NoCapture       bool
	NoHooks         bool
	MethodIDWorkers int
	SymbolCacheSize int
}

// Default returns the options used when the agent gets no arguments.
func Default() *Options {
	return &Options{
		LogLevel:        defaultLogLevel,
		MethodIDWorkers: defaultMethodIDWorkers,
		SymbolCacheSize: defaultSymbolCacheSize,
	}
}

func (o *Options) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("jvmentry", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.StringVar(&o.LogLevel, "loglevel", defaultLogLevel, logLevelHelp)
	fs.DurationVar(&o.Loop, "loop", 0, loopHelp)
	fs.IntVar(&o.MethodIDWorkers, "methodid-workers", defaultMethodIDWorkers,
		methodIDWorkersHelp)
	fs.BoolVar(&o.NoCapture, "nocapture", false, noCaptureHelp)
	fs.BoolVar(&o.NoHooks, "nohooks", false, noHooksHelp)
	fs.IntVar(&o.SymbolCacheSize, "symbol-cache-size", defaultSymbolCacheSize,
		symbolCacheSizeHelp)
	return fs
}

// splitAgentArgs turns "a=1,b" into "-a=1", "-b".
func splitAgentArgs(args string) []string {
	var out []string
	for _, arg := range strings.Split(args, ",") {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		out = append(out, "-"+arg)
	}
	return out
}

// ParseAgentArgs parses the comma separated agent option string. Options not
// given fall back to JVMENTRY_* environment variables, then to defaults.
func ParseAgentArgs(args string) (*Options, error) {
	o := &Options{}
	fs := o.flagSet()
	if err := ff.Parse(fs, splitAgentArgs(args), ff.WithEnvVarPrefix(EnvVarPrefix)); err != nil {
		return nil, fmt.Errorf("invalid agent options %q: %w", args, err)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the option ranges.
func (o *Options) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(o.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if o.Loop < 0 {
		errs = append(errs, fmt.Errorf("loop interval %v is negative", o.Loop))
	}
	if o.MethodIDWorkers < 1 || o.MethodIDWorkers > maxMethodIDWorkers {
		errs = append(errs, fmt.Errorf("methodid-workers %d out of range [1,%d]",
			o.MethodIDWorkers, maxMethodIDWorkers))
	}
	if o.SymbolCacheSize < minSymbolCacheSize {
		errs = append(errs, fmt.Errorf("symbol-cache-size %d below minimum %d",
			o.SymbolCacheSize, minSymbolCacheSize))
	}
	return errors.Join(errs...)
}

// ApplyLogLevel configures the global logger from the options.
func (o *Options) ApplyLogLevel() {
	level, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		log.Warnf("Ignoring log level %q: %v", o.LogLevel, err)
		return
	}
	log.SetLevel(level)
}

// Dump logs the options at debug level.
func (o *Options) Dump() {
	log.Debug("Agent options:")
	log.Debugf("loglevel: %s", o.LogLevel)
	log.Debugf("loop: %v", o.Loop)
	log.Debugf("nocapture: %v", o.NoCapture)
	log.Debugf("nohooks: %v", o.NoHooks)
	log.Debugf("methodid-workers: %d", o.MethodIDWorkers)
	log.Debugf("symbol-cache-size: %d", o.SymbolCacheSize)
}
