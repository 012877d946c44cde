// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"flag"

	"github.com/peterbourgon/ff/v3"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/jvmentry/config"
)

// Help strings for command line arguments
var (
	libjvmHelp      = "Path of a libjvm.so to inspect."
	pidHelp         = "Inspect the libjvm.so mapped into the process with this PID."
	verboseModeHelp = "Enable verbose logging and debugging capabilities."
	versionHelp     = "Show version."
)

type arguments struct {
	libjvm      string
	pid         int
	verboseMode bool
	version     bool

	fs *flag.FlagSet
}

func parseArgs(argv []string) (*arguments, error) {
	var args arguments

	fs := flag.NewFlagSet("jvmentry", flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.StringVar(&args.libjvm, "libjvm", "", libjvmHelp)
	fs.IntVar(&args.pid, "pid", 0, pidHelp)

	fs.BoolVar(&args.verboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.verboseMode, "verbose", false, verboseModeHelp)
	fs.BoolVar(&args.version, "version", false, versionHelp)

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	args.fs = fs

	return &args, ff.Parse(fs, argv,
		ff.WithEnvVarPrefix(config.EnvVarPrefix),
	)
}

func (args *arguments) sanityCheck() error {
	if args.version {
		return nil
	}
	switch {
	case args.libjvm != "" && args.pid != 0:
		return errors.New("-libjvm and -pid are mutually exclusive")
	case args.libjvm == "" && args.pid == 0:
		return errors.New("one of -libjvm or -pid is required")
	case args.pid < 0:
		return errors.New("-pid must be positive")
	}
	return nil
}

func (args *arguments) dump() {
	log.Debug("Config:")
	args.fs.VisitAll(func(f *flag.Flag) {
		log.Debugf("%s: %v", f.Name, f.Value)
	})
}
