// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// jvmentry inspects a libjvm.so and reports which of the entry points used by
// the JVM agent it provides.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/jvmentry/vc"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = 2
)

func main() {
	os.Exit(int(mainWithExitCode(os.Args[1:])))
}

func mainWithExitCode(argv []string) exitCode {
	args, err := parseArgs(argv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		return parseError("Failure to parse arguments: %v", err)
	}

	if args.version {
		fmt.Println(vc.String())
		return exitSuccess
	}

	if args.verboseMode {
		log.SetLevel(log.DebugLevel)
		// Dump the arguments in debug mode.
		args.dump()
	}

	if err = args.sanityCheck(); err != nil {
		return parseError("%v", err)
	}

	r, err := inspect(args)
	if err != nil {
		return failure("Failed to inspect libjvm: %v", err)
	}
	r.print(os.Stdout)
	return exitSuccess
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
