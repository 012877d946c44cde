// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vmentry // import "go.opentelemetry.io/jvmentry/vmentry"

import (
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/jvmentry/config"
	"go.opentelemetry.io/jvmentry/jvmti"
	"go.opentelemetry.io/jvmentry/vc"
)

// Load is the agent entry point. agentArgs is the option string given after
// '=' on -agentpath, or the attach arguments. attach is set for a live VM.
func Load(vm jvmti.JavaVM, agentArgs string, attach bool, opts ...Option) (*VM, error) {
	agentOpts, err := config.ParseAgentArgs(agentArgs)
	if err != nil {
		return nil, err
	}
	agentOpts.ApplyLogLevel()
	log.Infof("Loading jvmentry %s", vc.String())
	agentOpts.Dump()

	return Init(vm, attach, append([]Option{WithOptions(agentOpts)}, opts...)...)
}
