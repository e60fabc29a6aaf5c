/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config loads tracing session settings from a yaml file, for hosts
// that drive the engine from deployment configuration rather than code.
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/hyperledger-labs/mtrace"
)

type configuration struct {
	TracePath string `yaml:"tracePath"` // output file, created on Start

	Mode   string `yaml:"mode"`   // "method" or "sampling"
	Output string `yaml:"output"` // "file", "live" or "streaming"

	BufferSizeBytes    int `yaml:"bufferSizeBytes"`    // 0 selects the default
	SamplingIntervalMs int `yaml:"samplingIntervalMs"` // required in sampling mode

	WallClock      bool `yaml:"wallClock"`
	ThreadCpuClock bool `yaml:"threadCpuClock"`
	CountAllocs    bool `yaml:"countAllocs"`
}

// LoadFile reads a session Config from the yaml file at configFileName.
func LoadFile(configFileName string) (mtrace.Config, error) {
	f, err := ioutil.ReadFile(configFileName)
	if err != nil {
		return mtrace.Config{}, errors.WithMessagef(err, "could not read config file %s", configFileName)
	}
	return parse(f, configFileName)
}

func parse(data []byte, name string) (mtrace.Config, error) {
	var raw configuration
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return mtrace.Config{}, errors.WithMessagef(err, "could not unmarshal config file %s", name)
	}

	cfg := mtrace.Config{
		Path:             raw.TracePath,
		BufferSize:       raw.BufferSizeBytes,
		SamplingInterval: time.Duration(raw.SamplingIntervalMs) * time.Millisecond,
	}

	switch raw.Mode {
	case "", "method":
		cfg.TraceMode = mtrace.ModeMethod
	case "sampling":
		cfg.TraceMode = mtrace.ModeSampling
	default:
		return mtrace.Config{}, errors.Errorf("unknown trace mode %q", raw.Mode)
	}

	switch raw.Output {
	case "", "file":
		cfg.OutputMode = mtrace.OutputFile
	case "live":
		cfg.OutputMode = mtrace.OutputLive
	case "streaming":
		cfg.OutputMode = mtrace.OutputStreaming
	default:
		return mtrace.Config{}, errors.Errorf("unknown output mode %q", raw.Output)
	}

	if raw.WallClock {
		cfg.Flags |= mtrace.FlagWallClock
	}
	if raw.ThreadCpuClock {
		cfg.Flags |= mtrace.FlagThreadCPUClock
	}
	if raw.CountAllocs {
		cfg.Flags |= mtrace.FlagCountAllocs
	}
	return cfg, nil
}
