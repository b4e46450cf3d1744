// Copyright 2026 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sysproxy

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	// ErrAutoConfig is returned when the system uses a proxy auto-configuration the backend cannot
	// evaluate.
	ErrAutoConfig = errors.New("proxy auto-configuration is not supported")
	// ErrNotSupported is returned when the settings use a feature the backend does not support.
	ErrNotSupported = errors.New("proxy setting is not supported")
)

// Runner runs a command and returns its standard output.
type Runner func(name string, arg ...string) ([]byte, error)

// ExecRunner runs commands with [os/exec].
func ExecRunner(name string, arg ...string) ([]byte, error) {
	cmd := exec.Command(name, arg...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("failed to execute command %v: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("failed to execute command %v: %w", name, err)
	}
	return out, nil
}

func runnerOrDefault(run Runner) Runner {
	if run == nil {
		return ExecRunner
	}
	return run
}
