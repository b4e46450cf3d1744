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

package systemproxy

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Jigsaw-Code/systemproxy/resolver"
)

// DirectBackend is the name of the native backend that never uses a proxy. It is available on
// every platform.
const DirectBackend = "none"

// ErrUnknownBackend is returned by [NewNamedNativeResolver] for backends that do not exist on
// this platform.
var ErrUnknownBackend = errors.New("unknown proxy backend")

// nativeBackend is a proxy service of the operating system. open fails if the service is not
// available on the machine.
type nativeBackend struct {
	name string
	open func() (resolver.Resolver, error)
}

// NewNativeResolver returns a resolver for the proxy service of the operating system. It uses the
// first service of the platform that is available, and a direct connection if there is none.
func NewNativeResolver() resolver.Resolver {
	for _, backend := range nativeBackends() {
		r, err := backend.open()
		if err != nil {
			slog.Debug("Proxy backend not available", "backend", backend.name, "error", err)
			continue
		}
		slog.Debug("Using proxy backend", "backend", backend.name)
		return r
	}
	return resolver.Direct
}

// NewNamedNativeResolver returns a resolver for the named proxy service of the operating system.
// See [NativeBackendNames] for the names available on this platform.
func NewNamedNativeResolver(name string) (resolver.Resolver, error) {
	if name == DirectBackend {
		return resolver.Direct, nil
	}
	for _, backend := range nativeBackends() {
		if backend.name != name {
			continue
		}
		r, err := backend.open()
		if err != nil {
			return nil, fmt.Errorf("failed to open proxy backend %v: %w", name, err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownBackend, name)
}

// NativeBackendNames returns the names of the proxy services supported on this platform, in the
// order [NewNativeResolver] tries them, followed by [DirectBackend].
func NativeBackendNames() []string {
	var names []string
	for _, backend := range nativeBackends() {
		names = append(names, backend.name)
	}
	return append(names, DirectBackend)
}
