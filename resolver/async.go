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

package resolver

import (
	"errors"
	"io"
	"net/url"
)

// Result is the outcome of an asynchronous proxy lookup.
type Result struct {
	// Proxy is the proxy to use, or nil for a direct connection.
	Proxy *url.URL
	// Err is the error that prevented the lookup.
	Err error
}

// AsyncBackend is a [Backend] whose lookups complete asynchronously, like a request to another
// process.
type AsyncBackend interface {
	// LookupProxyAsync starts a lookup for u without blocking. The returned channel delivers
	// exactly one [Result].
	LookupProxyAsync(u *url.URL) <-chan Result
}

// Spawn turns a blocking backend into an [AsyncBackend]. Every lookup runs in a goroutine of its
// own and sends its result on a channel with room for it, so the goroutine never waits for the
// receiver.
func Spawn(b Backend) AsyncBackend {
	return spawnBackend{b}
}

type spawnBackend struct {
	Backend
}

func (b spawnBackend) LookupProxyAsync(u *url.URL) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		proxyURL, err := b.LookupProxy(u)
		ch <- Result{Proxy: proxyURL, Err: err}
	}()
	return ch
}

func (b spawnBackend) Close() error {
	return closeIfCloser(b.Backend)
}

var errNoResult = errors.New("lookup finished without a result")

type asyncResolver struct {
	name    string
	backend AsyncBackend
}

// FromAsync returns a [Resolver] that starts an asynchronous lookup on b and blocks the calling
// goroutine until it completes. Failed lookups result in a direct connection.
//
// There is no timeout: a lookup that never completes blocks the caller forever. Callers that need
// bounded latency must bound the call to ProxyForURL themselves.
func FromAsync(name string, b AsyncBackend) Resolver {
	return &asyncResolver{name: name, backend: b}
}

func (r *asyncResolver) ProxyForURL(u *url.URL) *url.URL {
	result, ok := <-r.backend.LookupProxyAsync(u)
	if !ok {
		result.Err = errNoResult
	}
	return failOpen(r.name, u, result.Proxy, result.Err)
}

// Close closes the backend, if it needs closing.
func (r *asyncResolver) Close() error {
	return closeIfCloser(r.backend)
}

func closeIfCloser(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
