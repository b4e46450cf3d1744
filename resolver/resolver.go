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
	"log/slog"
	"net/http"
	"net/url"
)

// Resolver decides which proxy to use for a URL.
type Resolver interface {
	// ProxyForURL returns the URL of the proxy to use for u, or nil for a direct connection.
	// It never fails: a resolver that cannot answer logs the problem and returns nil.
	ProxyForURL(u *url.URL) *url.URL
}

// FuncResolver is a [Resolver] that uses the given function to resolve proxies.
type FuncResolver func(u *url.URL) *url.URL

var _ Resolver = (FuncResolver)(nil)

// ProxyForURL implements [Resolver].ProxyForURL.
func (f FuncResolver) ProxyForURL(u *url.URL) *url.URL {
	return f(u)
}

type directResolver struct{}

// Direct is the [Resolver] that never uses a proxy.
var Direct Resolver = directResolver{}

func (directResolver) ProxyForURL(*url.URL) *url.URL {
	return nil
}

// Backend is the lookup primitive of an operating system proxy service.
type Backend interface {
	// LookupProxy returns the proxy for u, nil for a direct connection, or the error that
	// prevented the lookup.
	LookupProxy(u *url.URL) (*url.URL, error)
}

// FuncBackend is a [Backend] that uses the given function to look up proxies.
type FuncBackend func(u *url.URL) (*url.URL, error)

var _ Backend = (FuncBackend)(nil)

// LookupProxy implements [Backend].LookupProxy.
func (f FuncBackend) LookupProxy(u *url.URL) (*url.URL, error) {
	return f(u)
}

type backendResolver struct {
	name    string
	backend Backend
}

// FromBackend returns a [Resolver] that asks b, and uses a direct connection whenever b fails.
// The name identifies the backend in log messages.
func FromBackend(name string, b Backend) Resolver {
	return &backendResolver{name: name, backend: b}
}

func (r *backendResolver) ProxyForURL(u *url.URL) *url.URL {
	proxyURL, err := r.backend.LookupProxy(u)
	return failOpen(r.name, u, proxyURL, err)
}

// Close closes the backend, if it needs closing.
func (r *backendResolver) Close() error {
	return closeIfCloser(r.backend)
}

func failOpen(name string, u *url.URL, proxyURL *url.URL, err error) *url.URL {
	if err != nil {
		slog.Error("Failed to obtain proxy, using direct connection", "backend", name, "url", u.Redacted(), "error", err)
		return nil
	}
	if proxyURL == nil {
		slog.Debug("Backend chose direct connection", "backend", name, "url", u.Redacted())
		return nil
	}
	slog.Debug("Obtained proxy", "backend", name, "url", u.Redacted(), "proxy", proxyURL.Redacted())
	return proxyURL
}

// ProxyFunc adapts r to the Proxy field of [http.Transport].
func ProxyFunc(r Resolver) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		return r.ProxyForURL(req.URL), nil
	}
}
