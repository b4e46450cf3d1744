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
	"io"
	"net/url"

	"github.com/Jigsaw-Code/systemproxy/envproxy"
	"github.com/Jigsaw-Code/systemproxy/noproxy"
	"github.com/Jigsaw-Code/systemproxy/resolver"
)

// Resolver combines the proxy configuration of the environment with the proxy service of the
// operating system. It is safe for concurrent use.
type Resolver struct {
	env     *envproxy.Config
	noProxy noproxy.RuleSet
	native  resolver.Resolver
}

var _ resolver.Resolver = (*Resolver)(nil)

// New returns a resolver for the environment of the current process and the proxy service of the
// operating system.
func New() *Resolver {
	return NewFrom(envproxy.FromEnvironment(), NewNativeResolver())
}

// NewWithoutEnvironment returns a resolver that only asks the proxy service of the operating
// system, ignoring the proxy variables of the environment, including no_proxy.
func NewWithoutEnvironment() *Resolver {
	return NewFrom(nil, NewNativeResolver())
}

// NewFrom returns a resolver that consults env, which may be nil, before native. A nil native
// resolver means a direct connection for everything env does not cover.
func NewFrom(env *envproxy.Config, native resolver.Resolver) *Resolver {
	if native == nil {
		native = resolver.Direct
	}
	return &Resolver{env: env, noProxy: env.Rules(), native: native}
}

// ProxyForURL implements [resolver.Resolver].ProxyForURL.
func (r *Resolver) ProxyForURL(u *url.URL) *url.URL {
	if r.noProxy.Matches(u) {
		return nil
	}
	if proxyURL := r.env.ProxyForURL(u); proxyURL != nil {
		return proxyURL
	}
	return r.native.ProxyForURL(u)
}

// NoProxy returns the hosts that always use a direct connection.
func (r *Resolver) NoProxy() noproxy.RuleSet {
	return r.noProxy
}

// Environment returns the snapshot of the environment, or nil if the resolver ignores the
// environment.
func (r *Resolver) Environment() *envproxy.Config {
	return r.env
}

// Native returns the resolver that asks the operating system.
func (r *Resolver) Native() resolver.Resolver {
	return r.native
}

// Close releases the resources held by the native resolver, like a D-Bus connection.
func (r *Resolver) Close() error {
	if c, ok := r.native.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
