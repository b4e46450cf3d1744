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

/*
Package resolver defines the [Resolver] interface that every proxy lookup method implements, and
the adapters that turn operating system proxy services into resolvers.

# Failing open

A [Resolver] never returns an error. Proxy lookups happen on the path of every request, and a
broken lookup must not take network access down with it: [FromBackend] and [FromAsync] log the
errors of the [Backend] or [AsyncBackend] they wrap and answer with a direct connection instead.

# Asynchronous backends

Some proxy services can only be queried asynchronously, for instance over D-Bus. [FromAsync]
bridges such an [AsyncBackend] to the synchronous [Resolver] interface by blocking the calling
goroutine until the single [Result] of the lookup arrives. [Spawn] does the opposite and runs a
blocking [Backend] in a goroutine per lookup.

# Usage with net/http

[ProxyFunc] plugs a resolver into [net/http.Transport]:

	transport := &http.Transport{Proxy: resolver.ProxyFunc(systemproxy.New())}
*/
package resolver
