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
Package systemproxy resolves the HTTP proxy a client should use for a URL, the way the system
around it is configured.

A [Resolver] consults, in order:

 1. the no_proxy list of the environment, which forces a direct connection for the hosts it
    names, see [noproxy];
 2. the http_proxy and https_proxy environment variables, see [envproxy];
 3. the proxy service of the operating system, see [NewNativeResolver].

The environment is read once, when the resolver is created. The operating system is asked again
for every URL, so changes to the desktop proxy settings apply right away.

Lookups never fail. Whatever goes wrong while asking the operating system is logged with
[log/slog] and results in a direct connection.

# Usage

To use the system proxy with [net/http]:

	r := systemproxy.New()
	defer r.Close()
	client := &http.Client{Transport: &http.Transport{Proxy: resolver.ProxyFunc(r)}}

# Platform support

  - Linux and the BSDs: the freedesktop proxy resolver portal over D-Bus, which follows the
    desktop settings and supports PAC. Without a session bus the GNOME proxy settings are read
    with gsettings.
  - macOS: the settings of the primary network service, as reported by scutil.
  - Windows: WinHTTP, which supports auto-detection and PAC.

Other platforms only use the environment.
*/
package systemproxy
