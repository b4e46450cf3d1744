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
Package sysproxy reads the system-wide proxy settings of desktop platforms.

Every backend implements [resolver.Backend], and reads the settings again for every lookup, so
changes made in the system settings apply without a restart.

# Platform Support

  - Linux (GNOME): [GNOMEBackend] reads org.gnome.system.proxy with gsettings.
  - macOS: [ScutilBackend] reads the proxies of the primary network service with scutil.
  - Windows: [WinHTTPBackend] asks WinHTTP, which also evaluates PAC files and supports WPAD.
    [RegistryBackend] reads the Internet Options of the current user.

Backends that find an automatic configuration they cannot evaluate report [ErrAutoConfig].

[resolver.Backend]: https://pkg.go.dev/github.com/Jigsaw-Code/systemproxy/resolver#Backend
*/
package sysproxy
