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

//go:build windows

package systemproxy

import (
	"github.com/Jigsaw-Code/systemproxy/resolver"
	"github.com/Jigsaw-Code/systemproxy/sysproxy"
)

func nativeBackends() []nativeBackend {
	return []nativeBackend{
		{name: "winhttp", open: func() (resolver.Resolver, error) {
			b, err := sysproxy.OpenWinHTTP()
			if err != nil {
				return nil, err
			}
			return resolver.FromBackend("winhttp", b), nil
		}},
		// The Internet Options of the current user, for when WinHTTP is unusable.
		{name: "registry", open: func() (resolver.Resolver, error) {
			return resolver.FromBackend("registry", sysproxy.NewRegistryBackend()), nil
		}},
	}
}
