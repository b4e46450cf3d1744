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

//go:build linux || freebsd || openbsd || netbsd || dragonfly

package systemproxy

import (
	"errors"

	"github.com/Jigsaw-Code/systemproxy/portal"
	"github.com/Jigsaw-Code/systemproxy/resolver"
	"github.com/Jigsaw-Code/systemproxy/sysproxy"
)

func nativeBackends() []nativeBackend {
	return []nativeBackend{
		{name: "portal", open: openPortal},
		{name: "gnome", open: openGNOME},
	}
}

func openPortal() (resolver.Resolver, error) {
	client, err := portal.Connect()
	if err != nil {
		return nil, err
	}
	if !client.Available() {
		client.Close()
		return nil, errors.New("no proxy resolver portal on the session bus")
	}
	return resolver.FromAsync("portal", client), nil
}

func openGNOME() (resolver.Resolver, error) {
	if err := sysproxy.CheckGSettings(); err != nil {
		return nil, err
	}
	return resolver.FromBackend("gnome", sysproxy.NewGNOMEBackend(nil)), nil
}
