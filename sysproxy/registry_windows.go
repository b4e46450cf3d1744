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

package sysproxy

import (
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/sys/windows/registry"
)

const internetSettingsKey = `Software\Microsoft\Windows\CurrentVersion\Internet Settings`

// RegistryBackend reads the static proxy of the Internet Options of the current user from the
// registry. It cannot evaluate PAC files, and fails with [ErrAutoConfig] when the options only
// configure one.
type RegistryBackend struct{}

// NewRegistryBackend returns a backend that reads the Internet Options from the registry.
func NewRegistryBackend() *RegistryBackend {
	return &RegistryBackend{}
}

// LookupProxy implements [resolver.Backend].
func (b *RegistryBackend) LookupProxy(u *url.URL) (*url.URL, error) {
	settings, err := readInternetSettings()
	if err != nil {
		return nil, err
	}
	return settings.proxyFor(u)
}

func readInternetSettings() (*internetSettings, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsKey, registry.QUERY_VALUE)
	if err != nil {
		return nil, fmt.Errorf("failed to open Internet Settings: %w", err)
	}
	defer key.Close()

	settings := &internetSettings{}
	enable, _, err := key.GetIntegerValue("ProxyEnable")
	if err != nil && !errors.Is(err, registry.ErrNotExist) {
		return nil, fmt.Errorf("failed to read ProxyEnable: %w", err)
	}
	settings.proxyEnable = enable != 0
	for name, dst := range map[string]*string{
		"ProxyServer":   &settings.proxyServer,
		"ProxyOverride": &settings.proxyOverride,
		"AutoConfigURL": &settings.autoConfigURL,
	} {
		value, _, err := key.GetStringValue(name)
		if err != nil && !errors.Is(err, registry.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %v: %w", name, err)
		}
		*dst = value
	}
	return settings, nil
}
