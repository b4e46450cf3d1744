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

package sysproxy

import (
	"fmt"
	"net/url"
	"strings"
)

// splitWindowsList splits a proxy or bypass list of Windows, whose entries are separated by
// semicolons or whitespace.
func splitWindowsList(list string) []string {
	return strings.FieldsFunc(list, func(r rune) bool {
		return r == ';' || r == ' ' || r == '\t' || r == '\r' || r == '\n'
	})
}

// proxyFromWindowsList picks the proxy for scheme from a Windows proxy list, like
// "proxy:8080" or "http=proxy:80;https=proxy:443". An entry for the scheme wins over the first
// entry without scheme. It returns nil if the list has no entry that applies.
func proxyFromWindowsList(list string, scheme string) (*url.URL, error) {
	var generic string
	for _, entry := range splitWindowsList(list) {
		entryScheme, address, ok := strings.Cut(entry, "=")
		if !ok {
			if generic == "" {
				generic = entry
			}
			continue
		}
		if strings.EqualFold(strings.TrimSpace(entryScheme), scheme) {
			return parseWindowsProxy(address)
		}
	}
	if generic == "" {
		return nil, nil
	}
	return parseWindowsProxy(generic)
}

// parseWindowsProxy parses a proxy address of a Windows proxy list. Addresses usually lack a
// scheme, which means an HTTP proxy.
func parseWindowsProxy(address string) (*url.URL, error) {
	address = strings.TrimSpace(address)
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	proxyURL, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address: %w", err)
	}
	if proxyURL.Host == "" {
		return nil, fmt.Errorf("invalid proxy address %q: missing host", address)
	}
	return proxyURL, nil
}

// proxyWithBypass returns the proxy of proxyList for u, or nil if u matches bypassList. Both are
// lists in the format of the Internet Options, as WinHTTP also reports them.
func proxyWithBypass(proxyList, bypassList string, u *url.URL) (*url.URL, error) {
	if compileBypassList(splitWindowsList(bypassList), bypassExact).Matches(u) {
		return nil, nil
	}
	return proxyFromWindowsList(proxyList, u.Scheme)
}

// internetSettings are the proxy settings of the Internet Options of Windows.
type internetSettings struct {
	// proxyEnable turns the static proxy in proxyServer on.
	proxyEnable bool
	// proxyServer is a proxy list, see proxyFromWindowsList.
	proxyServer string
	// proxyOverride lists the hosts that bypass the static proxy.
	proxyOverride string
	// autoConfigURL is the location of a PAC file.
	autoConfigURL string
}

func (s *internetSettings) proxyFor(u *url.URL) (*url.URL, error) {
	if s.proxyEnable && s.proxyServer != "" {
		return proxyWithBypass(s.proxyServer, s.proxyOverride, u)
	}
	if s.autoConfigURL != "" {
		return nil, fmt.Errorf("%w: %v", ErrAutoConfig, s.autoConfigURL)
	}
	return nil, nil
}
