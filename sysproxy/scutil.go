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
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ScutilBackend reads the proxy settings of the primary network service on macOS, as printed by
// "scutil --proxy".
//
// The ExceptionsList and ExcludeSimpleHostnames settings are checked first. Then http and https
// URLs use the proxy of their scheme, and fall back to the SOCKS proxy. If neither is enabled but
// a PAC file or auto discovery is, the lookup fails with [ErrAutoConfig].
type ScutilBackend struct {
	run Runner
}

// NewScutilBackend returns a backend that runs scutil with run. A nil run means [ExecRunner].
func NewScutilBackend(run Runner) *ScutilBackend {
	return &ScutilBackend{run: runnerOrDefault(run)}
}

// LookupProxy implements [resolver.Backend].
func (b *ScutilBackend) LookupProxy(u *url.URL) (*url.URL, error) {
	out, err := b.run("scutil", "--proxy")
	if err != nil {
		return nil, fmt.Errorf("failed to read macOS proxy settings: %w", err)
	}
	dict, err := parseScutilDictionary(out)
	if err != nil {
		return nil, err
	}
	return scutilSettings(dict).proxyFor(u)
}

type scutilSettings map[string]any

func (s scutilSettings) text(key string) string {
	v, _ := s[key].(string)
	return v
}

func (s scutilSettings) enabled(key string) bool {
	return s.text(key) == "1"
}

func (s scutilSettings) list(key string) []string {
	items, _ := s[key].([]string)
	return items
}

// proxy returns the proxy configured with the keys that start with prefix, like HTTPEnable,
// HTTPProxy and HTTPPort.
func (s scutilSettings) proxy(prefix, scheme string) (*url.URL, error) {
	if !s.enabled(prefix + "Enable") {
		return nil, nil
	}
	host := s.text(prefix + "Proxy")
	if host == "" {
		return nil, nil
	}
	if port := s.text(prefix + "Port"); port != "" {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return nil, fmt.Errorf("invalid %vPort %q: %w", prefix, port, err)
		}
		host = net.JoinHostPort(host, port)
	}
	return &url.URL{Scheme: scheme, Host: host}, nil
}

func (s scutilSettings) proxyFor(u *url.URL) (*url.URL, error) {
	exceptions := s.list("ExceptionsList")
	if s.enabled("ExcludeSimpleHostnames") {
		exceptions = append(exceptions, "<local>")
	}
	if compileBypassList(exceptions, bypassExact).Matches(u) {
		return nil, nil
	}

	var proxyURL *url.URL
	var err error
	switch u.Scheme {
	case "http":
		proxyURL, err = s.proxy("HTTP", "http")
	case "https":
		proxyURL, err = s.proxy("HTTPS", "http")
	case "ftp":
		proxyURL, err = s.proxy("FTP", "http")
	}
	if err != nil || proxyURL != nil {
		return proxyURL, err
	}
	if proxyURL, err = s.proxy("SOCKS", "socks5"); err != nil || proxyURL != nil {
		return proxyURL, err
	}
	if s.enabled("ProxyAutoConfigEnable") {
		return nil, fmt.Errorf("%w: %v", ErrAutoConfig, s.text("ProxyAutoConfigURLString"))
	}
	if s.enabled("ProxyAutoDiscoveryEnable") {
		return nil, fmt.Errorf("%w: WPAD", ErrAutoConfig)
	}
	return nil, nil
}

// parseScutilDictionary parses the dump of a dictionary printed by scutil:
//
//	<dictionary> {
//	  ExceptionsList : <array> {
//	    0 : *.local
//	  }
//	  HTTPEnable : 1
//	}
//
// Nested dictionaries become map[string]any, arrays []string and other values string.
func parseScutilDictionary(out []byte) (map[string]any, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line != "<dictionary> {" {
			return nil, fmt.Errorf("unexpected scutil output %q", line)
		}
		dict, err := parseScutilBlock(scanner)
		if err != nil {
			return nil, err
		}
		return dict, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no dictionary in scutil output")
}

// parseScutilBlock parses the entries of a block up to its closing brace.
func parseScutilBlock(scanner *bufio.Scanner) (map[string]any, error) {
	entries := make(map[string]any)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "}" {
			return entries, nil
		}
		key, value, ok := strings.Cut(line, " :")
		if !ok {
			return nil, fmt.Errorf("unexpected scutil line %q", line)
		}
		value = strings.TrimSpace(value)
		switch value {
		case "<dictionary> {":
			nested, err := parseScutilBlock(scanner)
			if err != nil {
				return nil, err
			}
			entries[key] = nested
		case "<array> {":
			nested, err := parseScutilBlock(scanner)
			if err != nil {
				return nil, err
			}
			entries[key] = scutilArray(nested)
		default:
			entries[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("unterminated scutil block")
}

// scutilArray orders the string elements of an array block by index.
func scutilArray(block map[string]any) []string {
	type element struct {
		index int
		value string
	}
	elements := make([]element, 0, len(block))
	for key, value := range block {
		index, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if s, ok := value.(string); ok {
			elements = append(elements, element{index, s})
		}
	}
	sort.Slice(elements, func(i, j int) bool { return elements[i].index < elements[j].index })
	values := make([]string, len(elements))
	for i, e := range elements {
		values[i] = e.value
	}
	return values
}
