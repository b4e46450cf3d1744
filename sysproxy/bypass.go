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
	"log/slog"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// bypassStyle selects how plain host names in a bypass list are interpreted.
type bypassStyle int

const (
	// bypassExact matches host names literally. Windows and macOS use it.
	bypassExact bypassStyle = iota
	// bypassDomain makes "example.com", ".example.com" and "*.example.com" all match example.com
	// and its subdomains, like GLib does.
	bypassDomain
)

type bypassHost struct {
	name string
	addr netip.Addr
}

type hostMatcher interface {
	matchHost(h bypassHost) bool
}

type literalMatcher string

func (m literalMatcher) matchHost(h bypassHost) bool {
	return string(m) == h.name
}

type domainMatcher string

func (m domainMatcher) matchHost(h bypassHost) bool {
	if h.addr.IsValid() {
		return false
	}
	return h.name == string(m) || strings.HasSuffix(h.name, "."+string(m))
}

type wildcardMatcher struct {
	re *regexp.Regexp
}

func (m wildcardMatcher) matchHost(h bypassHost) bool {
	return m.re.MatchString(h.name)
}

type prefixMatcher netip.Prefix

func (m prefixMatcher) matchHost(h bypassHost) bool {
	return h.addr.IsValid() && netip.Prefix(m).Contains(h.addr.Unmap())
}

// localMatcher is the Windows <local> macro, matching host names without a dot.
type localMatcher struct{}

func (localMatcher) matchHost(h bypassHost) bool {
	return !h.addr.IsValid() && !strings.Contains(h.name, ".")
}

// wildcardUnescaper converts shell wildcards to regex.
var wildcardUnescaper = strings.NewReplacer(
	`\*`, ".*",
	`\?`, ".",
)

func compileWildcard(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^" + wildcardUnescaper.Replace(regexp.QuoteMeta(pattern)) + "$")
}

// bypassList holds the hosts that do not use the proxy.
type bypassList []hostMatcher

func compileBypassList(patterns []string, style bypassStyle) bypassList {
	var list bypassList
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if pattern == "<local>" {
			list = append(list, localMatcher{})
			continue
		}
		if prefix, ok := parsePrefix(pattern); ok {
			list = append(list, prefixMatcher(prefix))
			continue
		}
		if addr, err := netip.ParseAddr(strings.Trim(pattern, "[]")); err == nil {
			list = append(list, literalMatcher(addr.String()))
			continue
		}
		if style == bypassDomain {
			domain := strings.TrimPrefix(strings.TrimPrefix(pattern, "*"), ".")
			if domain != "" && !strings.ContainsAny(domain, "*?") {
				list = append(list, domainMatcher(domain))
				continue
			}
		}
		if strings.ContainsAny(pattern, "*?") {
			re, err := compileWildcard(pattern)
			if err != nil {
				slog.Warn("Ignoring invalid proxy bypass pattern", "pattern", pattern, "error", err)
				continue
			}
			list = append(list, wildcardMatcher{re})
			continue
		}
		list = append(list, literalMatcher(pattern))
	}
	return list
}

// parsePrefix parses CIDR notation, including the abbreviated IPv4 form "169.254/16" that macOS
// puts in its default exceptions.
func parsePrefix(pattern string) (netip.Prefix, bool) {
	addrText, bits, ok := strings.Cut(pattern, "/")
	if !ok {
		return netip.Prefix{}, false
	}
	if !strings.Contains(addrText, ":") {
		for strings.Count(addrText, ".") < 3 {
			addrText += ".0"
		}
	}
	prefix, err := netip.ParsePrefix(addrText + "/" + bits)
	if err != nil {
		return netip.Prefix{}, false
	}
	return prefix.Masked(), true
}

// Matches reports whether u must not use the proxy.
func (l bypassList) Matches(u *url.URL) bool {
	if u == nil || len(l) == 0 {
		return false
	}
	name := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if name == "" {
		return false
	}
	h := bypassHost{name: name}
	if addr, err := netip.ParseAddr(name); err == nil {
		h = bypassHost{name: addr.String(), addr: addr}
	}
	for _, m := range l {
		if m.matchHost(h) {
			return true
		}
	}
	return false
}
