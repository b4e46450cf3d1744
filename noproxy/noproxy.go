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
Package noproxy implements the curl flavour of the no_proxy exclusion list.

The value of $no_proxy is either a single wildcard "*", which disables the proxy for every URL, or
a comma separated list of host names. A name starting with "." matches the host itself as well as
all of its subdomains; any other name must match the host exactly.

IP addresses are compared as strings in their canonical form. There are no wildcards and no subnet
specifications, so neither "192.168.1.*" nor "192.168.1.0/24" disables the proxy for a range of
addresses. IPv6 addresses must be given without enclosing brackets: a token like "[::1]" is kept
verbatim and never matches anything. These limitations are inherited from curl.

The host of a URL is read the way web browsers read it, so the IPv4 shorthand forms
"http://192.168.12/" and "http://0xc0a8000c/" both match the rule "192.168.0.12".
*/
package noproxy

import (
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// Kind tells how a [Rule] compares its pattern to a host.
type Kind int

const (
	// Exact rules match only the host equal to the pattern.
	Exact Kind = iota
	// Subdomain rules match the domain named by the pattern and all of its subdomains.
	Subdomain
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Subdomain:
		return "subdomain"
	default:
		return "unknown"
	}
}

// Rule is a single entry of a no_proxy list.
type Rule struct {
	kind    Kind
	pattern string
}

// MatchExact returns a rule that matches a URL whose host is exactly host.
func MatchExact(host string) Rule {
	return Rule{kind: Exact, pattern: host}
}

// MatchSubdomain returns a rule that matches the domain suffix names and every subdomain of it.
// The stored pattern always starts with ".", which is added if suffix lacks it.
func MatchSubdomain(suffix string) Rule {
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	return Rule{kind: Subdomain, pattern: suffix}
}

// Kind returns the kind of the rule.
func (r Rule) Kind() Kind {
	return r.kind
}

// Pattern returns the host or the dot-prefixed domain suffix of the rule.
func (r Rule) Pattern() string {
	return r.pattern
}

func (r Rule) String() string {
	return r.pattern
}

// Matches reports whether the rule applies to the host of u.
func (r Rule) Matches(u *url.URL) bool {
	h, ok := hostOf(u)
	if !ok {
		return false
	}
	switch r.kind {
	case Exact:
		return h.name == r.pattern
	case Subdomain:
		if h.isIP {
			return false
		}
		return h.name == r.pattern[1:] || strings.HasSuffix(h.name, r.pattern)
	default:
		return false
	}
}

type host struct {
	name string
	isIP bool
}

// hostOf renders the host of u the way it is compared against rules: IP addresses in their
// canonical text form without brackets, domain names mapped to lowercase ASCII.
func hostOf(u *url.URL) (host, bool) {
	if u == nil {
		return host{}, false
	}
	name := u.Hostname()
	if name == "" {
		return host{}, false
	}
	if addr, err := netip.ParseAddr(name); err == nil {
		return host{name: addr.String(), isIP: true}, true
	}
	if addr, ok := parseIPv4Shorthand(name); ok {
		return host{name: addr.String(), isIP: true}, true
	}
	if ascii, err := idna.Lookup.ToASCII(name); err == nil && ascii != "" {
		return host{name: ascii}, true
	}
	return host{name: strings.ToLower(name)}, true
}

// parseIPv4Shorthand parses the IPv4 forms that URLs accept besides dotted decimal: fewer than
// four parts, where the last one fills the remaining bytes, and parts in hexadecimal ("0x") or
// octal (leading "0") notation.
func parseIPv4Shorthand(name string) (netip.Addr, bool) {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) > 4 {
		return netip.Addr{}, false
	}
	var value uint64
	for i, part := range parts {
		n, ok := parseIPv4Number(part)
		if !ok {
			return netip.Addr{}, false
		}
		if i < len(parts)-1 {
			if n > 255 {
				return netip.Addr{}, false
			}
			value = value<<8 | n
			continue
		}
		// The last part covers all the bytes not given by the others.
		rest := uint(8 * (5 - len(parts)))
		if n >= 1<<rest {
			return netip.Addr{}, false
		}
		value = value<<rest | n
	}
	return netip.AddrFrom4([4]byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}), true
}

func parseIPv4Number(part string) (uint64, bool) {
	base := 10
	switch {
	case len(part) >= 2 && (part[:2] == "0x" || part[:2] == "0X"):
		part = part[2:]
		base = 16
		if part == "" {
			return 0, true
		}
	case len(part) >= 2 && part[0] == '0':
		part = part[1:]
		base = 8
	}
	if part == "" || strings.ContainsAny(part, "+-_") {
		return 0, false
	}
	n, err := strconv.ParseUint(part, base, 32)
	if err != nil {
		return 0, false
	}
	return n, true
}

// RuleSet is either the wildcard that matches everything or a list of rules.
// The zero value is an empty list, which matches nothing.
type RuleSet struct {
	all   bool
	rules []Rule
}

// All returns the rule set that matches every URL.
func All() RuleSet {
	return RuleSet{all: true}
}

// Rules returns a rule set matching any URL that at least one of rules matches.
func Rules(rules ...Rule) RuleSet {
	if len(rules) == 0 {
		return RuleSet{}
	}
	return RuleSet{rules: append([]Rule(nil), rules...)}
}

// Parse parses a no_proxy value.
//
// Whitespace around the value and around each entry is ignored, and so are empty entries. A value
// of exactly "*" yields [All]. An empty value yields an empty rule set, not [All].
func Parse(text string) RuleSet {
	text = strings.TrimSpace(text)
	if text == "*" {
		return All()
	}
	var rules []Rule
	for _, token := range strings.Split(text, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if strings.HasPrefix(token, ".") {
			rules = append(rules, MatchSubdomain(token))
		} else {
			rules = append(rules, MatchExact(token))
		}
	}
	return RuleSet{rules: rules}
}

// MatchesAll reports whether s is the wildcard rule set.
func (s RuleSet) MatchesAll() bool {
	return s.all
}

// Rules returns a copy of the rules in s, in the order they were given.
func (s RuleSet) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// IsEmpty reports whether s can never match.
func (s RuleSet) IsEmpty() bool {
	return !s.all && len(s.rules) == 0
}

// Matches reports whether a direct connection is mandated for u.
func (s RuleSet) Matches(u *url.URL) bool {
	if s.all {
		return true
	}
	for _, rule := range s.rules {
		if rule.Matches(u) {
			return true
		}
	}
	return false
}

// String renders s in no_proxy syntax. Parse(s.String()) yields s again, except for a list that
// holds nothing but an exact rule for the literal host "*", which reads back as [All].
func (s RuleSet) String() string {
	if s.all {
		return "*"
	}
	patterns := make([]string, len(s.rules))
	for i, rule := range s.rules {
		patterns[i] = rule.pattern
	}
	return strings.Join(patterns, ",")
}
