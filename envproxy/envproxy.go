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
Package envproxy extracts HTTP proxies from the process environment, following curl.

$http_proxy and $https_proxy denote the proxy for http and https URLs respectively. If the lowercase
variable is not defined the uppercase variant is used instead; unlike curl this includes
$HTTP_PROXY. $no_proxy, or $NO_PROXY, lists hosts that never use a proxy, see [noproxy.Parse].

The environment is read once, when the [Config] is created. Later changes to the environment are
not picked up.
*/
package envproxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"unicode/utf8"

	"github.com/Jigsaw-Code/systemproxy/noproxy"
)

// Names of the environment variables, in order of precedence.
var (
	HTTPProxyVars  = []string{"http_proxy", "HTTP_PROXY"}
	HTTPSProxyVars = []string{"https_proxy", "HTTPS_PROXY"}
	NoProxyVars    = []string{"no_proxy", "NO_PROXY"}
)

// LookupFunc looks up an environment variable, like [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// Config is a snapshot of the proxy configuration found in an environment.
// A nil *Config is valid and resolves every URL to a direct connection.
type Config struct {
	// HTTP is the proxy for http URLs, or nil.
	HTTP *url.URL
	// HTTPS is the proxy for https URLs, or nil.
	HTTPS *url.URL
	// NoProxy holds the exclusion rules. It is nil if no variable defined them, which callers
	// should treat like an empty rule set.
	NoProxy *noproxy.RuleSet
}

// FromEnvironment reads the proxy configuration from the environment of the current process.
func FromEnvironment() *Config {
	return FromLookupFunc(os.LookupEnv)
}

// FromLookupFunc reads the proxy configuration using lookup to access the environment.
//
// Values which are not valid UTF-8, and proxy values which are not absolute URLs, are logged and
// treated as if the variable was not set.
func FromLookupFunc(lookup LookupFunc) *Config {
	c := &Config{
		HTTP:  lookupURL(lookup, HTTPProxyVars),
		HTTPS: lookupURL(lookup, HTTPSProxyVars),
	}
	if value, ok := lookupText(lookup, NoProxyVars); ok {
		rules := noproxy.Parse(value)
		c.NoProxy = &rules
	}
	return c
}

// FromMap reads the proxy configuration from a fixed set of variables.
func FromMap(env map[string]string) *Config {
	return FromLookupFunc(func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
}

// lookupText returns the value of the first variable of names that is set to valid text.
func lookupText(lookup LookupFunc, names []string) (string, bool) {
	for _, name := range names {
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if !utf8.ValidString(value) {
			slog.Warn("Environment variable does not contain valid UTF-8, skipping", "variable", name)
			continue
		}
		return value, true
	}
	return "", false
}

func lookupURL(lookup LookupFunc, names []string) *url.URL {
	for _, name := range names {
		value, ok := lookupText(lookup, []string{name})
		if !ok {
			continue
		}
		proxyURL, err := ParseProxyURL(value)
		if err != nil {
			slog.Warn("Failed to parse environment variable as URL, skipping", "variable", name, "error", err)
			continue
		}
		return proxyURL
	}
	return nil
}

var errNoHost = errors.New("URL has no host")

// ParseProxyURL parses text as the absolute URL of a proxy.
func ParseProxyURL(text string) (*url.URL, error) {
	u, err := url.Parse(text)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("URL %q is not absolute", text)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL %q: %w", text, errNoHost)
	}
	return u, nil
}

// IsUnset reports whether neither an http nor an https proxy is configured.
func (c *Config) IsUnset() bool {
	return c == nil || (c.HTTP == nil && c.HTTPS == nil)
}

// Rules returns the no-proxy rules, or an empty rule set if none were defined.
func (c *Config) Rules() noproxy.RuleSet {
	if c == nil || c.NoProxy == nil {
		return noproxy.Rules()
	}
	return *c.NoProxy
}

// ProxyForScheme returns the proxy configured for the URL scheme, ignoring the no-proxy rules.
func (c *Config) ProxyForScheme(scheme string) *url.URL {
	if c == nil {
		return nil
	}
	switch scheme {
	case "http":
		return c.HTTP
	case "https":
		return c.HTTPS
	default:
		return nil
	}
}

// ProxyForURL returns the proxy to use for u, or nil for a direct connection.
func (c *Config) ProxyForURL(u *url.URL) *url.URL {
	if c == nil || u == nil {
		return nil
	}
	proxyURL := c.ProxyForScheme(u.Scheme)
	if proxyURL == nil {
		return nil
	}
	if c.NoProxy != nil && c.NoProxy.Matches(u) {
		return nil
	}
	return proxyURL
}
