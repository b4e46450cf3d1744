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
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeGSettings returns a runner that prints the given settings like
// "gsettings list-recursively org.gnome.system.proxy", filling in the defaults of GNOME.
func fakeGSettings(t *testing.T, overrides map[string]string) Runner {
	settings := map[string]string{
		"org.gnome.system.proxy mode":                         "'none'",
		"org.gnome.system.proxy autoconfig-url":               "''",
		"org.gnome.system.proxy ignore-hosts":                 "['localhost', '127.0.0.0/8', '::1']",
		"org.gnome.system.proxy use-same-proxy":               "true",
		"org.gnome.system.proxy.http host":                    "''",
		"org.gnome.system.proxy.http port":                    "8080",
		"org.gnome.system.proxy.http use-authentication":      "false",
		"org.gnome.system.proxy.http authentication-user":     "''",
		"org.gnome.system.proxy.http authentication-password": "''",
		"org.gnome.system.proxy.http enabled":                 "false",
		"org.gnome.system.proxy.https host":                   "''",
		"org.gnome.system.proxy.https port":                   "0",
		"org.gnome.system.proxy.ftp host":                     "''",
		"org.gnome.system.proxy.ftp port":                     "0",
		"org.gnome.system.proxy.socks host":                   "''",
		"org.gnome.system.proxy.socks port":                   "0",
	}
	for key, value := range overrides {
		settings[key] = value
	}
	return func(name string, arg ...string) ([]byte, error) {
		require.Equal(t, "gsettings", name)
		require.Equal(t, []string{"list-recursively", "org.gnome.system.proxy"}, arg)
		var out strings.Builder
		for key, value := range settings {
			fmt.Fprintf(&out, "%v %v\n", key, value)
		}
		return []byte(out.String()), nil
	}
}

func TestGNOMEModeNone(t *testing.T) {
	b := NewGNOMEBackend(fakeGSettings(t, map[string]string{
		"org.gnome.system.proxy.http host": "'proxy.example.com'",
	}))
	proxyURL, err := b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.NoError(t, err)
	require.Nil(t, proxyURL)
}

func TestGNOMEModeAuto(t *testing.T) {
	b := NewGNOMEBackend(fakeGSettings(t, map[string]string{
		"org.gnome.system.proxy mode":           "'auto'",
		"org.gnome.system.proxy autoconfig-url": "'http://wpad/wpad.dat'",
	}))
	_, err := b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.ErrorIs(t, err, ErrAutoConfig)
	require.ErrorContains(t, err, "http://wpad/wpad.dat")
}

func TestGNOMEUnknownMode(t *testing.T) {
	b := NewGNOMEBackend(fakeGSettings(t, map[string]string{
		"org.gnome.system.proxy mode": "'telepathy'",
	}))
	_, err := b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestGNOMEManual(t *testing.T) {
	b := NewGNOMEBackend(fakeGSettings(t, map[string]string{
		"org.gnome.system.proxy mode":       "'manual'",
		"org.gnome.system.proxy.http host":  "'http.example.com'",
		"org.gnome.system.proxy.http port":  "3128",
		"org.gnome.system.proxy.https host": "'https.example.com'",
		"org.gnome.system.proxy.https port": "uint32 3129",
	}))

	for target, expected := range map[string]string{
		"http://example.com":     "http://http.example.com:3128",
		"https://example.com":    "http://https.example.com:3129",
		"http://localhost:8000":  "",
		"https://127.0.0.1":      "",
		"https://[::1]:443":      "",
		"ws://example.com":       "",
		"https://sub.localhost":  "",
		"https://localhost.club": "http://https.example.com:3129",
	} {
		proxyURL, err := b.LookupProxy(mustParseURL(t, target))
		require.NoError(t, err, target)
		if expected == "" {
			require.Nil(t, proxyURL, target)
		} else {
			require.Equal(t, expected, proxyURL.String(), target)
		}
	}
}

func TestGNOMEManualSOCKSFallback(t *testing.T) {
	b := NewGNOMEBackend(fakeGSettings(t, map[string]string{
		"org.gnome.system.proxy mode":       "'manual'",
		"org.gnome.system.proxy.http host":  "'http.example.com'",
		"org.gnome.system.proxy.socks host": "'socks.example.com'",
		"org.gnome.system.proxy.socks port": "1080",
	}))

	proxyURL, err := b.LookupProxy(mustParseURL(t, "https://example.com"))
	require.NoError(t, err)
	require.Equal(t, "socks5://socks.example.com:1080", proxyURL.String())

	proxyURL, err = b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.NoError(t, err)
	require.Equal(t, "http://http.example.com:8080", proxyURL.String())
}

func TestGNOMEManualIgnoreHosts(t *testing.T) {
	b := NewGNOMEBackend(fakeGSettings(t, map[string]string{
		"org.gnome.system.proxy mode":         "'manual'",
		"org.gnome.system.proxy ignore-hosts": "['*.internal', 'example.org', '192.168.0.0/16']",
		"org.gnome.system.proxy.http host":    "'proxy'",
	}))
	for _, target := range []string{"http://a.internal", "http://internal", "http://www.example.org", "http://192.168.7.7"} {
		proxyURL, err := b.LookupProxy(mustParseURL(t, target))
		require.NoError(t, err)
		require.Nil(t, proxyURL, target)
	}
	proxyURL, err := b.LookupProxy(mustParseURL(t, "http://localhost"))
	require.NoError(t, err)
	require.Equal(t, "http://proxy:8080", proxyURL.String())
}

func TestGNOMEManualAuthentication(t *testing.T) {
	b := NewGNOMEBackend(fakeGSettings(t, map[string]string{
		"org.gnome.system.proxy mode":                         "'manual'",
		"org.gnome.system.proxy.http host":                    "'proxy'",
		"org.gnome.system.proxy.http use-authentication":      "true",
		"org.gnome.system.proxy.http authentication-user":     "'user'",
		"org.gnome.system.proxy.http authentication-password": "'p@ss'",
		"org.gnome.system.proxy.https host":                   "'proxy'",
		"org.gnome.system.proxy.https port":                   "8080",
	}))

	proxyURL, err := b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.NoError(t, err)
	require.Equal(t, "user", proxyURL.User.Username())
	password, _ := proxyURL.User.Password()
	require.Equal(t, "p@ss", password)

	proxyURL, err = b.LookupProxy(mustParseURL(t, "https://example.com"))
	require.NoError(t, err)
	require.Nil(t, proxyURL.User)
}

func TestGNOMEIPv6ProxyHost(t *testing.T) {
	b := NewGNOMEBackend(fakeGSettings(t, map[string]string{
		"org.gnome.system.proxy mode":      "'manual'",
		"org.gnome.system.proxy.http host": "'fd00::1'",
		"org.gnome.system.proxy.http port": "3128",
	}))
	proxyURL, err := b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.NoError(t, err)
	require.Equal(t, "http://[fd00::1]:3128", proxyURL.String())
}

func TestGNOMERunnerError(t *testing.T) {
	b := NewGNOMEBackend(func(name string, arg ...string) ([]byte, error) {
		return nil, errors.New("no such schema")
	})
	_, err := b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.ErrorContains(t, err, "no such schema")
}

func TestGNOMEMalformedOutput(t *testing.T) {
	b := NewGNOMEBackend(func(name string, arg ...string) ([]byte, error) {
		return []byte("org.gnome.system.proxy mode 'manual\n"), nil
	})
	_, err := b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.Error(t, err)

	b = NewGNOMEBackend(func(name string, arg ...string) ([]byte, error) {
		return []byte("org.gnome.system.proxy mode 42\n"), nil
	})
	_, err = b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.ErrorContains(t, err, "unexpected type")
}

func TestGNOMEReadsSettingsOnEveryLookup(t *testing.T) {
	mode := "'none'"
	b := NewGNOMEBackend(func(name string, arg ...string) ([]byte, error) {
		return []byte("org.gnome.system.proxy mode " + mode + "\norg.gnome.system.proxy.http host 'proxy'\n"), nil
	})
	proxyURL, err := b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.NoError(t, err)
	require.Nil(t, proxyURL)

	mode = "'manual'"
	proxyURL, err = b.LookupProxy(mustParseURL(t, "http://example.com"))
	require.NoError(t, err)
	require.Equal(t, "http://proxy", proxyURL.String())
}

func TestParseGNOMESettingsValues(t *testing.T) {
	settings, err := parseGNOMESettings([]byte(`org.gnome.system.proxy mode 'manual'
org.gnome.system.proxy autoconfig-url 'http://wpad/it\'s.dat'
org.gnome.system.proxy ignore-hosts ['localhost', '127.0.0.0/8', '::1']
org.gnome.system.proxy.http host "it's"
org.gnome.system.proxy.http port 8080
org.gnome.system.proxy.http use-authentication true
org.gnome.system.proxy.https host 'café.example'
org.gnome.system.proxy.https port uint32 8443
org.gnome.system.proxy.socks host ''
org.gnome.system.proxy.socks port 0
incomplete line
`))
	require.NoError(t, err)
	require.Equal(t, &gnomeSettings{
		mode:          "manual",
		autoconfigURL: "http://wpad/it's.dat",
		ignoreHosts:   []string{"localhost", "127.0.0.0/8", "::1"},
		http:          gnomeProxy{host: "it's", port: 8080},
		https:         gnomeProxy{host: "café.example", port: 8443},
		useAuth:       true,
	}, settings)
}

func TestParseGNOMESettingsEmptyList(t *testing.T) {
	settings, err := parseGNOMESettings([]byte("org.gnome.system.proxy ignore-hosts @as []\n"))
	require.NoError(t, err)
	require.Empty(t, settings.ignoreHosts)
}

func TestParseGNOMESettingsErrors(t *testing.T) {
	for _, line := range []string{
		"org.gnome.system.proxy mode 'unterminated",
		"org.gnome.system.proxy ignore-hosts ['a', 'b'",
		"org.gnome.system.proxy ignore-hosts 'localhost'",
		"org.gnome.system.proxy.http port 'http'",
		"org.gnome.system.proxy.http use-authentication 'yes'",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := parseGNOMESettings([]byte(line + "\n"))
			require.Error(t, err)
		})
	}
}
