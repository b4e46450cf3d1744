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
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParseURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

func TestBypassListDomainStyle(t *testing.T) {
	list := compileBypassList([]string{"example.com", ".dot.org", "*.star.net", "localhost", "10.0.0.0/8", "::1", "*"}, bypassDomain)
	require.Len(t, list, 7)

	list = compileBypassList([]string{"example.com", ".dot.org", "*.star.net", "localhost", "10.0.0.0/8", "::1"}, bypassDomain)
	for _, target := range []string{
		"https://example.com",
		"https://www.example.com",
		"https://EXAMPLE.com.",
		"https://dot.org",
		"https://a.b.dot.org",
		"https://star.net",
		"https://x.star.net",
		"http://localhost:8080",
		"http://10.1.2.3",
		"http://[::1]:80",
		"http://[0:0:0:0:0:0:0:1]",
	} {
		require.True(t, list.Matches(mustParseURL(t, target)), target)
	}
	for _, target := range []string{
		"https://notexample.com",
		"https://example.com.evil",
		"https://localhost.example",
		"http://11.1.2.3",
		"http://[::2]",
		"file:///etc/hosts",
	} {
		require.False(t, list.Matches(mustParseURL(t, target)), target)
	}
}

func TestBypassListExactStyle(t *testing.T) {
	list := compileBypassList([]string{"example.com", "*.local", "169.254/16", "10.*", "<local>"}, bypassExact)
	for _, target := range []string{
		"https://example.com",
		"https://printer.local",
		"http://169.254.1.1",
		"http://10.20.30.40",
		"http://intranet",
	} {
		require.True(t, list.Matches(mustParseURL(t, target)), target)
	}
	for _, target := range []string{
		"https://www.example.com",
		"https://local.example",
		"http://169.253.1.1",
		"http://110.20.30.40",
		"http://[fe80::1]",
	} {
		require.False(t, list.Matches(mustParseURL(t, target)), target)
	}
}

func TestBypassListEmpty(t *testing.T) {
	var list bypassList
	require.False(t, list.Matches(mustParseURL(t, "https://example.com")))
	require.Empty(t, compileBypassList([]string{"", "  "}, bypassExact))
	require.False(t, compileBypassList([]string{"*"}, bypassExact).Matches(nil))
}

func TestBypassListWildcardMatchesAll(t *testing.T) {
	list := compileBypassList([]string{"*"}, bypassDomain)
	require.True(t, list.Matches(mustParseURL(t, "https://example.com")))
	require.True(t, list.Matches(mustParseURL(t, "http://[::1]")))
}

func TestParsePrefix(t *testing.T) {
	for text, expected := range map[string]string{
		"169.254/16":     "169.254.0.0/16",
		"10/8":           "10.0.0.0/8",
		"192.168.1.7/24": "192.168.1.0/24",
		"fe80::/10":      "fe80::/10",
	} {
		prefix, ok := parsePrefix(text)
		require.True(t, ok, text)
		require.Equal(t, expected, prefix.String())
	}
	for _, text := range []string{"example.com", "a/b", "10.0.0.0/33"} {
		_, ok := parsePrefix(text)
		require.False(t, ok, text)
	}
}
