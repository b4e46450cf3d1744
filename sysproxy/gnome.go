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
	"os/exec"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
)

const gnomeProxySchema = "org.gnome.system.proxy"

// CheckGSettings returns an error if the GNOME proxy settings cannot be read on this machine.
func CheckGSettings() error {
	if _, err := exec.LookPath("gsettings"); err != nil {
		return err
	}
	_, err := ExecRunner("gsettings", "list-keys", gnomeProxySchema)
	return err
}

// GNOMEBackend reads the proxy settings of the GNOME desktop.
//
// In manual mode, the ignore-hosts setting is checked first. It lists host names, which also
// cover their subdomains, IP addresses and CIDR ranges. Then http and https URLs use the proxy
// of their scheme, and fall back to the SOCKS proxy if there is none. Automatic mode requires
// evaluating a PAC file and results in [ErrAutoConfig].
type GNOMEBackend struct {
	run Runner
}

// NewGNOMEBackend returns a backend that reads the settings with the gsettings command, executed
// by run. A nil run means [ExecRunner].
func NewGNOMEBackend(run Runner) *GNOMEBackend {
	return &GNOMEBackend{run: runnerOrDefault(run)}
}

type gnomeProxy struct {
	host string
	port int64
}

type gnomeSettings struct {
	mode          string
	autoconfigURL string
	ignoreHosts   []string
	http          gnomeProxy
	https         gnomeProxy
	ftp           gnomeProxy
	socks         gnomeProxy
	// Credentials for the http proxy.
	useAuth  bool
	user     string
	password string
}

// LookupProxy implements [resolver.Backend].
func (b *GNOMEBackend) LookupProxy(u *url.URL) (*url.URL, error) {
	settings, err := b.readSettings()
	if err != nil {
		return nil, err
	}
	return settings.proxyFor(u)
}

func (b *GNOMEBackend) readSettings() (*gnomeSettings, error) {
	out, err := b.run("gsettings", "list-recursively", gnomeProxySchema)
	if err != nil {
		return nil, fmt.Errorf("failed to read GNOME proxy settings: %w", err)
	}
	return parseGNOMESettings(out)
}

// parseGNOMESettings parses the output of "gsettings list-recursively", which has one
// "schema key value" line per setting. Values are in the GVariant text format.
func parseGNOMESettings(out []byte) (*gnomeSettings, error) {
	settings := &gnomeSettings{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.SplitN(strings.TrimSpace(scanner.Text()), " ", 3)
		if len(fields) != 3 {
			continue
		}
		schema, key := fields[0], fields[1]
		value, err := dbus.ParseVariant(fields[2], dbus.Signature{})
		if err != nil {
			return nil, fmt.Errorf("failed to parse setting %v %v: %w", schema, key, err)
		}
		if err := settings.set(schema, key, value.Value()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *gnomeSettings) set(schema, key string, value any) error {
	var proxy *gnomeProxy
	switch schema {
	case gnomeProxySchema:
		switch key {
		case "mode":
			return setValue(&s.mode, schema, key, value)
		case "autoconfig-url":
			return setValue(&s.autoconfigURL, schema, key, value)
		case "ignore-hosts":
			return setValue(&s.ignoreHosts, schema, key, value)
		}
		return nil
	case gnomeProxySchema + ".http":
		switch key {
		case "use-authentication":
			return setValue(&s.useAuth, schema, key, value)
		case "authentication-user":
			return setValue(&s.user, schema, key, value)
		case "authentication-password":
			return setValue(&s.password, schema, key, value)
		}
		proxy = &s.http
	case gnomeProxySchema + ".https":
		proxy = &s.https
	case gnomeProxySchema + ".ftp":
		proxy = &s.ftp
	case gnomeProxySchema + ".socks":
		proxy = &s.socks
	default:
		return nil
	}
	switch key {
	case "host":
		return setValue(&proxy.host, schema, key, value)
	case "port":
		return setPort(&proxy.port, schema, key, value)
	}
	return nil
}

func setValue[T any](dst *T, schema, key string, value any) error {
	v, ok := value.(T)
	if !ok {
		return fmt.Errorf("setting %v %v has unexpected type %T", schema, key, value)
	}
	*dst = v
	return nil
}

// setPort accepts any integer type, since gsettings prints the port as a plain number unless
// the schema declares another type than int32.
func setPort(dst *int64, schema, key string, value any) error {
	switch v := value.(type) {
	case int32:
		*dst = int64(v)
	case uint32:
		*dst = int64(v)
	case int64:
		*dst = v
	case uint16:
		*dst = int64(v)
	case int16:
		*dst = int64(v)
	default:
		return fmt.Errorf("setting %v %v has unexpected type %T", schema, key, value)
	}
	return nil
}

func (s *gnomeSettings) proxyFor(u *url.URL) (*url.URL, error) {
	switch s.mode {
	case "none", "":
		return nil, nil
	case "auto":
		if s.autoconfigURL == "" {
			return nil, fmt.Errorf("%w: WPAD", ErrAutoConfig)
		}
		return nil, fmt.Errorf("%w: %v", ErrAutoConfig, s.autoconfigURL)
	case "manual":
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrNotSupported, s.mode)
	}

	if compileBypassList(s.ignoreHosts, bypassDomain).Matches(u) {
		return nil, nil
	}
	var proxy gnomeProxy
	switch u.Scheme {
	case "http":
		proxy = s.http
	case "https":
		proxy = s.https
	case "ftp":
		proxy = s.ftp
	}
	if proxy.host != "" {
		proxyURL := &url.URL{Scheme: "http", Host: joinHostPort(proxy)}
		if u.Scheme == "http" && s.useAuth && s.user != "" {
			proxyURL.User = url.UserPassword(s.user, s.password)
		}
		return proxyURL, nil
	}
	if s.socks.host != "" {
		return &url.URL{Scheme: "socks5", Host: joinHostPort(s.socks)}, nil
	}
	return nil, nil
}

func joinHostPort(p gnomeProxy) string {
	host := strings.TrimSuffix(strings.TrimPrefix(p.host, "["), "]")
	if p.port <= 0 {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, strconv.FormatInt(p.port, 10))
}
