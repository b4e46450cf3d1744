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

// Command proxyfor prints the proxy the system configuration selects for URLs.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/Jigsaw-Code/systemproxy"
	"github.com/Jigsaw-Code/systemproxy/envproxy"
	"github.com/Jigsaw-Code/systemproxy/resolver"
	"github.com/goccy/go-yaml"
	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

const autoBackend = "auto"

// config is the format of the file passed with -config.
type config struct {
	// Backend is the native backend to use, like the -backend flag.
	Backend string `yaml:"backend"`
	// Environment replaces the process environment, if present.
	Environment map[string]string `yaml:"environment"`
}

func loadConfig(filename string) (*config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func isFlagSet(flags *flag.FlagSet, name string) bool {
	set := false
	flags.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func newNativeResolver(backend string) (resolver.Resolver, error) {
	if backend == autoBackend {
		return systemproxy.NewNativeResolver(), nil
	}
	return systemproxy.NewNamedNativeResolver(backend)
}

func parseTargetURL(text string) (*url.URL, error) {
	u, err := url.Parse(text)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errors.New("URL must be absolute")
	}
	return u, nil
}

func fetch(client *http.Client, u *url.URL) (string, error) {
	resp, err := client.Get(u.String())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// run executes the command with the given arguments, writing results to stdout, and returns the
// exit status.
func run(args []string, stdout io.Writer) int {
	flags := flag.NewFlagSet(path.Base(os.Args[0]), flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage: %s [flags...] <url>...\n", flags.Name())
		flags.PrintDefaults()
	}
	verboseFlag := flags.Bool("v", false, "Enable debug output")
	noEnvFlag := flags.Bool("no-env", false, "Ignore the proxy variables of the environment")
	backendFlag := flags.String("backend", autoBackend,
		fmt.Sprintf("Proxy backend of the system to use: %v or %v", autoBackend, strings.Join(systemproxy.NativeBackendNames(), ", ")))
	configFlag := flags.String("config", "", "YAML file with the backend and an environment to use instead of the process environment")
	fetchFlag := flags.Bool("fetch", false, "GET each URL through the selected proxy and print the response status")
	timeoutSecFlag := flags.Int("timeout", 10, "Timeout in seconds for -fetch")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	logLevel := slog.LevelInfo
	if *verboseFlag {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(
		os.Stderr,
		&tint.Options{NoColor: !term.IsTerminal(int(os.Stderr.Fd())), Level: logLevel},
	)))

	if flags.NArg() == 0 {
		slog.Error("Need to pass at least one URL in the command-line")
		flags.Usage()
		return 1
	}

	cfg := &config{}
	if *configFlag != "" {
		var err error
		cfg, err = loadConfig(*configFlag)
		if err != nil {
			slog.Error("Could not load config", "file", *configFlag, "error", err)
			return 1
		}
	}

	backend := *backendFlag
	if !isFlagSet(flags, "backend") && cfg.Backend != "" {
		backend = cfg.Backend
	}
	native, err := newNativeResolver(backend)
	if err != nil {
		slog.Error("Could not create proxy backend", "backend", backend, "error", err)
		return 1
	}

	var env *envproxy.Config
	switch {
	case *noEnvFlag:
	case cfg.Environment != nil:
		env = envproxy.FromMap(cfg.Environment)
	default:
		env = envproxy.FromEnvironment()
	}
	proxyResolver := systemproxy.NewFrom(env, native)
	defer proxyResolver.Close()
	slog.Debug("Resolver ready", "backend", backend, "no_proxy", proxyResolver.NoProxy().String())

	httpClient := &http.Client{
		Timeout:   time.Duration(*timeoutSecFlag) * time.Second,
		Transport: &http.Transport{Proxy: resolver.ProxyFunc(proxyResolver)},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	defer httpClient.CloseIdleConnections()

	failed := false
	for _, arg := range flags.Args() {
		target, err := parseTargetURL(arg)
		if err != nil {
			slog.Error("Invalid URL", "url", arg, "error", err)
			failed = true
			continue
		}
		proxyText := "DIRECT"
		if proxyURL := proxyResolver.ProxyForURL(target); proxyURL != nil {
			proxyText = proxyURL.Redacted()
		}
		if !*fetchFlag {
			fmt.Fprintln(stdout, target.Redacted(), proxyText)
			continue
		}
		status, err := fetch(httpClient, target)
		if err != nil {
			slog.Error("Fetch failed", "url", target.Redacted(), "error", err)
			failed = true
			status = "ERROR"
		}
		fmt.Fprintln(stdout, target.Redacted(), proxyText, status)
	}
	if failed {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}
