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
	"log/slog"
	"net/url"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modwinhttp                = windows.NewLazySystemDLL("winhttp.dll")
	procWinHttpOpen           = modwinhttp.NewProc("WinHttpOpen")
	procWinHttpCloseHandle    = modwinhttp.NewProc("WinHttpCloseHandle")
	procWinHttpGetProxyForUrl = modwinhttp.NewProc("WinHttpGetProxyForUrl")

	modkernel32    = windows.NewLazySystemDLL("kernel32.dll")
	procGlobalFree = modkernel32.NewProc("GlobalFree")
)

// https://learn.microsoft.com/en-us/windows/win32/api/winhttp/ns-winhttp-winhttp_autoproxy_options
const (
	winhttpAccessTypeNoProxy        = 1
	winhttpAccessTypeAutomaticProxy = 4

	winhttpAutoProxyAutoDetect      = 0x00000001
	winhttpAutoProxyAllowAutoConfig = 0x00000100
	winhttpAutoProxyAllowStatic     = 0x00000200
	winhttpAutoProxyAllowCM         = 0x00000400

	winhttpAutoDetectTypeDHCP = 0x00000001
	winhttpAutoDetectTypeDNSA = 0x00000002

	// errWinHTTPAutodetectionFailed is ERROR_WINHTTP_AUTODETECTION_FAILED: WPAD found no PAC file.
	errWinHTTPAutodetectionFailed windows.Errno = 12180
)

type winhttpAutoProxyOptions struct {
	flags                 uint32
	autoDetectFlags       uint32
	autoConfigURL         *uint16
	reserved              uintptr
	reservedDword         uint32
	autoLogonIfChallenged uint32
}

type winhttpProxyInfo struct {
	accessType  uint32
	proxy       *uint16
	proxyBypass *uint16
}

// WinHTTPBackend asks WinHTTP for the proxy, which covers the static proxy of the Internet
// Options, PAC files and WPAD. Where WPAD finds nothing, the Internet Options are read from the
// registry instead, see [RegistryBackend].
type WinHTTPBackend struct {
	session   uintptr
	fallback  *RegistryBackend
	closeOnce sync.Once
}

// OpenWinHTTP opens a WinHTTP session for proxy lookups. Call Close to release it.
func OpenWinHTTP() (*WinHTTPBackend, error) {
	if err := procWinHttpOpen.Find(); err != nil {
		return nil, err
	}
	agent, err := windows.UTF16PtrFromString("systemproxy")
	if err != nil {
		return nil, err
	}
	session, _, err := procWinHttpOpen.Call(
		uintptr(unsafe.Pointer(agent)),
		winhttpAccessTypeAutomaticProxy,
		0, // WINHTTP_NO_PROXY_NAME
		0, // WINHTTP_NO_PROXY_BYPASS
		0,
	)
	if session == 0 {
		return nil, fmt.Errorf("WinHttpOpen failed: %w", err)
	}
	return &WinHTTPBackend{session: session, fallback: NewRegistryBackend()}, nil
}

// LookupProxy implements [resolver.Backend].
func (b *WinHTTPBackend) LookupProxy(u *url.URL) (*url.URL, error) {
	target, err := windows.UTF16PtrFromString(u.String())
	if err != nil {
		return nil, err
	}
	options := winhttpAutoProxyOptions{
		flags: winhttpAutoProxyAutoDetect | winhttpAutoProxyAllowAutoConfig |
			winhttpAutoProxyAllowStatic | winhttpAutoProxyAllowCM,
		autoDetectFlags:       winhttpAutoDetectTypeDHCP | winhttpAutoDetectTypeDNSA,
		autoLogonIfChallenged: 1,
	}
	var info winhttpProxyInfo
	ok, _, err := procWinHttpGetProxyForUrl.Call(
		b.session,
		uintptr(unsafe.Pointer(target)),
		uintptr(unsafe.Pointer(&options)),
		uintptr(unsafe.Pointer(&info)),
	)
	if ok == 0 {
		if errors.Is(err, errWinHTTPAutodetectionFailed) {
			slog.Debug("WPAD found no proxy configuration, reading Internet Options", "error", err)
			return b.fallback.LookupProxy(u)
		}
		return nil, fmt.Errorf("WinHttpGetProxyForUrl failed: %w", err)
	}
	defer info.free()

	if info.accessType == winhttpAccessTypeNoProxy || info.proxy == nil {
		return nil, nil
	}
	// The bypass list of a static proxy is left to the caller.
	var bypass string
	if info.proxyBypass != nil {
		bypass = windows.UTF16PtrToString(info.proxyBypass)
	}
	return proxyWithBypass(windows.UTF16PtrToString(info.proxy), bypass, u)
}

// Close releases the WinHTTP session.
func (b *WinHTTPBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if ok, _, callErr := procWinHttpCloseHandle.Call(b.session); ok == 0 {
			err = fmt.Errorf("WinHttpCloseHandle failed: %w", callErr)
		}
	})
	return err
}

func (info *winhttpProxyInfo) free() {
	for _, s := range []*uint16{info.proxy, info.proxyBypass} {
		if s == nil {
			continue
		}
		// GlobalFree returns NULL on success.
		if r, _, err := procGlobalFree.Call(uintptr(unsafe.Pointer(s))); r != 0 {
			slog.Warn("Failed to free WinHTTP proxy info", "error", err)
		}
	}
}
