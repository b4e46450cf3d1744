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
Package portal asks the proxy resolver of the freedesktop desktop portal, over D-Bus.

The portal follows the proxy settings of the desktop session, including PAC files, and is
available to sandboxed applications too. See
https://flatpak.github.io/xdg-desktop-portal/docs/doc-org.freedesktop.portal.ProxyResolver.html
*/
package portal

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/Jigsaw-Code/systemproxy/resolver"
	"github.com/godbus/dbus/v5"
)

const (
	portalName   = "org.freedesktop.portal.Desktop"
	portalPath   = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	lookupMethod = "org.freedesktop.portal.ProxyResolver.Lookup"
)

// ErrInvalidReply is returned when the portal answers with something other than a list of proxy
// URLs.
var ErrInvalidReply = errors.New("invalid reply from proxy resolver portal")

// Client looks up proxies with the portal. It is safe for concurrent use.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	// owned is set if Close should close conn.
	owned bool
}

var _ resolver.AsyncBackend = (*Client)(nil)
var _ resolver.Backend = (*Client)(nil)

// Connect connects to the session bus. Call Close to release the connection.
func Connect() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	c := New(conn)
	c.owned = true
	return c, nil
}

// New returns a client that uses an existing connection to the session bus. Closing the client
// leaves conn open.
func New(conn *dbus.Conn) *Client {
	return &Client{conn: conn, obj: conn.Object(portalName, portalPath)}
}

// Available reports whether the bus has a portal, running or activatable.
func (c *Client) Available() bool {
	bus := c.conn.BusObject()
	var hasOwner bool
	if err := bus.Call("org.freedesktop.DBus.NameHasOwner", 0, portalName).Store(&hasOwner); err == nil && hasOwner {
		return true
	}
	var activatable []string
	if err := bus.Call("org.freedesktop.DBus.ListActivatableNames", 0).Store(&activatable); err != nil {
		return false
	}
	return slices.Contains(activatable, portalName)
}

// LookupProxyAsync implements [resolver.AsyncBackend]. It sends the request right away, and
// waits for the reply in a goroutine.
func (c *Client) LookupProxyAsync(u *url.URL) <-chan resolver.Result {
	results := make(chan resolver.Result, 1)
	if u == nil {
		results <- resolver.Result{Err: errors.New("missing URL")}
		return results
	}
	call := c.obj.Go(lookupMethod, 0, make(chan *dbus.Call, 1), u.String())
	go func() {
		<-call.Done
		proxyURL, err := decodeReply(call)
		results <- resolver.Result{Proxy: proxyURL, Err: err}
	}()
	return results
}

// LookupProxy implements [resolver.Backend]. It blocks until the portal replies.
func (c *Client) LookupProxy(u *url.URL) (*url.URL, error) {
	result := <-c.LookupProxyAsync(u)
	return result.Proxy, result.Err
}

// Close closes the connection to the bus, if the client opened it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

func decodeReply(call *dbus.Call) (*url.URL, error) {
	if call.Err != nil {
		return nil, fmt.Errorf("proxy resolver portal failed: %w", call.Err)
	}
	var proxies []string
	if err := call.Store(&proxies); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReply, err)
	}
	return decodeProxies(proxies)
}

// decodeProxies picks the proxy from the list the portal returns. The first entry is the one to
// use, and direct:// means no proxy.
func decodeProxies(proxies []string) (*url.URL, error) {
	if len(proxies) == 0 || proxies[0] == "direct://" {
		return nil, nil
	}
	proxyURL, err := url.Parse(proxies[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReply, err)
	}
	if !proxyURL.IsAbs() {
		return nil, fmt.Errorf("%w: proxy %q is not an absolute URL", ErrInvalidReply, proxies[0])
	}
	return proxyURL, nil
}
