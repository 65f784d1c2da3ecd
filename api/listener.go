// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"log/slog"
	"net"
	"sync"
)

// ipLimitListener wraps a listener and refuses connections from a source
// that already holds maxPerIP open connections. A refused connection is
// closed immediately and Accept moves on to the next one.
type ipLimitListener struct {
	net.Listener
	logger   *slog.Logger
	conns    map[string]int
	maxPerIP int
	mu       sync.Mutex
}

func newIPLimitListener(
	ln net.Listener,
	maxPerIP int,
	logger *slog.Logger,
) *ipLimitListener {
	return &ipLimitListener{
		Listener: ln,
		logger:   logger,
		conns:    make(map[string]int),
		maxPerIP: maxPerIP,
	}
}

func (l *ipLimitListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		ipKey := ipKeyFromAddr(conn.RemoteAddr())
		if !l.acquire(ipKey) {
			l.logger.Warn(
				"rejected connection: per-IP limit reached",
				"remote", conn.RemoteAddr().String(),
				"limit", l.maxPerIP,
			)
			_ = conn.Close()
			continue
		}
		return &limitedConn{Conn: conn, release: func() { l.release(ipKey) }}, nil
	}
}

// ConnCount returns the open connection count for an IP key
func (l *ipLimitListener) ConnCount(ipKey string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conns[ipKey]
}

func (l *ipLimitListener) acquire(ipKey string) bool {
	if ipKey == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conns[ipKey] >= l.maxPerIP {
		return false
	}
	l.conns[ipKey]++
	return true
}

func (l *ipLimitListener) release(ipKey string) {
	if ipKey == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conns[ipKey]--
	if l.conns[ipKey] <= 0 {
		delete(l.conns, ipKey)
	}
}

type limitedConn struct {
	net.Conn
	release func()
	once    sync.Once
}

func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.release)
	return err
}

// ipKeyFromAddr returns the bare IP for IPv4 sources and the /64 prefix for
// IPv6 sources. Addresses without a host, such as unix sockets, yield an
// empty key and are never limited.
func ipKeyFromAddr(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.String()
	}
	return ip.Mask(net.CIDRMask(64, 128)).String() + "/64"
}
