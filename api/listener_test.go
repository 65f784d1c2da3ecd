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
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPKeyFromAddr(t *testing.T) {
	tests := []struct {
		name     string
		addr     net.Addr
		expected string
	}{
		{"nil", nil, ""},
		{
			"ipv4",
			&net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 4000},
			"192.0.2.10",
		},
		{
			"ipv4 mapped",
			&net.TCPAddr{IP: net.ParseIP("::ffff:192.0.2.10"), Port: 4000},
			"192.0.2.10",
		},
		{
			"ipv6 masked to /64",
			&net.TCPAddr{IP: net.ParseIP("2001:db8::1:2:3:4"), Port: 4000},
			"2001:db8::/64",
		},
		{
			"unix socket",
			&net.UnixAddr{Name: "/tmp/bequest.sock", Net: "unix"},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ipKeyFromAddr(tt.addr))
		})
	}
}

func TestIPLimitListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ll := newIPLimitListener(ln, 1, slog.New(slog.DiscardHandler))
	accepted := make(chan net.Conn, 4)
	go func() {
		defer close(accepted)
		for {
			conn, err := ll.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()
	defer func() {
		_ = ll.Close()
		for conn := range accepted {
			_ = conn.Close()
		}
	}()

	waitAccepted := func() net.Conn {
		select {
		case conn := <-accepted:
			return conn
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for accepted connection")
		}
		return nil
	}

	c1, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c1.Close()
	first := waitAccepted()
	assert.Equal(t, 1, ll.ConnCount("127.0.0.1"))

	// The second connection from the same source is closed by the server
	c2, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c2.Close()
	require.NoError(t, c2.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = c2.Read(make([]byte, 1))
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection was not refused")
	}
	assert.Equal(t, 1, ll.ConnCount("127.0.0.1"))

	// Closing twice releases the slot once
	require.NoError(t, first.Close())
	_ = first.Close()
	assert.Equal(t, 0, ll.ConnCount("127.0.0.1"))

	c3, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c3.Close()
	third := waitAccepted()
	defer third.Close()
	assert.Equal(t, 1, ll.ConnCount("127.0.0.1"))
}
