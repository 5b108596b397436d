package server

import (
	"bufio"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakhttp/oakhttp/internal/vhost"
)

func TestServerEndToEndRequest(t *testing.T) {
	hosts := vhost.NewTable()
	host := vhost.NewVirtualHost("")
	host.AddContext("/hello", "GET", okHandler{"hello world"})
	hosts.Add(host)

	srv, err := Start(Config{
		Addr:    "127.0.0.1:0",
		Hosts:   hosts,
		Logger:  &NullLogger{},
		Metrics: NewMetrics(),
	})
	require.NoError(t, err)
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write([]byte("GET /hello HTTP/1.1\r\nHost: localhost\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, statusLine, "200")

	var body string
	for {
		line, err := br.ReadString('\n')
		if err != nil || line == "\r\n" {
			break
		}
	}
	buf := make([]byte, 64)
	n, _ := br.Read(buf)
	body = string(buf[:n])
	assert.Equal(t, "hello world", body)
}

func TestServerMissingHostHeaderIs400(t *testing.T) {
	hosts := vhost.NewTable()
	hosts.Add(vhost.NewVirtualHost(""))

	srv, err := Start(Config{Addr: "127.0.0.1:0", Hosts: hosts, Logger: &NullLogger{}, Metrics: NewMetrics()})
	require.NoError(t, err)
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, statusLine, "400")
}

func TestListenFallsBackToNetListenWithoutReusePort(t *testing.T) {
	ln, err := listen("127.0.0.1:0", false, 0)
	require.NoError(t, err)
	defer ln.Close()
	assert.NotNil(t, ln.Addr())
}

func TestStartUsesInjectedSocketFactory(t *testing.T) {
	hosts := vhost.NewTable()
	hosts.Add(vhost.NewVirtualHost(""))

	called := false
	var gotAddr string
	srv, err := Start(Config{
		Addr:    "127.0.0.1:0",
		Hosts:   hosts,
		Logger:  &NullLogger{},
		Metrics: NewMetrics(),
		Socket: func(addr string, reusePort bool, backlog int, tlsConfig *tls.Config) (net.Listener, error) {
			called = true
			gotAddr = addr
			return net.Listen("tcp", addr)
		},
	})
	require.NoError(t, err)
	defer srv.Close()

	assert.True(t, called)
	assert.Equal(t, "127.0.0.1:0", gotAddr)
}
