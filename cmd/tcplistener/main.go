// Command tcplistener is a debug utility: it accepts connections on a
// fixed port, parses each request with internal/request, prints the
// parsed request line, headers, and body to stdout, and answers with
// a fixed plaintext response.
package main

import (
	"bufio"
	"fmt"
	"net"

	"github.com/oakhttp/oakhttp/internal/request"
)

func main() {
	listener, err := net.Listen("tcp", ":42069")
	if err != nil {
		fmt.Println("listen error:", err)
		return
	}
	defer listener.Close()
	fmt.Println("Listening on port 42069...")

	for {
		conn, err := listener.Accept()
		if err != nil {
			fmt.Println("accept error:", err)
			continue
		}
		go handleConnection(conn)
	}
}

func handleConnection(conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	req, err := request.Parse(br, request.Limits{MaxHeaderLines: 100}, conn.RemoteAddr().String(), conn.LocalAddr().String(), false)
	if err != nil {
		fmt.Println("parse error:", err)
		return
	}

	fmt.Println("Request Line")
	fmt.Printf("Method: %s\n", req.Method)
	fmt.Printf("Path: %s\n", req.Path)
	fmt.Printf("Version: %s\n", req.Version)

	fmt.Println("Headers")
	for _, h := range req.Headers.List() {
		fmt.Printf("%s: %s\n", h.Name, h.Value)
	}

	fmt.Println("Body")
	if n := req.ContentLength(); n > 0 {
		body := make([]byte, n)
		_, _ = req.Body.Read(body)
		fmt.Printf("%s\n", string(body))
	}

	respBody := "Hello from your HTTP server!\n"
	resp := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n"+
			"Content-Length: %d\r\n"+
			"Content-Type: text/plain\r\n"+
			"Connection: close\r\n"+
			"\r\n"+
			"%s",
		len(respBody),
		respBody,
	)
	conn.Write([]byte(resp))
}
