// Package fluxtest is an in-process request harness for driving a built
// http11.Handler without a real listening socket — a thin equivalent of
// ecewo's mock.h (MockParams/MockResponse/request()), not a mocking
// framework: no assertion DSL, no stub generation.
package fluxtest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/fluxhttp/flux/pkg/flux/http11"
)

// Request describes one request to drive through a handler.
type Request struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Response is the parsed result of driving a Request through a handler.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// Do connects a net.Pipe to handler via an http11.Connection, writes req as
// an HTTP/1.1 message, and parses the single response written back. The
// connection is closed after one request/response round trip.
func Do(handler http11.Handler, req Request) (*Response, error) {
	clientConn, serverConn := net.Pipe()
	deadlineAt := time.Now().Add(deadline)
	clientConn.SetDeadline(deadlineAt)
	serverConn.SetDeadline(deadlineAt)

	conn := http11.NewConnection(serverConn, http11.ConnectionConfig{
		MaxRequests:     1,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}, handler)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- conn.Serve() }()

	if err := writeRequest(clientConn, req); err != nil {
		return nil, err
	}

	resp, err := readResponse(clientConn)
	clientConn.Close()
	<-serveErrCh
	return resp, err
}

func writeRequest(w io.Writer, req Request) error {
	var b strings.Builder
	path := req.Path
	if path == "" {
		path = "/"
	}
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", req.Method, path)
	if _, ok := req.Headers["Host"]; !ok {
		b.WriteString("Host: fluxtest\r\n")
	}
	for k, v := range req.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	if req.Body != "" {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(req.Body))
	}
	b.WriteString("Connection: close\r\n\r\n")
	b.WriteString(req.Body)

	_, err := io.WriteString(w, b.String())
	return err
}

func readResponse(r io.Reader) (*Response, error) {
	br := bufio.NewReader(r)

	statusLine, err := br.ReadString('\n')
	if err != nil && statusLine == "" {
		return nil, err
	}
	var code int
	parts := strings.SplitN(strings.TrimSpace(statusLine), " ", 3)
	if len(parts) >= 2 {
		fmt.Sscanf(parts[1], "%d", &code)
	}

	resp := &Response{StatusCode: code, Headers: map[string]string{}}
	contentLength := -1
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if colon := strings.IndexByte(line, ':'); colon >= 0 {
			name := strings.TrimSpace(line[:colon])
			value := strings.TrimSpace(line[colon+1:])
			resp.Headers[name] = value
			if strings.EqualFold(name, "Content-Length") {
				fmt.Sscanf(value, "%d", &contentLength)
			}
		}
		if err != nil {
			break
		}
	}

	if contentLength > 0 {
		buf := make([]byte, contentLength)
		if _, err := io.ReadFull(br, buf); err != nil {
			return resp, err
		}
		resp.Body = string(buf)
	} else if contentLength < 0 {
		rest, _ := io.ReadAll(br)
		resp.Body = string(rest)
	}

	return resp, nil
}

// deadline bounds how long Do's internal goroutine is given to finish
// serving before the harness gives up waiting, avoiding a hang if a handler
// never replies.
const deadline = 5 * time.Second
