package httpcore

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := Open("http://127.0.0.1:0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		srv.Stop()
		Close(srv)
	})

	if _, err := srv.AddHandler(&Entry{
		Method: fasthttp.MethodGet,
		Path:   "/hi",
		Callback: func(_ context.Context, _ Transport, _ *fasthttp.Request, _ any) (*fasthttp.Response, error) {
			resp := fasthttp.AcquireResponse()
			resp.SetStatusCode(fasthttp.StatusOK)
			resp.SetBodyString("hello")
			return resp, nil
		},
	}); err != nil {
		t.Fatalf("AddHandler: %v", err)
	}

	if _, err := srv.AddHandler(&Entry{
		Method: fasthttp.MethodPost,
		Path:   "/x",
		Callback: func(_ context.Context, _ Transport, _ *fasthttp.Request, _ any) (*fasthttp.Response, error) {
			resp := fasthttp.AcquireResponse()
			resp.SetStatusCode(fasthttp.StatusOK)
			return resp, nil
		},
	}); err != nil {
		t.Fatalf("AddHandler: %v", err)
	}

	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return srv
}

func TestServer_GetAndPersistentConnection(t *testing.T) {
	srv := startTestServer(t)
	addr := srv.Addr().String()

	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 2; i++ {
		resp, err := client.Get("http://" + addr + "/hi")
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Fatalf("request %d: want 200, got %d", i, resp.StatusCode)
		}
		if string(body) != "hello" {
			t.Fatalf("request %d: want body hello, got %q", i, body)
		}
	}
}

func TestServer_Head(t *testing.T) {
	srv := startTestServer(t)
	addr := srv.Addr().String()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Head("http://" + addr + "/hi")
	if err != nil {
		t.Fatalf("HEAD: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if resp.ContentLength != 5 {
		t.Fatalf("want Content-Length 5, got %d", resp.ContentLength)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Fatalf("want zero body bytes on HEAD, got %d", len(body))
	}
}

func TestServer_NotFound(t *testing.T) {
	srv := startTestServer(t)
	addr := srv.Addr().String()

	resp, err := http.Get("http://" + addr + "/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := startTestServer(t)
	addr := srv.Addr().String()

	resp, err := http.Get("http://" + addr + "/x")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 405 {
		t.Fatalf("want 405, got %d", resp.StatusCode)
	}
}

func TestServer_HTTP10ClosesConnection(t *testing.T) {
	srv := startTestServer(t)
	addr := srv.Addr().String()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, err = conn.Write([]byte("GET /hi HTTP/1.0\r\n\r\n"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	r := bufio.NewReader(conn)
	statusLine, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if statusLine[:12] != "HTTP/1.1 200" {
		t.Fatalf("want 200 status line, got %q", statusLine)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	// The server must close the connection after this response; a second
	// read should observe EOF rather than hang waiting for more data.
	buf := make([]byte, 1)
	for {
		_, err := r.ReadByte()
		if err != nil {
			if err != io.EOF {
				t.Fatalf("want EOF after HTTP/1.0 response, got %v", err)
			}
			break
		}
		_ = buf
	}
}

func TestServer_AddHandlerConflictRejected(t *testing.T) {
	srv := startTestServer(t)
	_, err := srv.AddHandler(&Entry{Method: fasthttp.MethodGet, Path: "/hi", Callback: noopView})
	if err == nil {
		t.Fatal("want conflict error re-registering /hi")
	}
}

func TestServer_Upgrader(t *testing.T) {
	srv, err := Open("http://127.0.0.1:0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		srv.Stop()
		Close(srv)
	})

	hijacked := make(chan net.Conn, 1)
	_, err = srv.AddHandler(&Entry{
		Method:     fasthttp.MethodGet,
		Path:       "/ws",
		IsUpgrader: true,
		Callback: func(_ context.Context, t Transport, _ *fasthttp.Request, _ any) (*fasthttp.Response, error) {
			hijacked <- t.Hijack()
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("AddHandler: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /ws HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case c := <-hijacked:
		if c == nil {
			t.Fatal("want non-nil hijacked conn")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never hijacked the transport")
	}
}

func TestServer_StopDrainsSessions(t *testing.T) {
	srv := startTestServer(t)
	addr := srv.Addr().String()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /hi HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := bufio.NewReader(conn)
	if _, err := r.ReadString('\n'); err != nil {
		t.Fatalf("read: %v", err)
	}

	srv.Stop()

	srv.mu.Lock()
	n := len(srv.sessions)
	srv.mu.Unlock()
	if n != 0 {
		t.Fatalf("want 0 live sessions after Stop, got %d", n)
	}
}
