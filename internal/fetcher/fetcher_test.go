package fetcher

import (
	"bufio"
	"bytes"
	"compress/flate"
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/yehzhang/dmscrape/internal/session"
)

func deflate(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	w.Write([]byte(s))
	w.Close()
	return buf.Bytes()
}

// serveOnce runs a minimal fake comment host: one connection, canned
// raw-deflate bodies keyed by request path, served until the client closes.
func serveOnce(t *testing.T, bodies map[string]string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			reqLine, err := r.ReadString('\n')
			if err != nil {
				return
			}
			parts := bytes.Fields([]byte(reqLine))
			if len(parts) < 2 {
				return
			}
			path := string(parts[1])
			for {
				line, err := r.ReadString('\n')
				if err != nil || line == "\r\n" {
					break
				}
			}
			text, ok := bodies[path]
			if !ok {
				conn.Write([]byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"))
				continue
			}
			body := deflate(t, text)
			resp := "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n"
			conn.Write(append([]byte(resp), body...))
		}
	}()

	return ln.Addr().String()
}

func newTestFetcher(t *testing.T, addr string) *CIDFetcher {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi port: %v", err)
	}
	f := &CIDFetcher{session: session.New(host, port, nil)}
	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestGetCurrentParsesDocument(t *testing.T) {
	addr := serveOnce(t, map[string]string{
		"/42.xml": `<i><chatid>42</chatid><d p="1,1,25,16777215,100,0,u,1">hi</d></i>`,
	})
	f := newTestFetcher(t, addr)

	doc, err := f.GetCurrent(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetCurrent returned error: %v", err)
	}
	if doc.ChatID != 42 || len(doc.Comments) != 1 {
		t.Fatalf("GetCurrent = %+v, want chatid 42 with 1 comment", doc)
	}
}

func TestGetHistoryUsesRollDateEndpoint(t *testing.T) {
	addr := serveOnce(t, map[string]string{
		"/dmroll,100,42": `<i><ds>100</ds></i>`,
	})
	f := newTestFetcher(t, addr)

	doc, err := f.GetHistory(context.Background(), 42, 100)
	if err != nil {
		t.Fatalf("GetHistory returned error: %v", err)
	}
	if doc.DS != 100 {
		t.Fatalf("GetHistory = %+v, want ds 100", doc)
	}
}

func TestGetRollDatesParsesTimestampList(t *testing.T) {
	addr := serveOnce(t, map[string]string{
		"/rolldate,42": `[{"timestamp":100},{"timestamp":200}]`,
	})
	f := newTestFetcher(t, addr)

	dates, err := f.GetRollDates(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetRollDates returned error: %v", err)
	}
	if len(dates) != 2 || dates[0] != 100 || dates[1] != 200 {
		t.Fatalf("GetRollDates = %v, want [100 200]", dates)
	}
}

func TestGetCurrentContentErrorSentinel(t *testing.T) {
	addr := serveOnce(t, map[string]string{"/42.xml": "error"})
	f := newTestFetcher(t, addr)

	if _, err := f.GetCurrent(context.Background(), 42); err == nil {
		t.Fatal("GetCurrent on a literal \"error\" body = nil error, want one")
	}
}
