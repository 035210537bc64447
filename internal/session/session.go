// Package session implements a connection-reusing HTTP/1.1 client over a
// raw net.Conn. It exists because the properties this scraper is tested
// against — chunked vs. Content-Length framing, a timeout on only the first
// byte of a response, reconnect-and-retry, raw-DEFLATE bodies — are
// properties of the wire protocol itself, not of any particular client
// library's abstraction over it. net/http hides every one of them.
package session

import (
	"bufio"
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yehzhang/dmscrape/internal/types"
)

const (
	// readRetries is the number of retries after the first attempt, so a
	// request makes at most readRetries+1 attempts before giving up.
	readRetries = 2

	defaultConnectTimeout = 3 * time.Second
	defaultReadTimeout    = 14 * time.Second
)

var statusLineRe = regexp.MustCompile(`^HTTP/1\.[01] (\d{3})`)

// Recorder receives per-request outcome counts. It is satisfied by
// *internal/observability.Metrics; nil is a valid Session field meaning
// "don't record".
type Recorder interface {
	RequestAttempted()
	RequestFailed()
	HostErrorOccurred()
}

// Session is a single host:port connection that a Fetcher reuses across
// many requests. It is not safe for concurrent use by multiple goroutines —
// callers that want more throughput open more Sessions.
type Session struct {
	host    string
	port    int
	headers map[string]string

	connectTimeout time.Duration
	readTimeout    time.Duration

	conn   net.Conn
	reader *bufio.Reader

	recorder Recorder
	log      *slog.Logger
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithTimeouts overrides the default connect/first-byte-read timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(s *Session) {
		s.connectTimeout = connect
		s.readTimeout = read
	}
}

// WithHeader adds a header sent on every request this Session makes.
func WithHeader(key, value string) Option {
	return func(s *Session) { s.headers[key] = value }
}

// WithRecorder attaches a Recorder that observes request outcomes, e.g. an
// *observability.Metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// New builds a Session for host:port. It does not dial until Connect.
func New(host string, port int, log *slog.Logger, opts ...Option) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		host:           host,
		port:           port,
		headers:        map[string]string{"User-Agent": "dmscrape/1.0", "Connection": "keep-alive"},
		connectTimeout: defaultConnectTimeout,
		readTimeout:    defaultReadTimeout,
		log:            log.With("component", "session", "host", host),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHeader overrides or adds a header used for every subsequent request.
func (s *Session) SetHeader(key, value string) { s.headers[key] = value }

// Connect opens the underlying TCP connection, closing and replacing any
// connection already open.
func (s *Session) Connect(ctx context.Context) error {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
		s.reader = nil
	}
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	dialer := net.Dialer{Timeout: s.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &types.HostError{Op: "connect", Target: addr, Err: err}
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.log.Debug("connected")
	return nil
}

// Disconnect closes the underlying connection, if any.
func (s *Session) Disconnect() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	return err
}

// Get issues a GET request for uri and returns the inflated, decoded
// response body. It retries up to readRetries times on a HostError,
// reconnecting between attempts with a quadratic backoff, and on 404
// returns types.ErrPageNotFound.
func (s *Session) Get(ctx context.Context, uri string) ([]byte, error) {
	if s.conn == nil {
		return nil, types.ErrFetcherClosed
	}

	var errs []error
	for attempt := 0; ; attempt++ {
		if s.recorder != nil {
			s.recorder.RequestAttempted()
		}
		body, status, err := s.get(ctx, uri)
		if err == nil {
			if status == 404 {
				return nil, types.ErrPageNotFound
			}
			if status < 200 || status >= 300 {
				if s.recorder != nil {
					s.recorder.HostErrorOccurred()
				}
				return nil, &types.HostError{Op: "read", Target: uri,
					Err: fmt.Errorf("unexpected status %d", status)}
			}
			return body, nil
		}

		var hostErr *types.HostError
		var noResp *types.NoResponseReadError
		if !errors.As(err, &hostErr) && !errors.As(err, &noResp) {
			return nil, err
		}
		if s.recorder != nil {
			s.recorder.HostErrorOccurred()
		}
		errs = append(errs, err)
		if attempt >= readRetries {
			if s.recorder != nil {
				s.recorder.RequestFailed()
			}
			return nil, types.NewMultipleErrors(errs)
		}

		select {
		case <-time.After(time.Duration(attempt+1) * time.Duration(attempt+1) * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if cerr := s.Connect(ctx); cerr != nil {
			errs = append(errs, cerr)
			return nil, types.NewMultipleErrors(errs)
		}
	}
}

func (s *Session) get(ctx context.Context, uri string) (body []byte, status int, err error) {
	req := s.buildRequest(uri)
	if _, err := s.conn.Write(req); err != nil {
		return nil, 0, &types.HostError{Op: "write", Target: uri, Err: err}
	}

	raw, err := s.read(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) == 0 {
		return nil, 0, &types.NoResponseReadError{Target: uri}
	}

	idx := bytes.Index(raw, []byte("\r\n\r\n"))
	if idx < 0 {
		return nil, 0, &types.HostError{Op: "read", Target: uri, Err: fmt.Errorf("response has no header terminator")}
	}
	head := string(raw[:idx])
	rest := raw[idx+4:]

	status = parseStatusCode(head)
	if status == 0 {
		return nil, 0, &types.HostError{Op: "read", Target: uri, Err: fmt.Errorf("malformed status line")}
	}
	if status == 404 {
		return nil, status, nil
	}

	decoded, err := inflateAndDecode(rest)
	if err != nil {
		return nil, 0, err
	}
	return decoded, status, nil
}

// buildRequest renders the GET request template for uri.
func (s *Session) buildRequest(uri string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", uri)
	fmt.Fprintf(&b, "Host: %s\r\n", s.host)
	for k, v := range s.headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// read pulls one full response off the wire: a timeout applies only to
// receiving the first byte, matching the upstream host's behavior of
// sometimes holding a connection open indefinitely before answering.
func (s *Session) read(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(s.readTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, &types.HostError{Op: "read", Err: err}
	}
	if _, err := s.reader.Peek(1); err != nil {
		if isTimeout(err) {
			return nil, &types.HostError{Op: "read", Err: fmt.Errorf("read timeout waiting for response: %w", err)}
		}
		return nil, &types.HostError{Op: "read", Err: err}
	}

	// No further deadline once the first byte is in: once the host starts
	// answering it keeps going.
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, &types.HostError{Op: "read", Err: err}
	}

	head, err := s.readHeader()
	if err != nil {
		return nil, err
	}

	chunked := headerHasToken(head, "Transfer-Encoding", "chunked")
	if chunked {
		body, err := s.readChunked()
		if err != nil {
			return nil, err
		}
		return append(head, body...), nil
	}

	length := headerContentLength(head)
	body, err := s.readN(length)
	if err != nil {
		return nil, err
	}
	return append(head, body...), nil
}

// readHeader reads bytes until the blank line terminating the response
// header is seen, classifying a timeout on the very first line as a read
// timeout HostError.
func (s *Session) readHeader() ([]byte, error) {
	var buf bytes.Buffer
	first := true
	for {
		line, err := s.reader.ReadBytes('\n')
		buf.Write(line)
		if err != nil {
			if first && isTimeout(err) {
				return nil, &types.HostError{Op: "read", Err: fmt.Errorf("read timeout waiting for response: %w", err)}
			}
			return nil, &types.HostError{Op: "read", Err: err}
		}
		first = false
		if bytes.Equal(bytes.TrimRight(line, "\r\n"), []byte{}) && buf.Len() >= 4 {
			break
		}
	}
	return buf.Bytes(), nil
}

func (s *Session) readN(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		return nil, &types.HostError{Op: "read", Err: err}
	}
	return buf, nil
}

func (s *Session) readChunked() ([]byte, error) {
	var body bytes.Buffer
	for {
		sizeLine, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, &types.HostError{Op: "read", Err: err}
		}
		sizeLine = strings.TrimSpace(sizeLine)
		if idx := strings.IndexByte(sizeLine, ';'); idx >= 0 {
			sizeLine = sizeLine[:idx]
		}
		size, err := strconv.ParseInt(sizeLine, 16, 64)
		if err != nil {
			return nil, &types.HostError{Op: "read", Err: fmt.Errorf("bad chunk size %q: %w", sizeLine, err)}
		}
		if size == 0 {
			// trailer section, terminated by a blank line.
			for {
				line, err := s.reader.ReadString('\n')
				if err != nil {
					return nil, &types.HostError{Op: "read", Err: err}
				}
				if strings.TrimSpace(line) == "" {
					break
				}
			}
			break
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(s.reader, chunk); err != nil {
			return nil, &types.HostError{Op: "read", Err: err}
		}
		body.Write(chunk)
		// consume the trailing CRLF after each chunk.
		if _, err := s.reader.Discard(2); err != nil {
			return nil, &types.HostError{Op: "read", Err: err}
		}
	}
	return body.Bytes(), nil
}

func parseStatusCode(head string) int {
	m := statusLineRe.FindStringSubmatch(head)
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

func headerHasToken(head []byte, name, token string) bool {
	for _, line := range strings.Split(string(head), "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), name) {
			continue
		}
		return strings.Contains(strings.ToLower(v), strings.ToLower(token))
	}
	return false
}

func headerContentLength(head []byte) int {
	for _, line := range strings.Split(string(head), "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// inflateAndDecode inflates a raw-DEFLATE (no zlib header) body and decodes
// it as UTF-8. The comment host never sends any other content-coding.
func inflateAndDecode(raw []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(raw))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, types.DecodeErr(err)
	}
	if !utf8.Valid(out) {
		return nil, types.DecodeErr(errors.New("response body is not valid UTF-8"))
	}
	return out, nil
}
