// Command chunkedbody-demo runs a minimal HTTP/1.1 server that accepts
// chunked POST bodies and echoes the decoded payload back to the caller,
// exercising every collaborator interface named in spec.md §6 against a
// real socket: a SO_REUSEPORT listener (github.com/valyala/tcplisten,
// matching the teacher's own listener-construction style), a
// bufio.Reader-backed Transport, a DefaultTrailerParser, and a
// SimpleTimeoutController.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
	chunkedbody "github.com/valyala/chunkedbody"
	"github.com/valyala/tcplisten"
)

var (
	addr        = flag.String("addr", ":8088", "address to listen on")
	maxBodySize = flag.Int64("max-body-size", 16<<20, "maximum request body size in bytes, counting chunk framing as well as payload")
)

func main() {
	flag.Parse()

	cfg := tcplisten.Config{ReusePort: true}
	ln, err := cfg.NewListener("tcp4", *addr)
	if err != nil {
		log.Fatalf("chunkedbody-demo: listen: %v", err)
	}
	log.Printf("chunkedbody-demo: listening on %s", *addr)

	pool := &bytebufferpool.Pool{}
	pumps := chunkedbody.NewPumpPool(30 * time.Second)
	defer pumps.Stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("chunkedbody-demo: accept: %v", err)
			continue
		}
		go serve(conn, pool, pumps)
	}
}

type demoConn struct {
	keepAlive bool
	badReq    error
	logger    stdLogger
}

type stdLogger struct{}

func (stdLogger) Printf(format string, args ...interface{}) { log.Printf(format, args...) }

func (c *demoConn) KeepAlive() bool              { return c.keepAlive }
func (c *demoConn) SetBadRequestState(err error) { c.badReq = err }
func (c *demoConn) Logger() chunkedbody.Logger   { return c.logger }

func serve(conn net.Conn, pool *bytebufferpool.Pool, pumps *chunkedbody.PumpPool) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	for {
		method, path, headers, err := readRequestHead(br)
		if err != nil {
			return
		}

		cc := &demoConn{keepAlive: !strings.EqualFold(headers["connection"], "close")}

		if !strings.EqualFold(headers["transfer-encoding"], "chunked") {
			writeResponse(bw, 400, "Bad Request", "missing Transfer-Encoding: chunked")
			return
		}

		transport := chunkedbody.NewConnTransport(conn, br)
		timeouts := chunkedbody.NewSimpleTimeoutController(nil)
		timeouts.SetTimeout(30*time.Second, "request body read")

		trailer := &chunkedbody.DefaultTrailerParser{}
		decoder := chunkedbody.NewDecoder(cc, transport, *maxBodySize, trailer, timeouts, pool, pumps)
		reader := decoder.Reader()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)

		var body []byte
		for {
			data, completed, rerr := reader.ReadAsync(ctx)
			if len(data) > 0 {
				body = append(body, data...)
				reader.Advance(len(data))
			}
			if completed {
				if rerr != nil {
					cancel()
					writeResponse(bw, 400, "Bad Request", rerr.Error())
					_ = decoder.Stop()
					return
				}
				break
			}
		}
		cancel()

		log.Printf("chunkedbody-demo: decoded %d trailer field(s): %v", len(trailer.Fields()), trailer.Fields())
		writeResponse(bw, 200, "OK", string(body))
		_ = decoder.Stop()

		if !cc.keepAlive || cc.badReq != nil {
			return
		}
		_ = method
		_ = path
	}
}

func readRequestHead(br *bufio.Reader) (method, path string, headers map[string]string, err error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", "", nil, err
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return "", "", nil, fmt.Errorf("malformed request line %q", line)
	}
	method, path = parts[0], parts[1]

	headers = make(map[string]string)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return "", "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		headers[key] = strings.TrimSpace(line[colon+1:])
	}
	return method, path, headers, nil
}

func writeResponse(bw *bufio.Writer, status int, reason, body string) {
	fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", status, reason)
	fmt.Fprintf(bw, "Content-Length: %s\r\n", strconv.Itoa(len(body)))
	fmt.Fprintf(bw, "Connection: keep-alive\r\n\r\n")
	bw.WriteString(body)
	bw.Flush()
}
