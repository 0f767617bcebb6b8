package proxy

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/CorentinB/warc"
	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
	"github.com/gwu-libraries/sfm-go/internal/pkg/stats"
)

// handler is the net/http Handler driving the MITM proxy: plain HTTP
// requests are forwarded directly, CONNECT requests are intercepted with a
// locally-minted leaf certificate so the decrypted traffic can be recorded
// too. Every forwarded request/response round-trips through a
// warc.CustomHTTPClient so it lands in the scope's WARC file, the same
// recording role Zeno's archiver.go gets from the same client type.
type handler struct {
	ca     *ca
	client *warc.CustomHTTPClient
	logger *log.FieldedLogger
}

func newHandler(c *ca, client *warc.CustomHTTPClient) *handler {
	return &handler{
		ca:     c,
		client: client,
		logger: log.NewFieldedLogger(&log.Fields{"component": "proxy.handler"}),
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		h.serveConnect(w, r)
		return
	}
	h.serveForward(w, r)
}

func (h *handler) serveForward(w http.ResponseWriter, r *http.Request) {
	stats.ProxyRoutinesIncr()
	defer stats.ProxyRoutinesDecr()

	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""

	resp, err := h.client.Do(outReq)
	if err != nil {
		h.logger.Error("proxy forward failed", "err", err.Error(), "url", r.URL.String())
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// serveConnect hijacks the raw connection, terminates TLS with a minted leaf
// certificate for the requested host, then serves every decrypted request
// over that connection through the same recording HTTP client.
func (h *handler) serveConnect(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Hostname()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}

	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		h.logger.Error("hijack failed", "err", err.Error())
		return
	}
	defer clientConn.Close()

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	leaf, err := h.ca.leafFor(host)
	if err != nil {
		h.logger.Error("minting leaf cert failed", "err", err.Error(), "host", host)
		return
	}

	tlsConn := tls.Server(clientConn, &tls.Config{
		Certificates: []tls.Certificate{*leaf},
	})
	defer tlsConn.Close()

	reader := bufio.NewReader(tlsConn)
	for {
		req, err := http.ReadRequest(reader)
		if err != nil {
			return
		}
		req.URL.Scheme = "https"
		req.URL.Host = host
		req.RequestURI = ""

		stats.ProxyRoutinesIncr()
		resp, err := h.client.Do(req)
		stats.ProxyRoutinesDecr()
		if err != nil {
			h.logger.Error("proxy tunnel forward failed", "err", err.Error(), "host", host)
			return
		}

		if err := resp.Write(tlsConn); err != nil {
			resp.Body.Close()
			return
		}
		resp.Body.Close()
	}
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return host == "localhost" || strings.HasPrefix(host, "127.") || host == "::1"
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
