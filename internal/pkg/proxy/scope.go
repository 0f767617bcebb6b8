// Package proxy provides a scoped, in-process MITM recording proxy: start it
// for the duration of a harvest (or a single rollover window within one),
// point HTTP_PROXY/HTTPS_PROXY at it, and every request a harvester's HTTP
// client makes is written to a WARC file. It is the Go-native replacement
// for sfm-utils's warcprox subprocess wrapper (sfmutils/warcprox.py) - see
// DESIGN.md for why a subprocess model was not ported.
package proxy

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/CorentinB/warc"
	"github.com/gwu-libraries/sfm-go/internal/pkg/config"
	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
	"github.com/telanflow/cookiejar"
)

// Settings configures one scope's recording WARC output.
type Settings struct {
	TempDir      string
	Prefix       string
	PortStart    int
	PortEnd      int
	DisableLocalDedupe bool
}

// Scope is one running proxy + WARC writer pair, bound to a single host:port
// for its lifetime. Callers either use Client() or rely on SetEnv/UnsetEnv
// to mutate process environment directly, mirroring warced's
// _set_envs/_unset_envs.
type Scope struct {
	settings Settings
	listener net.Listener
	server   *http.Server
	client   *warc.CustomHTTPClient
	ca       *ca
	logger   *log.FieldedLogger

	addr string
}

// Start mints a fresh CA for this scope, opens a listener on the first free
// port in [PortStart, PortEnd), and begins serving.
func Start(settings Settings) (*Scope, error) {
	logger := log.NewFieldedLogger(&log.Fields{"component": "proxy.scope"})

	c, err := newCA()
	if err != nil {
		return nil, fmt.Errorf("minting proxy CA: %w", err)
	}

	rotatorSettings := warc.NewRotatorSettings()
	rotatorSettings.OutputDirectory = settings.TempDir
	rotatorSettings.Prefix = settings.Prefix
	rotatorSettings.Compression = "GZIP"

	client, err := warc.NewWARCWritingHTTPClient(warc.HTTPClientSettings{
		RotatorSettings:    rotatorSettings,
		TempDir:            settings.TempDir,
		DisableLocalDedupe: settings.DisableLocalDedupe,
	})
	if err != nil {
		return nil, fmt.Errorf("starting WARC writing client: %w", err)
	}

	listener, addr, err := listenInRange(settings.PortStart, settings.PortEnd)
	if err != nil {
		return nil, err
	}

	s := &Scope{
		settings: settings,
		listener: listener,
		client:   client,
		ca:       c,
		logger:   logger,
		addr:     addr,
	}

	s.server = &http.Server{Handler: newHandler(c, client)}
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("proxy server stopped unexpectedly", "err", err.Error())
		}
	}()

	logger.Info("proxy scope started", "addr", addr, "prefix", settings.Prefix)
	return s, nil
}

func mustParseProxyURL(addr string) *url.URL {
	u, _ := url.Parse("http://" + addr)
	return u
}

func listenInRange(start, end int) (net.Listener, string, error) {
	if start == 0 {
		start = config.Get().ProxyPortStart
	}
	if end == 0 {
		end = config.Get().ProxyPortEnd
	}
	for port := start; port < end; port++ {
		addr := fmtAddr("127.0.0.1", port)
		l, err := net.Listen("tcp", addr)
		if err == nil {
			return l, addr, nil
		}
	}
	return nil, "", fmt.Errorf("no free port in range [%d, %d)", start, end)
}

// Addr is the host:port other processes should point HTTP_PROXY/HTTPS_PROXY
// at.
func (s *Scope) Addr() string {
	return s.addr
}

// SetEnv exports HTTP_PROXY/HTTPS_PROXY for the current process, mirroring
// warced._set_envs. Only meaningful when the harvester's own outbound
// traffic (not a separately-constructed client) should be captured.
func (s *Scope) SetEnv() {
	_ = os.Setenv("HTTP_PROXY", "http://"+s.addr)
	_ = os.Setenv("HTTPS_PROXY", "http://"+s.addr)
}

// UnsetEnv reverses SetEnv, mirroring warced._unset_envs.
func (s *Scope) UnsetEnv() {
	_ = os.Unsetenv("HTTP_PROXY")
	_ = os.Unsetenv("HTTPS_PROXY")
}

// Client returns an http.Client that is already configured to route through
// this scope and to trust the minted CA, for harvester callbacks that
// construct their own client rather than relying on environment variables.
func (s *Scope) Client() *http.Client {
	jar, _ := cookiejar.New(nil)
	roots := x509.NewCertPool()
	roots.AddCert(s.ca.cert)
	return &http.Client{
		Jar: jar,
		Transport: &http.Transport{
			Proxy:           http.ProxyURL(mustParseProxyURL(s.addr)),
			TLSClientConfig: &tls.Config{RootCAs: roots},
		},
	}
}

// Stop gracefully drains in-flight requests (with a grace period) then
// force-closes, mirroring warced's terminate-then-kill SubProcess cleanup.
func (s *Scope) Stop(graceful time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), graceful)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
	}

	s.client.WaitGroup.Wait()
	s.client.Close()

	s.logger.Info("proxy scope stopped", "addr", s.addr)
}

// Restart stops the current scope and starts a fresh one with a new prefix,
// the rollover-by-restart behavior warced uses for long-running streams
// (the harvester runtime's rollover loop calls it every WarcRolloverSecs).
func (s *Scope) Restart(newPrefix string) (*Scope, error) {
	s.Stop(30 * time.Second)
	next := s.settings
	next.Prefix = newPrefix
	return Start(next)
}
