package httpx

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/liveclass/liveclass/pkg/logger"
	"golang.org/x/crypto/acme/autocert"
)

// Server wraps http.Server with optional TLS (file certs or ACME autocert).
type Server struct {
	http.Server

	opts Options
	log  *logger.Logger
}

type (
	Options struct {
		Tls          bool
		Cert         string
		Key          string
		Domain       string
		IdleTimeout  time.Duration
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		Logger       *logger.Logger
	}
	Option func(*Options)
)

func WithTls(cert, key, domain string) Option {
	return func(o *Options) { o.Tls, o.Cert, o.Key, o.Domain = true, cert, key, domain }
}
func WithLogger(log *logger.Logger) Option { return func(o *Options) { o.Logger = log } }

func NewServer(address string, handler http.Handler, options ...Option) *Server {
	opts := Options{
		IdleTimeout:  120 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	s := &Server{
		Server: http.Server{
			Addr:         address,
			Handler:      handler,
			IdleTimeout:  opts.IdleTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		opts: opts,
		log:  opts.Logger,
	}
	if opts.Tls && opts.Cert == "" && opts.Domain != "" {
		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(opts.Domain),
			Cache:      autocert.DirCache("certs"),
		}
		s.TLSConfig = manager.TLSConfig()
	} else if opts.Tls {
		s.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return s
}

// Run serves in the background until Stop or a listen error.
func (s *Server) Run() {
	go func() {
		s.log.Info().Msgf("http listen %v (tls=%v)", s.Addr, s.opts.Tls)
		var err error
		if s.opts.Tls {
			err = s.ListenAndServeTLS(s.opts.Cert, s.opts.Key)
		} else {
			err = s.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http server")
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error { return s.Shutdown(ctx) }
