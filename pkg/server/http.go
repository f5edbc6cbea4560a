package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"creatorpay/pkg/config"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(NewHttpServer),
	fx.Invoke(Run),
)

type Server struct {
	server   *http.Server
	tlsMutex sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
}

type Params struct {
	fx.In
	Config  *config.Config
	Handler http.Handler
}

func NewHttpServer(p Params) *Server {
	cfg := p.Config
	srv := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Addr),
			Handler:      p.Handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		certPath: cfg.TLS.CertPath,
		keyPath:  cfg.TLS.KeyPath,
	}

	if cfg.TLS.Enable {
		srv.reloadCert() // initial load
		go srv.watchTLSFiles()

		srv.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			GetCertificate: func(info *tls.ClientHelloInfo) (*tls.Certificate, error) {
				srv.tlsMutex.RLock()
				defer srv.tlsMutex.RUnlock()

				if srv.cert == nil {
					return nil, fmt.Errorf("no TLS cert loaded")
				}

				return srv.cert, nil
			},
		}
	}

	return srv
}

func (s *Server) reloadCert() {
	cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
	if err != nil {
		zap.L().Error("failed to reload TLS cert", zap.Error(err))
		return
	}
	s.tlsMutex.Lock()
	s.cert = &cert
	s.tlsMutex.Unlock()
	zap.L().Info("TLS certificate reloaded")
}

// watchTLSFiles reloads the certificate whenever the cert or key file changes.
func (s *Server) watchTLSFiles() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zap.L().Error("failed to create fsnotify watcher", zap.Error(err))
		return
	}
	defer watcher.Close()

	_ = watcher.Add(s.certPath)
	_ = watcher.Add(s.keyPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				s.reloadCert()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("watcher error", zap.Error(err))
		}
	}
}

func Run(lc fx.Lifecycle, srv *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			serve := srv.server.ListenAndServe
			if srv.server.TLSConfig != nil {
				zap.L().Info("Starting HTTP server with tls", zap.String("addr", srv.server.Addr))
				// certificates come from GetCertificate
				serve = func() error { return srv.server.ListenAndServeTLS("", "") }
			} else {
				zap.L().Info("Starting HTTP server", zap.String("addr", srv.server.Addr))
			}

			go func() {
				if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("HTTP server exited", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("Shutting down HTTP server gracefully...")
			return srv.server.Shutdown(ctx)
		},
	})
}
