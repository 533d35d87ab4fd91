package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"smallbiznis-picks/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(NewEngine, NewHttpServer),
	fx.Invoke(Run),
)

// NewEngine returns the gin engine every HTTP route is mounted on. JSON
// numbers decode as json.Number so point amounts never pass through float64.
func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	binding.EnableDecoderUseNumber = true

	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

type Server struct {
	server *http.Server
	certs  *certReloader
}

type Params struct {
	fx.In
	Config  *config.Config
	Handler *gin.Engine
}

func NewHttpServer(p Params) (*Server, error) {
	cfg := p.Config
	srv := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Addr),
			Handler:      p.Handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}

	if cfg.TLS.Enable {
		certs, err := newCertReloader(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		if err != nil {
			zap.L().Error("failed to load TLS certificate", zap.Error(err))
			return nil, err
		}
		srv.certs = certs
		srv.server.TLSConfig = certs.TLSConfig()
	}

	return srv, nil
}

func Run(lc fx.Lifecycle, srv *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				var err error
				if srv.certs != nil {
					go srv.certs.watch()
					zap.L().Info("Starting HTTP server with tls", zap.String("addr", srv.server.Addr))
					err = srv.server.ListenAndServeTLS("", "")
				} else {
					zap.L().Info("Starting HTTP server without tls", zap.String("addr", srv.server.Addr))
					err = srv.server.ListenAndServe()
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Fatal("HTTP server exited", zap.Error(err))
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
