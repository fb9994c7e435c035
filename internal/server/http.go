package server

import (
	"net/http"

	"imagescan/internal/conf"
	"imagescan/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer serves health and metrics.
func NewHTTPServer(c *conf.Server, logger log.Logger) *khttp.Server {
	opts := []khttp.ServerOption{
		khttp.Middleware(recovery.Recovery()),
	}
	if c.HTTP.Network != "" {
		opts = append(opts, khttp.Network(c.HTTP.Network))
	}
	if c.HTTP.Addr != "" {
		opts = append(opts, khttp.Address(c.HTTP.Addr))
	}
	if d := c.HTTP.Timeout.AsDuration(); d > 0 {
		opts = append(opts, khttp.Timeout(d))
	}
	srv := khttp.NewServer(opts...)
	srv.Handle("/metrics", metrics.Handler())
	srv.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	log.NewHelper(logger).Infof("[http] health and metrics on %s", c.HTTP.Addr)
	return srv
}
