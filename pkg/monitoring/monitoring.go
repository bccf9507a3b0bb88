package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/liveclass/liveclass/pkg/config"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/network/httpx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitoring is the metrics/pprof side server.
type Monitoring struct {
	conf   config.Monitoring
	server *httpx.Server
	log    *logger.Logger
}

func IsEnabled(conf config.Monitoring) bool { return conf.MetricEnabled || conf.ProfilingEnabled }

func New(conf config.Monitoring, log *logger.Logger) *Monitoring {
	mux := http.NewServeMux()
	if conf.ProfilingEnabled {
		prefix := conf.URLPrefix + "/debug/pprof"
		mux.HandleFunc(prefix+"/", pprof.Index)
		mux.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
		mux.HandleFunc(prefix+"/profile", pprof.Profile)
		mux.HandleFunc(prefix+"/symbol", pprof.Symbol)
		mux.HandleFunc(prefix+"/trace", pprof.Trace)
		for _, p := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			mux.Handle(prefix+"/"+p, pprof.Handler(p))
		}
	}
	if conf.MetricEnabled {
		mux.Handle(conf.URLPrefix+"/metrics", promhttp.Handler())
	}
	server := httpx.NewServer(fmt.Sprintf(":%d", conf.Port), mux, httpx.WithLogger(log))
	return &Monitoring{conf: conf, server: server, log: log}
}

func (m *Monitoring) Run() {
	m.log.Info().Msgf("monitoring on :%d%s", m.conf.Port, m.conf.URLPrefix)
	m.server.Run()
}

func (m *Monitoring) Stop(ctx context.Context) error { return m.server.Stop(ctx) }
