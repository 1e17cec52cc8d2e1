// Package metrics owns the Prometheus registry of the adjacency server and
// binds the run, graph and HTTP series to it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/region-adjacency/internal/core/observability"
)

const DefaultPath = "/metrics"

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Enabled bool
	Addr    string
	Path    string
	Build   BuildInfo
}

type Provider struct {
	cfg Config
	reg *prometheus.Registry
}

// Init builds a private registry. When cfg.Enabled is set it carries the Go
// and process collectors, adjacency_build_info and every observability series;
// otherwise observability is switched off and Handler answers 404.
func Init(cfg Config) *Provider {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	reg := prometheus.NewRegistry()
	p := &Provider{cfg: cfg, reg: reg}
	if !cfg.Enabled {
		observability.Init(nil, false)
		return p
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adjacency_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "branch", "build_date"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.Branch, v.BuildDate).Set(1)

	observability.Init(reg, true)
	return p
}

func (p *Provider) Enabled() bool { return p.cfg.Enabled }

func (p *Provider) Path() string { return p.cfg.Path }

// SeparateListener reports whether metrics get their own listener instead of
// a route on the main server at addr.
func (p *Provider) SeparateListener(addr string) bool {
	return p.cfg.Enabled && p.cfg.Addr != "" && p.cfg.Addr != addr
}

func (p *Provider) Addr() string { return p.cfg.Addr }

func (p *Provider) Handler() http.Handler {
	if !p.cfg.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}
