package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"herald_bot/logic"
	"herald_bot/shared"
	"net/http"
)

type metricsHandlerGroup struct {
	cfg             *shared.Config
	logger          shared.ILogger
	metrics         logic.IMetrics
	promHttpHandler http.Handler
}

func NewMetricsHandlerGroup(
	cfg *shared.Config,
	logger shared.ILogger,
	metrics logic.IMetrics,
) IHandlerGroup {
	res := metricsHandlerGroup{
		cfg:             cfg,
		logger:          logger,
		metrics:         metrics,
		promHttpHandler: promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{}),
	}
	return &res
}

func (hg *metricsHandlerGroup) Prefix() string {
	return "/"
}

func (hg *metricsHandlerGroup) GroupDefs() []handlerDef {
	return []handlerDef{
		{"GET", "/metrics", func(w http.ResponseWriter, r *http.Request) { hg.getMetrics(w, r) }},
	}
}

// Scrapers sit inside the deployment's network
func (hg *metricsHandlerGroup) AuthMW() func(next http.Handler) http.Handler {
	return emptyMW
}

func (hg *metricsHandlerGroup) getMetrics(w http.ResponseWriter, r *http.Request) {
	hg.logger.Debugf("Handling metrics GET: %s", r.URL.Path)
	hg.promHttpHandler.ServeHTTP(w, r)
}
