package server

import (
	"context"
	"herald_bot/coord"
	"herald_bot/dto"
	"herald_bot/logic"
	"herald_bot/platform"
	"herald_bot/shared"
	"net/http"
	"time"
)

const healthCheckTimeout = 5 * time.Second

type healthHandlerGroup struct {
	logger     shared.ILogger
	plat       platform.IPlatform
	lock       coord.ILock
	supervisor logic.ISupervisor
}

func NewHealthHandlerGroup(
	logger shared.ILogger,
	plat platform.IPlatform,
	lock coord.ILock,
	supervisor logic.ISupervisor,
) IHandlerGroup {
	res := healthHandlerGroup{
		logger:     logger,
		plat:       plat,
		lock:       lock,
		supervisor: supervisor,
	}
	return &res
}

func (hg *healthHandlerGroup) Prefix() string {
	return "/"
}

func (hg *healthHandlerGroup) GroupDefs() []handlerDef {
	return []handlerDef{
		{"GET", "/health", func(w http.ResponseWriter, r *http.Request) { hg.getHealth(w, r) }},
	}
}

func (hg *healthHandlerGroup) AuthMW() func(next http.Handler) http.Handler {
	return emptyMW
}

func (hg *healthHandlerGroup) getHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := dto.Health{
		Status:       "ok",
		Platform:     hg.plat.HealthCheck(ctx),
		Coordination: hg.lock.Available(ctx),
		Workers:      hg.supervisor.Running(),
	}
	code := http.StatusOK
	if !resp.Platform || !resp.Coordination {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
		hg.logger.Warnf("Health check degraded: platform=%v coordination=%v", resp.Platform, resp.Coordination)
	}
	writeJsonResponseWithStatus(hg.logger, w, resp, code)
}
