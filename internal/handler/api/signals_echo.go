package api

import (
	"errors"
	"time"

	models "NiftyPulse/internal/domain/models"
	domsvc "NiftyPulse/internal/domain/service"
	"NiftyPulse/internal/service/ratelimit"
	"NiftyPulse/pkg/cache"
	xhttp "NiftyPulse/pkg/http"
	xlogger "NiftyPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

const historyCacheTTL = 15 * time.Second

// SignalsEchoHandler exposes the detection core over HTTP.
type SignalsEchoHandler struct {
	logger *xlogger.Logger
	svc    domsvc.SignalService
	cache  cache.Service
	rl     *ratelimit.Limiter
}

// NewSignalsEchoHandler wires the handler. cache and rl may be nil.
func NewSignalsEchoHandler(logger *xlogger.Logger, svc domsvc.SignalService, c cache.Service, rl *ratelimit.Limiter) *SignalsEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &SignalsEchoHandler{logger: logger.With(xlogger.String("component", "api")), svc: svc, cache: c, rl: rl}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api", h.throttle)
	g.GET("/signals/active", h.ActiveSignals)
	g.GET("/signals/history", h.SignalHistory)
	g.GET("/sessions", h.Sessions)
	g.POST("/monitoring/start", h.StartMonitoring)
	g.POST("/monitoring/stop", h.StopMonitoring)
	g.GET("/monitoring/status", h.MonitoringStatus)
}

func (h *SignalsEchoHandler) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl != nil && !h.rl.Allow(c.RealIP()) {
			h.logger.Warn("api rate limited", xlogger.String("remote", c.RealIP()), xlogger.String("path", c.Path()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
		}
		return next(c)
	}
}

func (h *SignalsEchoHandler) Health(c echo.Context) error {
	st := h.svc.Status()
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":      "ok",
		"monitoring":  st.Running,
		"market_open": st.MarketOpen,
		"time":        st.Now,
	})
}

func (h *SignalsEchoHandler) ActiveSignals(c echo.Context) error {
	signals, err := h.svc.GetActiveSignals(c.Request().Context())
	if err != nil {
		h.logger.Error("active signals error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if signals == nil {
		signals = []models.Signal{}
	}
	return xhttp.ListResponse(c, signals, int64(len(signals)))
}

func (h *SignalsEchoHandler) SignalHistory(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	key := cache.GenerateKey("api", "history", req.Limit)
	var signals []models.Signal
	if h.cache != nil {
		err := h.cache.Get(ctx, key, &signals)
		switch {
		case err == nil:
			h.logger.Debug("history cache hit", xlogger.String("key", key))
			return xhttp.ListResponse(c, signals, int64(len(signals)))
		case !errors.Is(err, cache.ErrCacheMiss):
			h.logger.Warn("history cache get error", xlogger.Error(err))
		}
	}

	signals, err := h.svc.GetSignalHistory(ctx, req.Limit)
	if err != nil {
		h.logger.Error("signal history error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("signal history unavailable").WithError(err))
	}
	if signals == nil {
		signals = []models.Signal{}
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, key, signals, historyCacheTTL); err != nil {
			h.logger.Warn("history cache set error", xlogger.Error(err))
		}
	}
	return xhttp.ListResponse(c, signals, int64(len(signals)))
}

func (h *SignalsEchoHandler) Sessions(c echo.Context) error {
	sessions := h.svc.GetSessionStatus(c.Request().Context())
	if sessions == nil {
		sessions = []models.TradingSession{}
	}
	return xhttp.ListResponse(c, sessions, int64(len(sessions)))
}

func (h *SignalsEchoHandler) StartMonitoring(c echo.Context) error {
	started := h.svc.StartMonitoring()
	return xhttp.SuccessResponse(c, map[string]interface{}{"changed": started, "status": h.svc.Status()})
}

func (h *SignalsEchoHandler) StopMonitoring(c echo.Context) error {
	stopped := h.svc.StopMonitoring()
	return xhttp.SuccessResponse(c, map[string]interface{}{"changed": stopped, "status": h.svc.Status()})
}

func (h *SignalsEchoHandler) MonitoringStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Status())
}

var _ xhttp.Handler = (*SignalsEchoHandler)(nil)
