package health

import (
	"context"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/resizr/resizr/internal/api/respond"
)

// dbPinger checks database connectivity.
type dbPinger interface {
	PingContext(ctx context.Context) error
}

// broker checks message queue connectivity.
type broker interface {
	Ping() error
}

// Handler reports the health of the service and its dependencies.
type Handler struct {
	db     dbPinger
	broker broker
}

// NewHandler creates a new health Handler.
func NewHandler(db dbPinger, b broker) *Handler {
	return &Handler{db: db, broker: b}
}

// Response is the health check body.
type Response struct {
	Status   string `json:"status"`
	DB       string `json:"db"`
	RabbitMQ string `json:"rabbitmq"`
}

// Check pings the database and the broker and reports per-dependency state.
// Any failing dependency turns the overall status unhealthy with a 503.
func (h *Handler) Check(c *ginext.Context) {
	resp := Response{
		Status:   "healthy",
		DB:       "connected",
		RabbitMQ: "connected",
	}
	code := http.StatusOK

	if err := h.db.PingContext(c.Request.Context()); err != nil {
		zlog.Logger.Err(err).Msg("health: database ping failed")
		resp.DB = "disconnected"
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	if err := h.broker.Ping(); err != nil {
		zlog.Logger.Err(err).Msg("health: rabbitmq ping failed")
		resp.RabbitMQ = "disconnected"
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	respond.JSON(c, code, resp)
}
