package handlers

import (
	"context"

	"github.com/felo/inbox-library/internal/parser"
	"github.com/felo/inbox-library/internal/router"
	"github.com/sirupsen/logrus"
)

// Router is the inbound router the handlers feed
type Router interface {
	Route(ctx context.Context, msg *parser.InboundMessage) router.Outcome
	Fallback(ctx context.Context, msg *parser.InboundMessage, cause error) router.Outcome
}

// Pinger reports store health; *db.DB implements it
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	router   Router
	store    Pinger
	boundary string
	logger   *logrus.Logger
}

// New creates a new Handlers instance. An empty boundary means the boundary
// is taken from each request's Content-Type.
func New(r Router, store Pinger, boundary string, logger *logrus.Logger) *Handlers {
	return &Handlers{
		router:   r,
		store:    store,
		boundary: boundary,
		logger:   logger,
	}
}
