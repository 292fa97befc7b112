// Package guard decides whether a protected page may be shown
package guard

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/wayfarer/cli/internal/logging"
	"github.com/wayfarer/cli/internal/models"
	"github.com/wayfarer/cli/internal/nav"
)

// Decision is the outcome of evaluating a protected page
type Decision int

const (
	// DecisionWait means the initial identity check is still running
	DecisionWait Decision = iota
	// DecisionRedirect means nobody is logged in; the operator was sent to login
	DecisionRedirect
	// DecisionRender means the protected content may be shown
	DecisionRender
)

func (d Decision) String() string {
	switch d {
	case DecisionWait:
		return "wait"
	case DecisionRedirect:
		return "redirect"
	case DecisionRender:
		return "render"
	}
	return "unknown"
}

// Sessions is what the guard reads from the session store
type Sessions interface {
	Loading() bool
	Identity() *models.Identity
	CheckOnce(ctx context.Context) *models.Identity
}

// ReturnToStore remembers the page to come back to after logging in
type ReturnToStore interface {
	SaveReturnTo(ctx context.Context, path string) error
}

// Guard gates protected pages on the session store
type Guard struct {
	sessions  Sessions
	returnTo  ReturnToStore
	navigator nav.Navigator
	logger    *zap.Logger
}

// New creates a guard. returnTo may be nil.
func New(sessions Sessions, returnTo ReturnToStore, navigator nav.Navigator, logger *zap.Logger) *Guard {
	return &Guard{
		sessions:  sessions,
		returnTo:  returnTo,
		navigator: navigator,
		logger:    logging.OrNop(logger).Named("guard"),
	}
}

// Evaluate decides without blocking. Nothing protected is rendered while the
// initial check is unresolved.
func (g *Guard) Evaluate(ctx context.Context, path string) Decision {
	if g.sessions.Loading() {
		return DecisionWait
	}
	if g.sessions.Identity() != nil {
		return DecisionRender
	}
	g.redirect(ctx, path)
	return DecisionRedirect
}

// Admit resolves the initial check if needed and then decides
func (g *Guard) Admit(ctx context.Context, path string) Decision {
	if g.sessions.Loading() {
		g.sessions.CheckOnce(ctx)
	}
	return g.Evaluate(ctx, path)
}

func (g *Guard) redirect(ctx context.Context, path string) {
	if g.returnTo != nil && path != "" {
		if err := g.returnTo.SaveReturnTo(ctx, path); err != nil {
			g.logger.Warn("failed to remember requested page", zap.String("path", path), zap.Error(err))
		}
	}
	g.logger.Info("redirecting to login", zap.String("from", path))

	var query url.Values
	if path != "" {
		query = url.Values{"from": {path}}
	}
	g.navigator.Navigate(nav.PathLogin, query)
}
