package api

import (
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/mriscan/braintumor-go/internal/logger"
)

const (
	sessionName         = "braintumor_session"
	sessionMaxAge       = 86400 * 7 // 7 days
	lastPredictionIDKey = "last_prediction_id"
)

// createSessionKey derives a fixed size key from the configured secret.
func createSessionKey(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

// newSessionStore returns a signed and encrypted cookie store.
func newSessionStore(secret string, secure bool) sessions.Store {
	store := sessions.NewCookieStore(
		createSessionKey(secret),
		createSessionKey(secret+"encryption"),
	)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// rememberPrediction records id as the browser's latest prediction. Must run
// before the response body is written.
func (c *Controller) rememberPrediction(ctx echo.Context, id uint) {
	sess, err := c.sessions.Get(ctx.Request(), sessionName)
	if err != nil {
		// an undecodable cookie yields a fresh session, which is fine to overwrite
		c.log.Debug("discarding invalid session cookie", logger.Error(err))
	}
	sess.Values[lastPredictionIDKey] = id
	if err := sess.Save(ctx.Request(), ctx.Response()); err != nil {
		c.log.Warn("failed to save session", logger.Error(err))
	}
}

// lastPrediction returns the id stored by rememberPrediction, or 0.
func (c *Controller) lastPrediction(ctx echo.Context) uint {
	sess, err := c.sessions.Get(ctx.Request(), sessionName)
	if err != nil {
		return 0
	}
	id, _ := sess.Values[lastPredictionIDKey].(uint)
	return id
}
