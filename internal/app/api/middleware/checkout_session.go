package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/logctx"
	"github.com/fatflowers/cashier-stripe/pkg/response"
)

// HeaderCheckoutSession carries the session token for clients without cookies.
const HeaderCheckoutSession = "X-Checkout-Session"

const keyCheckoutSession = "checkoutSession"

// CheckoutSessionMiddleware resolves the buyer's checkout session from the
// session cookie or header, creating one when needed, and hands the token back
// in both.
func CheckoutSessionMiddleware(m *session.Manager, cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	cookieName := cfg.Checkout.SessionCookieName
	if cookieName == "" {
		cookieName = "checkout_session"
	}
	maxAge := int(cfg.Checkout.SessionTTL.Seconds())
	return func(c *gin.Context) {
		token := c.GetHeader(HeaderCheckoutSession)
		if token == "" {
			token, _ = c.Cookie(cookieName)
		}
		sess, issued, err := m.Resolve(c.Request.Context(), token)
		if err != nil {
			logctx.FromGin(c, log).Errorw("checkout_session_resolve_failed", "error", err)
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		SetCheckoutSession(c, sess)
		if l, ok := c.Get(logctx.KeyLogger); ok {
			if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
				setLogger(c, lg.With("session_id", sess.ID))
			}
		}
		if issued != token {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookieName, issued, maxAge, "/", "", cfg.Checkout.SecureCookie, true)
		}
		c.Header(HeaderCheckoutSession, issued)
		c.Next()
	}
}

// SetCheckoutSession makes s the checkout session of the request.
func SetCheckoutSession(c *gin.Context, s *session.Session) {
	c.Set(keyCheckoutSession, s)
	c.Set(logctx.KeySessionID, s.ID)
}

// CheckoutSession returns the session resolved by CheckoutSessionMiddleware.
func CheckoutSession(c *gin.Context) *session.Session {
	v, ok := c.Get(keyCheckoutSession)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Session)
	return s
}
