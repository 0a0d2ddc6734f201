package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/tool"
)

const tokenIssuer = "cashier-stripe"

var ErrInvalidToken = errors.New("invalid session token")

// TokenIssuer signs session ids into short lived HS256 tokens handed to the buyer.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
}

func NewTokenIssuer(cfg *config.Config, log *zap.SugaredLogger) (*TokenIssuer, error) {
	key := cfg.Checkout.SessionSigningKey
	if key == "" {
		if cfg.Env == config.EnvProd {
			return nil, fmt.Errorf("checkout.session_signing_key is required in prod")
		}
		// Tokens issued with a random key do not survive a restart.
		key = tool.GenerateToken(32)
		log.Warnw("session signing key not configured, using an ephemeral key")
	}
	return &TokenIssuer{key: []byte(key), ttl: cfg.Checkout.SessionTTL}, nil
}

// Issue returns a token naming sessionID.
func (t *TokenIssuer) Issue(sessionID string) (string, error) {
	now := time.Now()
	claims := jwt.StandardClaims{
		Id:        sessionID,
		Issuer:    tokenIssuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(t.ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse validates token and returns the session id it names.
func (t *TokenIssuer) Parse(token string) (string, error) {
	claims := &jwt.StandardClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tk.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Issuer != tokenIssuer || claims.Id == "" {
		return "", ErrInvalidToken
	}
	return claims.Id, nil
}

// Manager resolves the session of a request from its token.
type Manager struct {
	store  Store
	tokens *TokenIssuer
	ttl    time.Duration
	log    *zap.SugaredLogger
}

func NewManager(store Store, tokens *TokenIssuer, cfg *config.Config, log *zap.SugaredLogger) *Manager {
	return &Manager{store: store, tokens: tokens, ttl: cfg.Checkout.SessionTTL, log: log}
}

// Resolve loads the session named by token. A missing, invalid or expired
// token yields a fresh session; the returned token is the one to hand back.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, string, error) {
	if token != "" {
		id, err := m.tokens.Parse(token)
		if err == nil {
			s, err := m.store.Load(ctx, id)
			if err != nil {
				return nil, "", err
			}
			if s != nil {
				return s, token, nil
			}
		} else {
			m.log.Debugw("session_token_rejected", "error", err)
		}
	}
	s := New(tool.GenerateUUIDV7(), m.ttl)
	if err := m.store.Save(ctx, s); err != nil {
		return nil, "", err
	}
	issued, err := m.tokens.Issue(s.ID)
	if err != nil {
		return nil, "", err
	}
	return s, issued, nil
}

// Store exposes the underlying session store.
func (m *Manager) Store() Store { return m.store }
