package middleware

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/marianozunino/bucket/internal/access"
)

const actorContextKey = "bucket.actor"

// actorClaims is the token shape the identity source issues: a subject
// plus the capability names granted to it.
type actorClaims struct {
	Capabilities []string `json:"caps"`
	jwt.RegisteredClaims
}

// Auth resolves the requesting actor from a bearer token. The engine
// only ever sees the resulting (id, capability set) facts; requests
// without a valid token proceed as the anonymous actor.
func Auth(secret string, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := access.Anonymous

			if token := bearerToken(c); token != "" && secret != "" {
				parsed, err := parseActor(token, secret)
				if err != nil {
					logger.Warn("rejected bearer token",
						zap.String("ip", c.RealIP()),
						zap.Error(err),
					)
				} else {
					actor = parsed
				}
			}

			c.Set(actorContextKey, actor)
			return next(c)
		}
	}
}

// ActorFrom returns the actor resolved by Auth, or Anonymous.
func ActorFrom(c echo.Context) access.Actor {
	if actor, ok := c.Get(actorContextKey).(access.Actor); ok {
		return actor
	}
	return access.Anonymous
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func parseActor(token, secret string) (access.Actor, error) {
	var claims actorClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return access.Actor{}, err
	}
	if claims.Subject == "" {
		return access.Actor{}, fmt.Errorf("token has no subject")
	}

	return access.Actor{
		ID:   claims.Subject,
		Caps: access.NewCapabilitySet(claims.Capabilities...),
	}, nil
}
