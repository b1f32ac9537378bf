package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/soup/api/transport"
	"github.com/fastygo/soup/domain"
	"github.com/fastygo/soup/pkg/httpcontext"
)

// Middleware wraps a fasthttp handler.
type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

// JWTAuth accepts HMAC-signed bearer tokens and forwards the caller identity
// in the X-User-ID header. The identity is read from the user_id claim, then
// from sub.
func JWTAuth(secret string, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			// Never trust an identity supplied by the client.
			ctx.Request.Header.Del(httpcontext.HeaderUserID)

			tokenString := extractToken(ctx)
			if tokenString == "" {
				unauthorized(ctx, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenString, claims, keyFunc)
			if err != nil || !token.Valid {
				logger.Debug("invalid jwt token", zap.Error(err))
				unauthorized(ctx, "invalid token")
				return
			}

			userID := subject(claims)
			if userID == "" {
				unauthorized(ctx, "token carries no user")
				return
			}
			ctx.Request.Header.Set(httpcontext.HeaderUserID, userID)
			next(ctx)
		}
	}
}

func subject(claims jwt.MapClaims) string {
	for _, key := range []string{"user_id", "sub"} {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := strings.TrimSpace(string(ctx.Request.Header.Peek("Authorization")))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func unauthorized(ctx *fasthttp.RequestCtx, message string) {
	writeError(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), message, nil))
}

func writeError(ctx *fasthttp.RequestCtx, status int, env transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBodyString(env.String())
}
