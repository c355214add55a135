package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthCookieName — имя cookie с JWT.
const AuthCookieName = "auth_token"

// tokenTTL — срок жизни выданного токена.
const tokenTTL = 24 * time.Hour

type contextKey string

const userIDKey contextKey = "user_id"

type claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// BuildJWTString подписывает токен с user_id.
func BuildJWTString(userID int64, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
		UserID: userID,
	})
	return token.SignedString([]byte(secret))
}

// SetLoginCookie выдаёт auth cookie c подписанным JWT.
func SetLoginCookie(w http.ResponseWriter, userID int64, secret string) error {
	value, err := BuildJWTString(userID, secret)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(tokenTTL.Seconds()),
	})
	return nil
}

// WithAuth разбирает auth cookie и кладёт user_id в контекст запроса.
// Отсутствие или невалидность токена не прерывает запрос: хендлеры сами
// решают, требуется ли им аутентификация.
func WithAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AuthCookieName)
			if err == nil && cookie.Value != "" {
				var c claims
				token, err := jwt.ParseWithClaims(cookie.Value, &c, func(t *jwt.Token) (interface{}, error) {
					return []byte(secret), nil
				})
				if err == nil && token.Valid {
					r = r.WithContext(context.WithValue(r.Context(), userIDKey, c.UserID))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserIDFromContext возвращает user_id, положенный WithAuth.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
