package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

type ctxKey struct{}

var userIDKey ctxKey

// UserLookup confirms that a token's user still exists.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// JWTVerifier checks HS256 bearer tokens and resolves them to a user id.
type JWTVerifier struct {
	secret []byte
	users  UserLookup
	logger *slog.Logger
}

func NewJWTVerifier(secret string, users UserLookup, logger *slog.Logger) *JWTVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &JWTVerifier{secret: []byte(secret), users: users, logger: logger.With("component", "auth")}
}

// IssueToken signs a token carrying userID in the user_id claim.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"sub":     userID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify returns the user id of a valid token whose user exists.
func (v *JWTVerifier) Verify(ctx context.Context, tokenStr string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", core.ErrUnauthenticated)
		}
		return "", fmt.Errorf("%w: invalid token", core.ErrUnauthenticated)
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return "", fmt.Errorf("%w: invalid token claims", core.ErrUnauthenticated)
	}

	if _, err := v.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", fmt.Errorf("%w: unknown user", core.ErrUnauthenticated)
		}
		return "", err
	}
	return userID, nil
}

// Middleware validates the Authorization header and attaches the user id to the request context.
func (v *JWTVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			unauthorized(w, "missing or invalid token")
			return
		}

		userID, err := v.Verify(r.Context(), strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			if !errors.Is(err, core.ErrUnauthenticated) {
				v.logger.Error("token verification failed", "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "internal error", "kind": core.Kind(err)})
				return
			}
			unauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": msg, "kind": "unauthenticated"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
