package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"gorm.io/gorm"
)

type ctxKey string

const (
	userIDKey   ctxKey = "user_id"
	coupleIDKey ctxKey = "couple_id"
)

func UserIDFromContext(ctx context.Context) (uint64, bool) {
	v := ctx.Value(userIDKey)
	id, ok := v.(uint64)
	return id, ok
}

func CoupleIDFromContext(ctx context.Context) (uint64, bool) {
	v := ctx.Value(coupleIDKey)
	id, ok := v.(uint64)
	return id, ok
}

// WithIdentity stores the caller on ctx the way the middleware does.
func WithIdentity(ctx context.Context, userID, coupleID uint64) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, coupleIDKey, coupleID)
}

func RequireAuth(jwtSvc *JWT) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(h, "Bearer ")

			uid, err := jwtSvc.Verify(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCouple resolves the authenticated user's current couple on every
// request, so a user who just joined a partner sees the shared account.
func RequireCouple(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			var u User
			if err := db.WithContext(r.Context()).Select("id", "couple_id").Where("id = ?", uid).First(&u).Error; err != nil {
				slog.Warn("couple lookup failed", "user_id", uid, "error", err)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), u.ID, u.CoupleID)))
		})
	}
}
