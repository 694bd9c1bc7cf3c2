package middleware

import (
	"context"
	"net/http"

	"github.com/kstarkov/craftmarket-system/internal/model"
)

// RoleProvider возвращает роль пользователя по его идентификатору.
type RoleProvider interface {
	GetUserRole(ctx context.Context, userID int64) (model.Role, error)
}

// RequireAdmin пропускает только запросы пользователей с ролью admin.
// Применяется после AuthMiddleware: идентификатор берётся из контекста.
func RequireAdmin(roles RoleProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserIDFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			role, err := roles.GetUserRole(r.Context(), userID)
			if err != nil || role != model.RoleAdmin {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
