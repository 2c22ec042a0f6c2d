/**
 * @description
 * This file contains custom middleware for the HTTP router. The commission-service
 * sits behind the platform gateway, which issues short-lived HS256 tokens carrying
 * the caller's internal user id and role. The middleware validates those tokens
 * and stashes the caller identity on the request context for handlers.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: Token parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// callerContextKey is a custom type for context keys to avoid collisions.
type callerContextKey string

const (
	callerIDKey   callerContextKey = "callerID"
	callerRoleKey callerContextKey = "callerRole"
)

// Roles the platform gateway mints into tokens. Providers and institution
// admins can only read their own resources; platform admins can do everything.
const (
	RoleAdmin       = "admin"
	RoleInstitution = "institution"
	RoleProvider    = "provider"
)

// AuthMiddleware creates a middleware that validates platform-issued JWTs and
// places the caller's id and role on the request context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			sub, ok := claims["sub"].(string)
			if !ok {
				http.Error(w, "Caller ID not found in token", http.StatusUnauthorized)
				return
			}
			callerID, err := uuid.Parse(sub)
			if err != nil {
				http.Error(w, "Invalid caller ID in token", http.StatusUnauthorized)
				return
			}

			role, ok := claims["role"].(string)
			if !ok || role == "" {
				http.Error(w, "Role not found in token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), callerIDKey, callerID)
			ctx = context.WithValue(ctx, callerRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCallerID retrieves the authenticated caller's internal user id from the
// request context.
func GetCallerID(ctx context.Context) (uuid.UUID, bool) {
	callerID, ok := ctx.Value(callerIDKey).(uuid.UUID)
	return callerID, ok
}

// GetCallerRole retrieves the authenticated caller's role from the request
// context.
func GetCallerRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(callerRoleKey).(string)
	return role, ok
}
