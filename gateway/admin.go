// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"oddsgate/platform/admission"
)

var errNoToken = errors.New("missing token")

// handleLogStream upgrades an authenticated admin to a live feed of audit
// records. It bypasses admission: admins are not allowlisted callers.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	addr := admission.ClientIP(r)
	requestID := r.Header.Get("X-Request-ID")

	if s.cfg.JWTSecret == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "Service Unavailable",
			"message": "Admin stream is not configured",
		})
		return
	}
	subject, err := verifyAdminToken(bearerToken(r), []byte(s.cfg.JWTSecret))
	if err != nil {
		s.log.Warn(addr, requestID, "admin stream rejected", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(addr, requestID, "admin stream upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	s.log.Info(addr, requestID, "admin observer connected", map[string]interface{}{
		"subject":   subject,
		"observers": s.hub.Count() + 1,
	})
	s.hub.Serve(conn)
	s.log.Info(addr, requestID, "admin observer disconnected", map[string]interface{}{"subject": subject})
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// verifyAdminToken checks an HS256 token and returns its subject.
func verifyAdminToken(tokenString string, secret []byte) (string, error) {
	if tokenString == "" {
		return "", errNoToken
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	if id, ok := claims["id"].(string); ok {
		return id, nil
	}
	return "", nil
}
