package api

import (
	"errors"
	"net/http"

	"github.com/flowviz/flowviz/internal/auth"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Login handles POST /api/v1/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAndValidate[auth.LoginRequest](w, r)
	if !ok {
		return
	}

	response, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			sendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials", nil)
			return
		}
		sendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", nil)
		return
	}

	sendJSON(w, http.StatusOK, response)
}
