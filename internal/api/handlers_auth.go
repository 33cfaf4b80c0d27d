/**
 * @description
 * This file contains the HTTP handlers for the authentication endpoints:
 * login, token refresh and logout. Login serves both admins and clients; a
 * client's first login additionally requires the one-time verification code.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain: Service logic and models.
 */

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/banqueapi/compte-service/internal/app"
	"github.com/banqueapi/compte-service/internal/domain"
)

// Handlers holds the application service that handlers will use, the health
// checks of the backing stores, and the debug flag.
type Handlers struct {
	service *app.Service
	health  HealthChecks
	debug   bool
}

// NewHandlers creates the handler set backed by the given service.
func NewHandlers(service *app.Service, health HealthChecks, debug bool) *Handlers {
	return &Handlers{service: service, health: health, debug: debug}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type loginResponse struct {
	User map[string]interface{} `json:"user"`
	tokenResponse
}

// LoginHandler handles POST /v1/auth/login.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, CodeValidationError, "Les données fournies sont invalides",
			map[string][]string{"body": {"Le corps de la requête doit être un JSON valide."}})
		return
	}

	fe := fieldErrors{}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		fe.add("email", "L'adresse email est obligatoire.")
	} else if !validEmail(req.Email) {
		fe.add("email", "L'adresse email doit être valide.")
	}
	if req.Password == "" {
		fe.add("password", "Le mot de passe est obligatoire.")
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code != "" && len(req.Code) != 6 {
		fe.add("code", "Le code de vérification doit contenir 6 caractères.")
	}
	if fe.respond(w) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, req.Code)
	if err != nil {
		h.respondServiceError(w, err, CodeUnauthenticated, "Erreur lors de la connexion")
		return
	}

	user := map[string]interface{}{
		"id":    result.Principal.ID.String(),
		"email": result.Principal.Email,
		"role":  string(result.Principal.Role),
	}
	if result.Principal.Role == domain.RoleClient && result.Client != nil {
		user["titulaire"] = result.Client.Titulaire
		user["telephone"] = result.Client.Telephone
	} else if result.Admin != nil {
		user["name"] = result.Admin.Name
	}

	respondData(w, http.StatusOK, "Connexion réussie", loginResponse{
		User: user,
		tokenResponse: tokenResponse{
			AccessToken: result.AccessToken,
			TokenType:   "Bearer",
			ExpiresIn:   result.ExpiresIn,
		},
	})
}

// RefreshHandler handles POST /v1/auth/refresh. The current token is revoked
// before the replacement is issued.
func (h *Handlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
		return
	}

	token, expiresIn, err := h.service.Refresh(r.Context(), principal)
	if err != nil {
		h.respondServiceError(w, err, CodeUnauthenticated, "Erreur lors du rafraîchissement du jeton")
		return
	}

	respondData(w, http.StatusOK, "Jeton rafraîchi avec succès", tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	})
}

// LogoutHandler handles POST /v1/auth/logout.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
		return
	}

	if err := h.service.Logout(r.Context(), principal); err != nil {
		h.respondServiceError(w, err, CodeUnauthenticated, "Erreur lors de la déconnexion")
		return
	}
	respondData(w, http.StatusOK, "Déconnexion réussie", nil)
}
