/**
 * @description
 * This file defines the JSON response envelope shared by every endpoint, the
 * error-code taxonomy, and the mapping from service errors to HTTP statuses.
 * All responses carry {success, message, data, error}; list responses add
 * pagination metadata and navigation links.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For error mapping and models.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/banqueapi/compte-service/internal/app"
	"github.com/banqueapi/compte-service/internal/domain"
	"github.com/banqueapi/compte-service/internal/store"
)

// Error codes returned in the envelope's error.code field.
const (
	CodeValidationError         = "VALIDATION_ERROR"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeCodeRequired            = "CODE_REQUIRED"
	CodeUnauthenticated         = "UNAUTHENTICATED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeAccessDenied            = "ACCESS_DENIED"
	CodeCompteNotFound          = "COMPTE_NOT_FOUND"
	CodeInvalidOperation        = "INVALID_OPERATION"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeCreationFailed          = "CREATION_FAILED"
	CodeUpdateFailed            = "UPDATE_FAILED"
	CodeDeleteFailed            = "DELETE_FAILED"
	CodeBlockFailed             = "BLOCK_FAILED"
	CodeUnblockFailed           = "UNBLOCK_FAILED"
)

// apiError is the error object nested in a failed envelope.
type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// pagination describes the page of a list response.
type pagination struct {
	CurrentPage  int  `json:"currentPage"`
	TotalPages   int  `json:"totalPages"`
	TotalItems   int  `json:"totalItems"`
	ItemsPerPage int  `json:"itemsPerPage"`
	HasNext      bool `json:"hasNext"`
	HasPrevious  bool `json:"hasPrevious"`
}

// links holds the navigation URLs of a list response. Next and Prev are null
// at the edges of the collection.
type links struct {
	Self  string  `json:"self"`
	First string  `json:"first"`
	Last  string  `json:"last"`
	Next  *string `json:"next"`
	Prev  *string `json:"prev"`
}

type envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
	Links      *links      `json:"links,omitempty"`
	Error      *apiError   `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"encoding response\" err=%v", err)
	}
}

func respondData(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func respondList(w http.ResponseWriter, data interface{}, page *pagination, nav *links) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: page, Links: nav})
}

func respondError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	writeJSON(w, status, envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}})
}

// respondServiceError maps service and store errors to HTTP statuses. The
// fallback pair covers unexpected failures of the operation at hand, for
// example CREATION_FAILED for POST /comptes. In debug mode the underlying
// error text travels in the 500 envelope's details.
func (h *Handlers) respondServiceError(w http.ResponseWriter, err error, fallbackCode, fallbackMessage string) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Email ou mot de passe incorrect", nil)
	case errors.Is(err, app.ErrCodeRequired):
		respondError(w, http.StatusForbidden, CodeCodeRequired, "Le code de vérification est requis pour la première connexion", nil)
	case errors.Is(err, app.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
	case errors.Is(err, app.ErrAccessDenied):
		respondError(w, http.StatusForbidden, CodeAccessDenied, "Vous n'avez pas accès à ce compte", nil)
	case errors.Is(err, store.ErrCompteNotFound):
		respondError(w, http.StatusNotFound, CodeCompteNotFound, "Compte non trouvé", nil)
	case errors.Is(err, store.ErrClientNotFound):
		respondError(w, http.StatusUnprocessableEntity, CodeValidationError, "Les données fournies sont invalides",
			map[string][]string{"client.id": {"Le client sélectionné n'existe pas."}})
	case errors.Is(err, store.ErrDuplicateClient):
		respondError(w, http.StatusUnprocessableEntity, CodeValidationError, "Les données fournies sont invalides",
			map[string][]string{"client.email": {"Cette adresse email est déjà utilisée."}})
	case errors.Is(err, domain.ErrInvalidOperation):
		respondError(w, http.StatusBadRequest, CodeInvalidOperation, "Cette opération n'est pas autorisée pour ce compte", nil)
	default:
		log.Printf("level=error component=api code=%s err=%v", fallbackCode, err)
		var details interface{}
		if h.debug {
			details = err.Error()
		}
		respondError(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, details)
	}
}

// Wire representation of a compte. The version counter and last-modified
// timestamp travel in a metadata object rather than as top-level fields.
type compteMetadata struct {
	DerniereModification time.Time `json:"derniereModification"`
	Version              int       `json:"version"`
}

type compteResponse struct {
	ID               string          `json:"id"`
	NumeroCompte     string          `json:"numeroCompte"`
	Titulaire        string          `json:"titulaire"`
	Type             string          `json:"type"`
	Solde            float64         `json:"solde"`
	Devise           string          `json:"devise"`
	DateCreation     time.Time       `json:"dateCreation"`
	Statut           string          `json:"statut"`
	MotifBlocage     *string         `json:"motifBlocage"`
	DateDebutBlocage *time.Time      `json:"dateDebutBlocage"`
	DateFinBlocage   *time.Time      `json:"dateFinBlocage"`
	Metadata         compteMetadata  `json:"metadata"`
}

func toCompteResponse(c *domain.Compte) compteResponse {
	return compteResponse{
		ID:               c.ID.String(),
		NumeroCompte:     c.NumeroCompte,
		Titulaire:        c.Titulaire,
		Type:             string(c.Type),
		Solde:            c.Solde,
		Devise:           c.Devise,
		DateCreation:     c.CreatedAt,
		Statut:           string(c.Statut),
		MotifBlocage:     c.MotifBlocage,
		DateDebutBlocage: c.DateDebutBlocage,
		DateFinBlocage:   c.DateFinBlocage,
		Metadata: compteMetadata{
			DerniereModification: c.DerniereModification,
			Version:              c.Version,
		},
	}
}

// buildLinks assembles the navigation URLs for a list response from the
// request path and the filter that produced the page.
func buildLinks(r *http.Request, filter domain.CompteFilter, totalPages int) *links {
	pageURL := func(page int) string {
		q := r.URL.Query()
		q.Set("page", fmt.Sprintf("%d", page))
		q.Set("limit", fmt.Sprintf("%d", filter.Limit))
		return r.URL.Path + "?" + q.Encode()
	}
	if totalPages < 1 {
		totalPages = 1
	}

	nav := &links{
		Self:  pageURL(filter.Page),
		First: pageURL(1),
		Last:  pageURL(totalPages),
	}
	if filter.Page < totalPages {
		next := pageURL(filter.Page + 1)
		nav.Next = &next
	}
	if filter.Page > 1 {
		prev := pageURL(filter.Page - 1)
		nav.Prev = &prev
	}
	return nav
}
