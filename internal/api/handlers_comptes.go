/**
 * @description
 * This file contains the HTTP handlers for the compte endpoints. Handlers
 * parse and validate requests, call the application service, and write the
 * response envelope. Access control and lifecycle rules live in the service
 * and domain layers; only wire concerns live here.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/google/uuid: Compte identifier parsing.
 * - internal/app, internal/domain: Service logic and models.
 */

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/banqueapi/compte-service/internal/app"
	"github.com/banqueapi/compte-service/internal/domain"
)

// compteID parses the {compteId} URL parameter. An unparseable id behaves
// like a missing compte.
func compteID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "compteId"))
	if err != nil {
		respondError(w, http.StatusNotFound, CodeCompteNotFound, "Compte non trouvé", nil)
		return uuid.Nil, false
	}
	return id, true
}

// ListComptesHandler handles GET /v1/comptes. Admins see every account,
// clients only their own.
func (h *Handlers) ListComptesHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
		return
	}

	fe := fieldErrors{}
	filter := parseListFilter(r, fe)
	if fe.respond(w) {
		return
	}

	page, err := h.service.ListComptes(r.Context(), principal, filter)
	if err != nil {
		h.respondServiceError(w, err, CodeUpdateFailed, "Erreur lors de la récupération des comptes")
		return
	}

	comptes := make([]compteResponse, 0, len(page.Comptes))
	for i := range page.Comptes {
		comptes = append(comptes, toCompteResponse(&page.Comptes[i]))
	}
	totalPages := page.TotalPages(filter.Limit)
	respondList(w, comptes, &pagination{
		CurrentPage:  filter.Page,
		TotalPages:   totalPages,
		TotalItems:   page.TotalItems,
		ItemsPerPage: filter.Limit,
		HasNext:      filter.Page < totalPages,
		HasPrevious:  filter.Page > 1,
	}, buildLinks(r, filter, totalPages))
}

// GetCompteHandler handles GET /v1/comptes/{compteId}.
func (h *Handlers) GetCompteHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
		return
	}
	id, ok := compteID(w, r)
	if !ok {
		return
	}

	compte, err := h.service.GetCompte(r.Context(), principal, id)
	if err != nil {
		h.respondServiceError(w, err, CodeUpdateFailed, "Erreur lors de la récupération du compte")
		return
	}
	respondData(w, http.StatusOK, "", toCompteResponse(compte))
}

type createClientRequest struct {
	ID        *string `json:"id"`
	Titulaire string  `json:"titulaire"`
	Email     string  `json:"email"`
	Telephone string  `json:"telephone"`
	Adresse   *string `json:"adresse"`
	NCI       *string `json:"nci"`
}

type createCompteRequest struct {
	Type         string               `json:"type"`
	SoldeInitial float64              `json:"soldeInitial"`
	Devise       string               `json:"devise"`
	Client       *createClientRequest `json:"client"`
}

// CreateCompteHandler handles POST /v1/comptes. The client block either
// references an existing client by id or carries the details of a new one.
func (h *Handlers) CreateCompteHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
		return
	}

	var req createCompteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, CodeValidationError, "Les données fournies sont invalides",
			map[string][]string{"body": {"Le corps de la requête doit être un JSON valide."}})
		return
	}

	fe := fieldErrors{}
	if req.Type == "" {
		fe.add("type", "Le type de compte est obligatoire.")
	} else if !domain.ValidCompteType(req.Type) {
		fe.add("type", "Le type de compte doit être soit \"epargne\" soit \"cheque\".")
	}
	if req.SoldeInitial < minSoldeInitial {
		fe.add("soldeInitial", "Le solde initial doit être d'au moins 10 000 FCFA.")
	} else if req.SoldeInitial > maxSoldeInitial {
		fe.add("soldeInitial", "Le solde initial ne peut pas dépasser 10 000 000 FCFA.")
	}
	if req.Devise == "" {
		fe.add("devise", "La devise est obligatoire.")
	} else if !allowedDevises[req.Devise] {
		fe.add("devise", "La devise doit être FCFA, XOF, EUR ou USD.")
	}

	input := app.CreateCompteInput{
		Type:         domain.CompteType(req.Type),
		SoldeInitial: req.SoldeInitial,
		Devise:       req.Devise,
	}
	switch {
	case req.Client == nil:
		fe.add("client", "Les informations du client sont obligatoires.")
	case req.Client.ID != nil:
		clientID, err := uuid.Parse(*req.Client.ID)
		if err != nil {
			fe.add("client.id", "Le client sélectionné n'existe pas.")
		} else {
			input.Client.ID = &clientID
		}
	default:
		c := req.Client
		c.Telephone = strings.ReplaceAll(c.Telephone, " ", "")
		if strings.TrimSpace(c.Titulaire) == "" {
			fe.add("client.titulaire", "Le nom du titulaire est requis pour créer un nouveau client.")
		} else if len(c.Titulaire) > 255 {
			fe.add("client.titulaire", "Le nom du titulaire ne peut pas dépasser 255 caractères.")
		}
		if c.Email == "" {
			fe.add("client.email", "L'adresse email est requise pour créer un nouveau client.")
		} else if !validEmail(c.Email) || len(c.Email) > 255 {
			fe.add("client.email", "L'adresse email doit être valide.")
		}
		if c.Telephone == "" {
			fe.add("client.telephone", "Le numéro de téléphone est requis pour créer un nouveau client.")
		} else if !validPhone(c.Telephone) {
			fe.add("client.telephone", "Le numéro de téléphone doit être un numéro sénégalais valide (+221XXXXXXXXX).")
		}
		if c.Adresse != nil && len(*c.Adresse) > 500 {
			fe.add("client.adresse", "L'adresse ne peut pas dépasser 500 caractères.")
		}
		if c.NCI != nil && !validNCI(*c.NCI) {
			fe.add("client.nci", "Le numéro de carte d'identité doit être valide.")
		}
		input.Client = app.CreateClientInput{
			Titulaire: strings.TrimSpace(c.Titulaire),
			Email:     c.Email,
			Telephone: c.Telephone,
			Adresse:   c.Adresse,
			NCI:       c.NCI,
		}
	}
	if fe.respond(w) {
		return
	}

	compte, err := h.service.CreateCompte(r.Context(), principal, input)
	if err != nil {
		h.respondServiceError(w, err, CodeCreationFailed, "Erreur lors de la création du compte")
		return
	}
	respondData(w, http.StatusCreated, "Compte créé avec succès", toCompteResponse(compte))
}

type updateClientRequest struct {
	Telephone *string `json:"telephone"`
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	NCI       *string `json:"nci"`
}

type updateCompteRequest struct {
	Titulaire          *string              `json:"titulaire"`
	InformationsClient *updateClientRequest `json:"informationsClient"`
}

// UpdateCompteHandler handles PATCH /v1/comptes/{compteId}. Only the owning
// client's profile fields can change; every accepted PATCH bumps the
// account's version counter.
func (h *Handlers) UpdateCompteHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
		return
	}
	id, ok := compteID(w, r)
	if !ok {
		return
	}

	var req updateCompteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, CodeValidationError, "Les données fournies sont invalides",
			map[string][]string{"body": {"Le corps de la requête doit être un JSON valide."}})
		return
	}

	fe := fieldErrors{}
	input := app.UpdateCompteInput{Titulaire: req.Titulaire}
	if req.Titulaire != nil && len(*req.Titulaire) > 255 {
		fe.add("titulaire", "Le titulaire ne peut pas dépasser 255 caractères.")
	}
	if ic := req.InformationsClient; ic != nil {
		if ic.Telephone != nil {
			cleaned := strings.ReplaceAll(*ic.Telephone, " ", "")
			if !validPhone(cleaned) {
				fe.add("informationsClient.telephone", "Le numéro de téléphone doit être un numéro sénégalais valide.")
			} else {
				input.Telephone = &cleaned
			}
		}
		if ic.Email != nil {
			if !validEmail(*ic.Email) {
				fe.add("informationsClient.email", "L'adresse email doit être valide.")
			} else {
				input.Email = ic.Email
			}
		}
		if ic.Password != nil {
			if !validPassword(*ic.Password) {
				fe.add("informationsClient.password", "Le mot de passe doit contenir au moins 10 caractères avec majuscule, minuscule, chiffre et caractère spécial.")
			} else {
				input.Password = ic.Password
			}
		}
		if ic.NCI != nil {
			if !validNCI(*ic.NCI) {
				fe.add("informationsClient.nci", "Le numéro de carte d'identité doit être valide.")
			} else {
				input.NCI = ic.NCI
			}
		}
	}
	if fe.respond(w) {
		return
	}

	compte, err := h.service.UpdateCompte(r.Context(), principal, id, input)
	if err != nil {
		h.respondServiceError(w, err, CodeUpdateFailed, "Erreur lors de la mise à jour du compte")
		return
	}
	respondData(w, http.StatusOK, "Compte mis à jour avec succès", toCompteResponse(compte))
}

// DeleteCompteHandler handles DELETE /v1/comptes/{compteId}. The compte is
// closed and soft deleted; the id stays reserved forever.
func (h *Handlers) DeleteCompteHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
		return
	}
	id, ok := compteID(w, r)
	if !ok {
		return
	}

	compte, err := h.service.CloseCompte(r.Context(), principal, id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOperation) {
			respondError(w, http.StatusBadRequest, CodeInvalidOperation, "Ce compte est déjà fermé", nil)
			return
		}
		h.respondServiceError(w, err, CodeDeleteFailed, "Erreur lors de la suppression du compte")
		return
	}

	closedAt := time.Now()
	if compte.DeletedAt != nil {
		closedAt = *compte.DeletedAt
	}
	respondData(w, http.StatusOK, "Compte supprimé avec succès", map[string]interface{}{
		"id":            compte.ID.String(),
		"numeroCompte":  compte.NumeroCompte,
		"statut":        string(domain.StatutFerme),
		"dateFermeture": closedAt.Format(time.RFC3339),
	})
}

type bloquerRequest struct {
	Motif string `json:"motif"`
	Duree int    `json:"duree"`
	Unite string `json:"unite"`
}

// BloquerCompteHandler handles POST /v1/comptes/{compteId}/bloquer. Only
// active savings accounts can be blocked.
func (h *Handlers) BloquerCompteHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
		return
	}
	id, ok := compteID(w, r)
	if !ok {
		return
	}

	var req bloquerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, CodeValidationError, "Les données de blocage sont invalides",
			map[string][]string{"body": {"Le corps de la requête doit être un JSON valide."}})
		return
	}

	fe := fieldErrors{}
	if strings.TrimSpace(req.Motif) == "" {
		fe.add("motif", "Le motif de blocage est obligatoire.")
	} else if len(req.Motif) > 500 {
		fe.add("motif", "Le motif ne peut pas dépasser 500 caractères.")
	}
	if req.Duree < 1 {
		fe.add("duree", "La durée doit être d'au moins 1.")
	} else if req.Duree > 365 {
		fe.add("duree", "La durée ne peut pas dépasser 365.")
	}
	if !domain.ValidBlockUnit(req.Unite) {
		fe.add("unite", "L'unité doit être jours ou mois.")
	}
	if fe.respond(w) {
		return
	}

	compte, err := h.service.BlockCompte(r.Context(), principal, id, req.Motif, req.Duree, domain.BlockUnit(req.Unite))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOperation) {
			respondError(w, http.StatusBadRequest, CodeInvalidOperation, "Ce compte ne peut pas être bloqué", nil)
			return
		}
		h.respondServiceError(w, err, CodeBlockFailed, "Échec du blocage du compte")
		return
	}
	respondData(w, http.StatusOK, "Compte bloqué avec succès", toCompteResponse(compte))
}

type debloquerRequest struct {
	Motif string `json:"motif"`
}

// DebloquerCompteHandler handles POST /v1/comptes/{compteId}/debloquer.
func (h *Handlers) DebloquerCompteHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentification requise", nil)
		return
	}
	id, ok := compteID(w, r)
	if !ok {
		return
	}

	var req debloquerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, CodeValidationError, "Les données fournies sont invalides",
			map[string][]string{"body": {"Le corps de la requête doit être un JSON valide."}})
		return
	}

	fe := fieldErrors{}
	if strings.TrimSpace(req.Motif) == "" {
		fe.add("motif", "Le motif de déblocage est obligatoire.")
	} else if len(req.Motif) > 500 {
		fe.add("motif", "Le motif ne peut pas dépasser 500 caractères.")
	}
	if fe.respond(w) {
		return
	}

	compte, err := h.service.UnblockCompte(r.Context(), principal, id, req.Motif)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOperation) {
			respondError(w, http.StatusBadRequest, CodeInvalidOperation, "Ce compte ne peut pas être débloqué", nil)
			return
		}
		h.respondServiceError(w, err, CodeUnblockFailed, "Échec du déblocage du compte")
		return
	}
	respondData(w, http.StatusOK, "Compte débloqué avec succès", toCompteResponse(compte))
}
