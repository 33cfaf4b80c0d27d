/**
 * @description
 * This file contains the request validation helpers. Rules mirror the public
 * API contract: Senegalese phone numbers, NCI format, balance bounds, and
 * the enumerated account types, currencies and block units. Failures are
 * collected per field and returned in a 422 VALIDATION_ERROR envelope.
 *
 * @dependencies
 * - net/http, regexp, strconv: Standard Go libraries.
 * - internal/domain: Enumerations shared with the business layer.
 */

package api

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/banqueapi/compte-service/internal/domain"
)

var (
	phoneRegex    = regexp.MustCompile(`^\+221(77|78|76|70|75|33|32)\d{7}$`)
	nciRegex      = regexp.MustCompile(`^[12]\d{12}$`)
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	passwordRegex = regexp.MustCompile(`^(?i)[a-z\d@$!%*?&]+$`)
)

const (
	minSoldeInitial = 10000
	maxSoldeInitial = 10000000
	maxPageLimit    = 100
)

var allowedDevises = map[string]bool{"FCFA": true, "XOF": true, "EUR": true, "USD": true}

var allowedSorts = map[string]bool{
	domain.SortDateCreation: true,
	domain.SortSolde:        true,
	domain.SortTitulaire:    true,
}

// fieldErrors accumulates validation messages per field, in the same shape
// the error envelope's details carry them.
type fieldErrors map[string][]string

func (fe fieldErrors) add(field, message string) {
	fe[field] = append(fe[field], message)
}

func (fe fieldErrors) ok() bool { return len(fe) == 0 }

// respond writes the 422 envelope when any rule failed. Returns true when
// the caller should stop processing the request.
func (fe fieldErrors) respond(w http.ResponseWriter) bool {
	if fe.ok() {
		return false
	}
	respondError(w, http.StatusUnprocessableEntity, CodeValidationError, "Les données fournies sont invalides", fe)
	return true
}

func validPhone(s string) bool {
	return phoneRegex.MatchString(strings.ReplaceAll(s, " ", ""))
}

func validNCI(s string) bool { return nciRegex.MatchString(s) }

func validEmail(s string) bool { return emailRegex.MatchString(s) }

// validPassword enforces the client password policy: at least 10 characters
// with an uppercase letter, a lowercase letter, a digit and a special
// character from the allowed set.
func validPassword(s string) bool {
	if len(s) < 10 || !passwordRegex.MatchString(s) {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune("@$!%*?&", r):
			special = true
		}
	}
	return upper && lower && digit && special
}

// parseListFilter reads and validates the query parameters of
// GET /v1/comptes. Defaults are page 1, limit 10, sorted by creation date
// descending.
func parseListFilter(r *http.Request, fe fieldErrors) domain.CompteFilter {
	q := r.URL.Query()
	filter := domain.CompteFilter{
		Page:   1,
		Limit:  10,
		Sort:   domain.SortDateCreation,
		Order:  "desc",
		Search: strings.TrimSpace(q.Get("search")),
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			fe.add("page", "Le numéro de page doit être un entier positif.")
		} else {
			filter.Page = page
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		switch {
		case err != nil || limit < 1:
			fe.add("limit", "La limite doit être un entier positif.")
		case limit > maxPageLimit:
			fe.add("limit", "La limite ne peut pas dépasser 100.")
		default:
			filter.Limit = limit
		}
	}
	if raw := q.Get("type"); raw != "" {
		if !domain.ValidCompteType(raw) {
			fe.add("type", "Le type de compte doit être soit \"epargne\" soit \"cheque\".")
		} else {
			t := domain.CompteType(raw)
			filter.Type = &t
		}
	}
	if raw := q.Get("statut"); raw != "" {
		if !domain.ValidCompteStatut(raw) {
			fe.add("statut", "Le statut doit être actif, bloque ou ferme.")
		} else {
			s := domain.CompteStatut(raw)
			filter.Statut = &s
		}
	}
	if raw := q.Get("sort"); raw != "" {
		if !allowedSorts[raw] {
			fe.add("sort", "Le tri doit être dateCreation, solde ou titulaire.")
		} else {
			filter.Sort = raw
		}
	}
	if raw := q.Get("order"); raw != "" {
		order := strings.ToLower(raw)
		if order != "asc" && order != "desc" {
			fe.add("order", "L'ordre doit être asc ou desc.")
		} else {
			filter.Order = order
		}
	}
	return filter
}
