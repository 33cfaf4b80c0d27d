package domain

import "github.com/google/uuid"

// Sort columns accepted by the listing endpoint. These are API-level names;
// the repository maps them onto actual columns.
const (
	SortDateCreation = "dateCreation"
	SortSolde        = "solde"
	SortTitulaire    = "titulaire"
)

// CompteFilter captures the query parameters of GET /v1/comptes after
// validation. The zero value lists everything, newest first.
type CompteFilter struct {
	// ClientID scopes the listing to one owner. Set for client principals
	// regardless of what the caller supplied.
	ClientID *uuid.UUID
	Type     *CompteType
	Statut   *CompteStatut
	Search   string
	Sort     string
	Order    string
	Page     int
	Limit    int
}

// Offset returns the SQL offset for the current page.
func (f CompteFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// ComptePage is a page of listing results with the total row count the
// pagination envelope is derived from.
type ComptePage struct {
	Comptes    []Compte
	TotalItems int
}

// TotalPages computes the page count for the given page size.
func (p ComptePage) TotalPages(limit int) int {
	if limit <= 0 {
		return 0
	}
	pages := p.TotalItems / limit
	if p.TotalItems%limit != 0 {
		pages++
	}
	return pages
}
