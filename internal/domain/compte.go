/**
 * @description
 * This file defines the Compte (bank account) domain model and the account
 * lifecycle rules. A compte belongs to exactly one client, carries a generated
 * display number, and moves through the statuses actif -> bloque -> actif and
 * any-non-ferme -> ferme. Only savings accounts (epargne) can be blocked.
 *
 * @dependencies
 * - time: For block windows and modification timestamps.
 * - github.com/google/uuid: Comptes and clients are keyed by UUID.
 */

package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// CompteType is the kind of bank account.
type CompteType string

const (
	TypeEpargne CompteType = "epargne"
	TypeCheque  CompteType = "cheque"
)

// CompteStatut is the lifecycle status of an account.
type CompteStatut string

const (
	StatutActif  CompteStatut = "actif"
	StatutBloque CompteStatut = "bloque"
	StatutFerme  CompteStatut = "ferme"
)

// BlockUnit is the unit a block duration is expressed in.
type BlockUnit string

const (
	UnitJours BlockUnit = "jours"
	UnitMois  BlockUnit = "mois"
)

// ErrInvalidOperation is returned when a lifecycle transition is not legal
// from the account's current state.
var ErrInvalidOperation = errors.New("invalid account operation")

// Compte represents a bank account row.
type Compte struct {
	ID                   uuid.UUID    `json:"id"`
	NumeroCompte         string       `json:"numeroCompte"`
	ClientID             uuid.UUID    `json:"-"`
	Titulaire            string       `json:"titulaire"`
	Type                 CompteType   `json:"type"`
	Solde                float64      `json:"solde"`
	Devise               string       `json:"devise"`
	Statut               CompteStatut `json:"statut"`
	MotifBlocage         *string      `json:"motifBlocage"`
	DateDebutBlocage     *time.Time   `json:"dateDebutBlocage"`
	DateFinBlocage       *time.Time   `json:"dateFinBlocage"`
	Version              int          `json:"-"`
	DerniereModification time.Time    `json:"-"`
	CreatedAt            time.Time    `json:"dateCreation"`
	DeletedAt            *time.Time   `json:"-"`
}

// CanBlock reports whether the account is eligible for blocking.
// Only active savings accounts can be blocked.
func (c *Compte) CanBlock() bool {
	return c.Type == TypeEpargne && c.Statut == StatutActif
}

// CanUnblock reports whether the account can be unblocked.
func (c *Compte) CanUnblock() bool {
	return c.Statut == StatutBloque
}

// CanClose reports whether the account can still be closed. Closing is
// terminal, so a second close attempt is rejected.
func (c *Compte) CanClose() bool {
	return c.Statut != StatutFerme
}

// Block applies the blocked state in memory: statut, motif and the block
// window [now, now+duree). Persistence (version bump, derniere_modification)
// is the repository's job.
func (c *Compte) Block(motif string, duree int, unite BlockUnit, now time.Time) error {
	if !c.CanBlock() {
		return ErrInvalidOperation
	}
	fin := BlockEnd(now, duree, unite)
	c.Statut = StatutBloque
	c.MotifBlocage = &motif
	c.DateDebutBlocage = &now
	c.DateFinBlocage = &fin
	return nil
}

// Unblock clears the block window and returns the account to actif.
func (c *Compte) Unblock() error {
	if !c.CanUnblock() {
		return ErrInvalidOperation
	}
	c.Statut = StatutActif
	c.MotifBlocage = nil
	c.DateDebutBlocage = nil
	c.DateFinBlocage = nil
	return nil
}

// Close marks the account ferme. The caller is responsible for the soft
// delete that accompanies closing.
func (c *Compte) Close() error {
	if !c.CanClose() {
		return ErrInvalidOperation
	}
	c.Statut = StatutFerme
	return nil
}

// BlockEnd computes the end of a block window. The original system treats
// an unknown unit as months; validation upstream only admits jours and mois.
func BlockEnd(start time.Time, duree int, unite BlockUnit) time.Time {
	if unite == UnitJours {
		return start.AddDate(0, 0, duree)
	}
	return start.AddDate(0, duree, 0)
}

// ValidCompteType reports whether s is a known account type.
func ValidCompteType(s string) bool {
	return s == string(TypeEpargne) || s == string(TypeCheque)
}

// ValidCompteStatut reports whether s is a known account status.
func ValidCompteStatut(s string) bool {
	switch CompteStatut(s) {
	case StatutActif, StatutBloque, StatutFerme:
		return true
	}
	return false
}

// ValidBlockUnit reports whether s is a known block duration unit.
func ValidBlockUnit(s string) bool {
	return s == string(UnitJours) || s == string(UnitMois)
}
