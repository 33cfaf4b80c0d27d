package domain

import "time"

// Lifecycle event routing keys published after successful mutations.
const (
	EventCompteCreated   = "compte.created"
	EventCompteBlocked   = "compte.blocked"
	EventCompteUnblocked = "compte.unblocked"
	EventCompteClosed    = "compte.closed"
)

// CompteLifecycleEvent is the payload published to the events exchange when
// an account changes state.
type CompteLifecycleEvent struct {
	CompteID     string    `json:"compte_id"`
	NumeroCompte string    `json:"numero_compte"`
	ClientID     string    `json:"client_id"`
	Statut       string    `json:"statut"`
	Version      int       `json:"version"`
	OccurredAt   time.Time `json:"occurred_at"`
}
