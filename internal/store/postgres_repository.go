/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. All queries work
 * against the `admins`, `clients` and `comptes` tables. Soft-deleted rows are
 * invisible to every read, and account mutations are guarded by a
 * compare-and-swap on the version column.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banqueapi/compte-service/internal/domain"
)

const uniqueViolationCode = "23505"

// numeroAttempts bounds the retry loop for account number collisions.
const numeroAttempts = 5

// querier is the subset of pgxpool.Pool and pgx.Tx the query helpers need,
// so the same statements run inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a concrete implementation of the Repository
// interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindAdminByEmail retrieves an admin by email.
func (r *PostgresRepository) FindAdminByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	var admin domain.Admin
	query := `SELECT id, name, email, password, role, created_at FROM admins WHERE lower(email) = lower($1)`
	err := r.db.QueryRow(ctx, query, email).Scan(
		&admin.ID, &admin.Name, &admin.Email, &admin.PasswordHash, &admin.Role, &admin.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, err
	}
	return &admin, nil
}

// FindClientByEmail retrieves a non-deleted client by email.
func (r *PostgresRepository) FindClientByEmail(ctx context.Context, email string) (*domain.Client, error) {
	return r.findClient(ctx, "lower(email) = lower($1)", email)
}

// FindClientByID retrieves a non-deleted client by id.
func (r *PostgresRepository) FindClientByID(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	return r.findClient(ctx, "id = $1", id)
}

func (r *PostgresRepository) findClient(ctx context.Context, where string, arg any) (*domain.Client, error) {
	var client domain.Client
	query := `
		SELECT id, titulaire, nci, email, telephone, adresse, password, code, code_verified_at,
		       created_at, updated_at, deleted_at
		FROM clients
		WHERE ` + where + ` AND deleted_at IS NULL`
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&client.ID, &client.Titulaire, &client.NCI, &client.Email, &client.Telephone,
		&client.Adresse, &client.PasswordHash, &client.Code, &client.CodeVerifiedAt,
		&client.CreatedAt, &client.UpdatedAt, &client.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &client, nil
}

// MarkClientCodeVerified stamps code_verified_at on first successful code
// entry. Already-verified clients are left untouched.
func (r *PostgresRepository) MarkClientCodeVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE clients SET code_verified_at = $2, updated_at = NOW() WHERE id = $1 AND code_verified_at IS NULL`
	_, err := r.db.Exec(ctx, query, id, at)
	return err
}

// CreateClient inserts a new client row.
func (r *PostgresRepository) CreateClient(ctx context.Context, client *domain.Client) error {
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	query := `
		INSERT INTO clients (id, titulaire, nci, email, telephone, adresse, password, code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		client.ID, client.Titulaire, client.NCI, client.Email, client.Telephone,
		client.Adresse, client.PasswordHash, client.Code,
	).Scan(&client.CreatedAt, &client.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateClient
		}
		return err
	}
	return nil
}

// updateClient applies the non-nil fields of the update to the client row.
// It runs inside the UpdateCompteOwner transaction.
func updateClient(ctx context.Context, db querier, id uuid.UUID, update domain.ClientUpdate) error {
	if update.Empty() {
		return nil
	}

	sets := make([]string, 0, 6)
	args := make([]any, 0, 6)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Titulaire != nil {
		add("titulaire", *update.Titulaire)
	}
	if update.Telephone != nil {
		add("telephone", *update.Telephone)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.PasswordHash != nil {
		add("password", *update.PasswordHash)
	}
	if update.NCI != nil {
		add("nci", *update.NCI)
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE clients SET %s, updated_at = NOW() WHERE id = $%d AND deleted_at IS NULL",
		strings.Join(sets, ", "), len(args),
	)
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateClient
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

// CreateCompte inserts a new account with a generated display number. Number
// collisions are retried; version starts at 1.
func (r *PostgresRepository) CreateCompte(ctx context.Context, compte *domain.Compte) error {
	if compte.ID == uuid.Nil {
		compte.ID = uuid.New()
	}
	query := `
		INSERT INTO comptes (id, numero_compte, client_id, type, solde, devise, statut, version, derniere_modification)
		VALUES ($1, $2, $3, $4, $5, $6, 'actif', 1, NOW())
		RETURNING version, derniere_modification, created_at`

	generated := compte.NumeroCompte == ""
	for attempt := 0; attempt < numeroAttempts; attempt++ {
		if generated {
			compte.NumeroCompte = generateNumeroCompte()
		}
		err := r.db.QueryRow(ctx, query,
			compte.ID, compte.NumeroCompte, compte.ClientID, compte.Type, compte.Solde, compte.Devise,
		).Scan(&compte.Version, &compte.DerniereModification, &compte.CreatedAt)
		if err == nil {
			compte.Statut = domain.StatutActif
			return nil
		}
		// Only a collision on the generated number is retryable.
		if generated && isUniqueViolation(err) {
			continue
		}
		return err
	}
	return fmt.Errorf("could not allocate a unique account number after %d attempts", numeroAttempts)
}

// generateNumeroCompte produces a display number in the original
// C + 8 digits format.
func generateNumeroCompte() string {
	return fmt.Sprintf("C%08d", rand.Intn(99999999)+1)
}

const compteSelect = `
	SELECT c.id, c.numero_compte, c.client_id, cl.titulaire, c.type, c.solde, c.devise, c.statut,
	       c.motif_blocage, c.date_debut_blocage, c.date_fin_blocage, c.version,
	       c.derniere_modification, c.created_at, c.deleted_at
	FROM comptes c
	JOIN clients cl ON cl.id = c.client_id`

func scanCompte(row pgx.Row) (*domain.Compte, error) {
	var compte domain.Compte
	err := row.Scan(
		&compte.ID, &compte.NumeroCompte, &compte.ClientID, &compte.Titulaire, &compte.Type,
		&compte.Solde, &compte.Devise, &compte.Statut, &compte.MotifBlocage,
		&compte.DateDebutBlocage, &compte.DateFinBlocage, &compte.Version,
		&compte.DerniereModification, &compte.CreatedAt, &compte.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &compte, nil
}

// FindCompteByID retrieves a non-deleted account with its holder name.
func (r *PostgresRepository) FindCompteByID(ctx context.Context, id uuid.UUID) (*domain.Compte, error) {
	row := r.db.QueryRow(ctx, compteSelect+" WHERE c.id = $1 AND c.deleted_at IS NULL", id)
	compte, err := scanCompte(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompteNotFound
		}
		return nil, err
	}
	return compte, nil
}

var sortColumns = map[string]string{
	domain.SortDateCreation: "c.created_at",
	domain.SortSolde:        "c.solde",
	domain.SortTitulaire:    "cl.titulaire",
}

// ListComptes returns a filtered, sorted page of accounts plus the total
// count the pagination envelope needs.
func (r *PostgresRepository) ListComptes(ctx context.Context, filter domain.CompteFilter) (*domain.ComptePage, error) {
	where := []string{"c.deleted_at IS NULL"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ClientID != nil {
		where = append(where, "c.client_id = "+arg(*filter.ClientID))
	}
	if filter.Type != nil {
		where = append(where, "c.type = "+arg(*filter.Type))
	}
	if filter.Statut != nil {
		where = append(where, "c.statut = "+arg(*filter.Statut))
	}
	if filter.Search != "" {
		pattern := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf("(c.numero_compte ILIKE %s OR cl.titulaire ILIKE %s)", pattern, pattern))
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT count(*) FROM comptes c JOIN clients cl ON cl.id = c.client_id" + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, err
	}

	column, ok := sortColumns[filter.Sort]
	if !ok {
		column = sortColumns[domain.SortDateCreation]
	}
	direction := "DESC"
	if strings.EqualFold(filter.Order, "asc") {
		direction = "ASC"
	}

	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %s OFFSET %s",
		compteSelect, whereClause, column, direction, arg(filter.Limit), arg(filter.Offset()))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comptes := make([]domain.Compte, 0, filter.Limit)
	for rows.Next() {
		compte, err := scanCompte(rows)
		if err != nil {
			return nil, err
		}
		comptes = append(comptes, *compte)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &domain.ComptePage{Comptes: comptes, TotalItems: total}, nil
}

// UpdateCompteState persists statut and block window with a version CAS.
func (r *PostgresRepository) UpdateCompteState(ctx context.Context, compte *domain.Compte, expectedVersion int) error {
	query := `
		UPDATE comptes
		SET statut = $1, motif_blocage = $2, date_debut_blocage = $3, date_fin_blocage = $4,
		    version = version + 1, derniere_modification = NOW()
		WHERE id = $5 AND version = $6 AND deleted_at IS NULL
		RETURNING version, derniere_modification`
	err := r.db.QueryRow(ctx, query,
		compte.Statut, compte.MotifBlocage, compte.DateDebutBlocage, compte.DateFinBlocage,
		compte.ID, expectedVersion,
	).Scan(&compte.Version, &compte.DerniereModification)
	if errors.Is(err, pgx.ErrNoRows) {
		return casFailure(ctx, r.db, compte.ID)
	}
	return err
}

// CloseCompte marks the account ferme and soft-deletes it in one statement,
// still under the version check.
func (r *PostgresRepository) CloseCompte(ctx context.Context, compte *domain.Compte, expectedVersion int) error {
	query := `
		UPDATE comptes
		SET statut = 'ferme', version = version + 1, derniere_modification = NOW(), deleted_at = NOW()
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING version, derniere_modification, deleted_at`
	err := r.db.QueryRow(ctx, query, compte.ID, expectedVersion).Scan(
		&compte.Version, &compte.DerniereModification, &compte.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return casFailure(ctx, r.db, compte.ID)
	}
	if err == nil {
		compte.Statut = domain.StatutFerme
	}
	return err
}

// UpdateCompteOwner applies the client profile update and the compte version
// bump in one transaction. A version conflict rolls back the profile change,
// so the pair never commits partially.
func (r *PostgresRepository) UpdateCompteOwner(ctx context.Context, compteID uuid.UUID, expectedVersion int, clientID uuid.UUID, update domain.ClientUpdate) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if err := updateClient(ctx, tx, clientID, update); err != nil {
		return 0, err
	}

	var version int
	query := `
		UPDATE comptes SET version = version + 1, derniere_modification = NOW()
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING version`
	err = tx.QueryRow(ctx, query, compteID, expectedVersion).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, casFailure(ctx, tx, compteID)
	}
	if err != nil {
		return 0, err
	}
	return version, tx.Commit(ctx)
}

// casFailure decides whether a zero-row CAS update means the row vanished or
// a concurrent writer bumped the version first.
func casFailure(ctx context.Context, db querier, id uuid.UUID) error {
	var exists bool
	err := db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM comptes WHERE id = $1 AND deleted_at IS NULL)", id,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrVersionConflict
	}
	return ErrCompteNotFound
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
