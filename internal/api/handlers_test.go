package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/banqueapi/compte-service/internal/app"
	"github.com/banqueapi/compte-service/internal/domain"
	"github.com/banqueapi/compte-service/internal/store"
)

type apiRepoStub struct {
	store.Repository

	admin  *domain.Admin
	client *domain.Client
	compte *domain.Compte

	codeVerified bool
	compteErr    error
}

func (s *apiRepoStub) FindAdminByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	if s.admin == nil || s.admin.Email != email {
		return nil, store.ErrAdminNotFound
	}
	return s.admin, nil
}

func (s *apiRepoStub) FindClientByEmail(ctx context.Context, email string) (*domain.Client, error) {
	if s.client == nil || s.client.Email != email {
		return nil, store.ErrClientNotFound
	}
	return s.client, nil
}

func (s *apiRepoStub) MarkClientCodeVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.codeVerified = true
	return nil
}

func (s *apiRepoStub) FindCompteByID(ctx context.Context, id uuid.UUID) (*domain.Compte, error) {
	if s.compteErr != nil {
		return nil, s.compteErr
	}
	if s.compte == nil || s.compte.ID != id {
		return nil, store.ErrCompteNotFound
	}
	copied := *s.compte
	return &copied, nil
}

func (s *apiRepoStub) UpdateCompteState(ctx context.Context, compte *domain.Compte, expectedVersion int) error {
	compte.Version = expectedVersion + 1
	*s.compte = *compte
	return nil
}

func (s *apiRepoStub) ListComptes(ctx context.Context, filter domain.CompteFilter) (*domain.ComptePage, error) {
	comptes := []domain.Compte{}
	if s.compte != nil {
		if filter.ClientID == nil || *filter.ClientID == s.compte.ClientID {
			comptes = append(comptes, *s.compte)
		}
	}
	return &domain.ComptePage{Comptes: comptes, TotalItems: len(comptes)}, nil
}

// countingLimiter mimics the Redis daily quota in memory. Like the real one
// it checks before incrementing, so a rejected request leaves the counter at
// the limit.
type countingLimiter struct {
	limit  int
	counts map[string]int
}

func (l *countingLimiter) Consume(ctx context.Context, userID string, now time.Time) (app.RateLimitDecision, error) {
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	count := l.counts[userID]
	allowed := count < l.limit
	if allowed {
		count++
		l.counts[userID] = count
	}
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return app.RateLimitDecision{
		Allowed:   allowed,
		Limit:     l.limit,
		Count:     count,
		Remaining: remaining,
		Reset:     now.Truncate(24 * time.Hour).AddDate(0, 0, 1),
	}, nil
}

type testEnv struct {
	repo    *apiRepoStub
	tokens  *app.TokenIssuer
	router  http.Handler
	limiter *countingLimiter
}

func newTestEnv(t *testing.T, repo *apiRepoStub) *testEnv {
	t.Helper()
	return newTestEnvWith(t, repo, HealthChecks{}, false)
}

func newTestEnvWith(t *testing.T, repo *apiRepoStub, health HealthChecks, debug bool) *testEnv {
	t.Helper()
	tokens := app.NewTokenIssuer("test-secret", time.Hour, nil)
	service := app.NewService(repo, tokens, nil, nil, "banque.events")
	limiter := &countingLimiter{limit: 10}
	return &testEnv{
		repo:    repo,
		tokens:  tokens,
		router:  Routes(NewHandlers(service, health, debug), service, limiter),
		limiter: limiter,
	}
}

func (e *testEnv) bearerFor(t *testing.T, principal domain.Principal) string {
	t.Helper()
	token, _, err := e.tokens.Issue(principal)
	if err != nil {
		t.Fatalf("issuing test token: %v", err)
	}
	return "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, target, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return body
}

func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected an error object, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	return string(hash)
}

func TestComptes_RequireAuthentication(t *testing.T) {
	env := newTestEnv(t, &apiRepoStub{})

	rec := env.do(t, http.MethodGet, "/v1/comptes", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, decodeEnvelope(t, rec)); code != CodeUnauthenticated {
		t.Fatalf("expected UNAUTHENTICATED, got %s", code)
	}
}

func TestLogin_FirstLoginCodeFlow(t *testing.T) {
	repo := &apiRepoStub{
		client: &domain.Client{
			ID:           uuid.New(),
			Titulaire:    "Fatou Sow",
			Email:        "fatou@example.sn",
			Telephone:    "+221771234567",
			PasswordHash: hashFor(t, "Secret#2026pass"),
			Code:         "A1B2C3",
		},
	}
	env := newTestEnv(t, repo)

	// Without the code the first login is refused.
	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "fatou@example.sn",
		"password": "Secret#2026pass",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, decodeEnvelope(t, rec)); code != CodeCodeRequired {
		t.Fatalf("expected CODE_REQUIRED, got %s", code)
	}

	// With the 6-character code the login succeeds.
	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "fatou@example.sn",
		"password": "Secret#2026pass",
		"code":     "A1B2C3",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	data, _ := body["data"].(map[string]interface{})
	if data == nil {
		t.Fatalf("expected data in %v", body)
	}
	if data["expires_in"] != float64(3600) {
		t.Fatalf("expected expires_in 3600, got %v", data["expires_in"])
	}
	if data["access_token"] == "" {
		t.Fatal("expected an access token")
	}
	if !repo.codeVerified {
		t.Fatal("expected the code to be marked verified")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, &apiRepoStub{})

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "nobody@example.sn",
		"password": "whatever",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, decodeEnvelope(t, rec)); code != CodeInvalidCredentials {
		t.Fatalf("expected INVALID_CREDENTIALS, got %s", code)
	}
}

func TestGetCompte_ForeignClientIsDenied(t *testing.T) {
	owner := uuid.New()
	repo := &apiRepoStub{
		compte: &domain.Compte{
			ID:       uuid.New(),
			ClientID: owner,
			Type:     domain.TypeEpargne,
			Statut:   domain.StatutActif,
		},
	}
	env := newTestEnv(t, repo)

	intruder := env.bearerFor(t, domain.Principal{ID: uuid.New(), Role: domain.RoleClient})
	rec := env.do(t, http.MethodGet, "/v1/comptes/"+repo.compte.ID.String(), intruder, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, decodeEnvelope(t, rec)); code != CodeAccessDenied {
		t.Fatalf("expected ACCESS_DENIED, got %s", code)
	}
}

func TestGetCompte_UnknownIDIs404(t *testing.T) {
	env := newTestEnv(t, &apiRepoStub{})
	admin := env.bearerFor(t, domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin})

	rec := env.do(t, http.MethodGet, "/v1/comptes/"+uuid.NewString(), admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, decodeEnvelope(t, rec)); code != CodeCompteNotFound {
		t.Fatalf("expected COMPTE_NOT_FOUND, got %s", code)
	}
}

func TestBloquer_CheckingAccountIsInvalidOperation(t *testing.T) {
	repo := &apiRepoStub{
		compte: &domain.Compte{
			ID:       uuid.New(),
			ClientID: uuid.New(),
			Type:     domain.TypeCheque,
			Statut:   domain.StatutActif,
		},
	}
	env := newTestEnv(t, repo)
	admin := env.bearerFor(t, domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin})

	rec := env.do(t, http.MethodPost, "/v1/comptes/"+repo.compte.ID.String()+"/bloquer", admin, map[string]interface{}{
		"motif": "fraude suspectée",
		"duree": 30,
		"unite": "jours",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, decodeEnvelope(t, rec)); code != CodeInvalidOperation {
		t.Fatalf("expected INVALID_OPERATION, got %s", code)
	}
}

func TestBloquer_ActiveSavingsAccountSucceeds(t *testing.T) {
	repo := &apiRepoStub{
		compte: &domain.Compte{
			ID:        uuid.New(),
			ClientID:  uuid.New(),
			Titulaire: "Fatou Sow",
			Type:      domain.TypeEpargne,
			Statut:    domain.StatutActif,
		},
	}
	env := newTestEnv(t, repo)
	admin := env.bearerFor(t, domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin})

	before := time.Now()
	rec := env.do(t, http.MethodPost, "/v1/comptes/"+repo.compte.ID.String()+"/bloquer", admin, map[string]interface{}{
		"motif": "fraude suspectée",
		"duree": 30,
		"unite": "jours",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeEnvelope(t, rec)
	data, _ := body["data"].(map[string]interface{})
	if data["statut"] != string(domain.StatutBloque) {
		t.Fatalf("expected statut bloque, got %v", data["statut"])
	}
	fin, err := time.Parse(time.RFC3339Nano, data["dateFinBlocage"].(string))
	if err != nil {
		t.Fatalf("parsing dateFinBlocage: %v", err)
	}
	wantMin := before.AddDate(0, 0, 30).Add(-time.Minute)
	wantMax := before.AddDate(0, 0, 30).Add(time.Minute)
	if fin.Before(wantMin) || fin.After(wantMax) {
		t.Fatalf("expected block end roughly 30 days out, got %v", fin)
	}
}

func TestBloquer_ValidationErrors(t *testing.T) {
	repo := &apiRepoStub{
		compte: &domain.Compte{ID: uuid.New(), ClientID: uuid.New(), Type: domain.TypeEpargne, Statut: domain.StatutActif},
	}
	env := newTestEnv(t, repo)
	admin := env.bearerFor(t, domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin})

	rec := env.do(t, http.MethodPost, "/v1/comptes/"+repo.compte.ID.String()+"/bloquer", admin, map[string]interface{}{
		"motif": "",
		"duree": 400,
		"unite": "heures",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	if code := errorCode(t, body); code != CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
	details := body["error"].(map[string]interface{})["details"].(map[string]interface{})
	for _, field := range []string{"motif", "duree", "unite"} {
		if _, ok := details[field]; !ok {
			t.Fatalf("expected a message for %q in %v", field, details)
		}
	}
}

func TestRateLimit_EleventhRequestIsRejected(t *testing.T) {
	owner := uuid.New()
	repo := &apiRepoStub{
		compte: &domain.Compte{ID: uuid.New(), ClientID: owner, Type: domain.TypeEpargne, Statut: domain.StatutActif},
	}
	env := newTestEnv(t, repo)
	bearer := env.bearerFor(t, domain.Principal{ID: owner, Role: domain.RoleClient})

	for i := 0; i < 10; i++ {
		rec := env.do(t, http.MethodGet, "/v1/comptes", bearer, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}

	rec := env.do(t, http.MethodGet, "/v1/comptes", bearer, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the 11th request, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if code := errorCode(t, body); code != CodeRateLimitExceeded {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got %s", code)
	}
	// A rejected request never inflates the counter past the limit.
	details := body["error"].(map[string]interface{})["details"].(map[string]interface{})
	if details["max_requests"] != float64(10) || details["current_count"] != float64(10) {
		t.Fatalf("unexpected rate limit details: %v", details)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "10" {
		t.Fatalf("expected X-RateLimit-Limit 10, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected X-RateLimit-Remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}

	// Auth endpoints stay usable once the compte quota is exhausted.
	logoutRec := env.do(t, http.MethodPost, "/v1/auth/logout", bearer, nil)
	if logoutRec.Code != http.StatusOK {
		t.Fatalf("expected logout to bypass the quota, got %d", logoutRec.Code)
	}
}

func TestListComptes_PaginationEnvelope(t *testing.T) {
	owner := uuid.New()
	repo := &apiRepoStub{
		compte: &domain.Compte{
			ID:        uuid.New(),
			ClientID:  owner,
			Titulaire: "Fatou Sow",
			Type:      domain.TypeEpargne,
			Statut:    domain.StatutActif,
		},
	}
	env := newTestEnv(t, repo)
	admin := env.bearerFor(t, domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin})

	rec := env.do(t, http.MethodGet, "/v1/comptes?page=1&limit=10", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	page, _ := body["pagination"].(map[string]interface{})
	if page == nil {
		t.Fatalf("expected pagination in %v", body)
	}
	if page["currentPage"] != float64(1) || page["totalItems"] != float64(1) || page["itemsPerPage"] != float64(10) {
		t.Fatalf("unexpected pagination: %v", page)
	}
	nav, _ := body["links"].(map[string]interface{})
	if nav == nil || nav["self"] == "" || nav["first"] == "" {
		t.Fatalf("expected navigation links, got %v", nav)
	}
	if nav["next"] != nil {
		t.Fatalf("expected next to be null on the last page, got %v", nav["next"])
	}
}

func TestListComptes_RejectsOversizedLimit(t *testing.T) {
	env := newTestEnv(t, &apiRepoStub{})
	admin := env.bearerFor(t, domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin})

	rec := env.do(t, http.MethodGet, "/v1/comptes?limit=500", admin, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if code := errorCode(t, decodeEnvelope(t, rec)); code != CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestHealth_ReportsStoreConnectivity(t *testing.T) {
	health := HealthChecks{
		Database: func(ctx context.Context) error { return nil },
		Redis:    func(ctx context.Context) error { return errors.New("connection refused") },
	}
	env := newTestEnvWith(t, &apiRepoStub{}, health, false)

	rec := env.do(t, http.MethodGet, "/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
	body := decodeEnvelope(t, rec)
	data, _ := body["data"].(map[string]interface{})
	if data == nil {
		t.Fatalf("expected data in %v", body)
	}
	if data["database"] != "connected" {
		t.Fatalf("expected database connected, got %v", data["database"])
	}
	if data["redis"] != "disconnected" {
		t.Fatalf("expected redis disconnected, got %v", data["redis"])
	}
	if data["status"] != "degraded" {
		t.Fatalf("expected degraded status, got %v", data["status"])
	}
}

func TestHealth_MissingChecksAreNotConfigured(t *testing.T) {
	env := newTestEnv(t, &apiRepoStub{})

	rec := env.do(t, http.MethodGet, "/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	if data["database"] != "not_configured" || data["redis"] != "not_configured" {
		t.Fatalf("expected not_configured stores, got %v", data)
	}
	if data["status"] != "healthy" {
		t.Fatalf("expected healthy status, got %v", data["status"])
	}
}

func TestLogin_RejectsWrongLengthCode(t *testing.T) {
	env := newTestEnv(t, &apiRepoStub{})

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "fatou@example.sn",
		"password": "Secret#2026pass",
		"code":     "A1B2",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	if code := errorCode(t, body); code != CodeValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
	details := body["error"].(map[string]interface{})["details"].(map[string]interface{})
	if _, ok := details["code"]; !ok {
		t.Fatalf("expected a message for the code field in %v", details)
	}
}

func TestServerError_DetailsOnlyInDebugMode(t *testing.T) {
	repo := &apiRepoStub{compteErr: errors.New("connection reset by peer")}
	target := "/v1/comptes/" + uuid.NewString()

	env := newTestEnvWith(t, repo, HealthChecks{}, true)
	admin := env.bearerFor(t, domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin})
	rec := env.do(t, http.MethodGet, target, admin, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	errObj := decodeEnvelope(t, rec)["error"].(map[string]interface{})
	if errObj["details"] != "connection reset by peer" {
		t.Fatalf("expected the error text in debug details, got %v", errObj["details"])
	}

	env = newTestEnvWith(t, repo, HealthChecks{}, false)
	admin = env.bearerFor(t, domain.Principal{ID: uuid.New(), Role: domain.RoleAdmin})
	rec = env.do(t, http.MethodGet, target, admin, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	errObj = decodeEnvelope(t, rec)["error"].(map[string]interface{})
	if _, ok := errObj["details"]; ok {
		t.Fatalf("expected no details outside debug mode, got %v", errObj["details"])
	}
}
