// Package app wires the API service: accounts, sessions, and the
// organization document store the sync protocol runs against.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"turnhub/api/internal/auth"
	"turnhub/api/internal/authpw"
	"turnhub/api/internal/config"
	"turnhub/api/internal/docrepo"
	"turnhub/api/internal/export"
	"turnhub/api/internal/orgdoc"
	"turnhub/api/internal/store"
	"turnhub/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	OrgID        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetOrganizationDocument(context.Context, string) ([]byte, error)
	SaveOrganizationDocument(context.Context, string, []byte) error
	Ping(ctx context.Context) error
}

// sessionStore is the refresh token backend. Redis when configured,
// PostgreSQL otherwise; both satisfy this.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, store.User, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type revisionService interface {
	RecordRevision(orgID string, document []byte, author, message string) (docrepo.Revision, error)
	History(orgID string, limit int) ([]docrepo.Revision, error)
}

type invoiceExporter interface {
	ExportInvoice(entity orgdoc.Entity, orgName string) (*export.Result, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	revisions revisionService
	exporter  invoiceExporter
	authpw    *authpw.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, revisions *docrepo.Service, exporter *export.Service) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		revisions: revisions,
		exporter:  exporter,
		authpw:    authpw.NewService(dataStore),
	}
}

// ── Accounts and sessions ──────────────────────────────────────────

type SignUpInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	OrgName     string `json:"orgName"`
}

type SignUpResult struct {
	Session  Session
	User     store.User
	Document *orgdoc.Document
}

// SignUp creates a new account and a fresh organization for it. The
// organization starts as a normalized empty document so the first
// hydration on the client sees every collection present.
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (SignUpResult, error) {
	if input.OrgName == "" {
		return SignUpResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "orgName is required", nil)
	}

	orgID := util.NewID("org")

	// Create the user first: its validation (duplicate email, weak
	// password) is what can reject a signup, and a rejected signup must
	// not leave an orphaned organization row behind.
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
		OrgID:       orgID,
	})
	if err != nil {
		return SignUpResult{}, err
	}

	doc := orgdoc.New(orgID)
	settings, err := json.Marshal(map[string]any{"name": input.OrgName})
	if err != nil {
		return SignUpResult{}, fmt.Errorf("marshal settings: %w", err)
	}
	doc.Settings = settings

	payload, err := json.Marshal(doc)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("marshal document: %w", err)
	}
	if err := s.store.SaveOrganizationDocument(ctx, orgID, payload); err != nil {
		return SignUpResult{}, err
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return SignUpResult{}, err
	}
	return SignUpResult{Session: session, User: user, Document: doc}, nil
}

type SignInResult struct {
	Session  Session
	User     store.User
	Document *orgdoc.Document
}

// SignIn verifies credentials and returns a session plus the stored
// organization document, which the client feeds into its Login step.
func (s *Service) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	user, err := s.authpw.SignIn(ctx, email, password)
	if err != nil {
		return SignInResult{}, err
	}

	doc, err := s.loadDocument(ctx, user.OrgID)
	if err != nil {
		return SignInResult{}, err
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return SignInResult{}, err
	}
	return SignInResult{Session: session, User: user, Document: doc}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Org:  user.OrgID,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		OrgID:        user.OrgID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates the access token without a database hit.
// The claims carry everything request handling needs.
func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		OrgID:     claims.Org,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// ── Organization documents ─────────────────────────────────────────

// Organization returns the stored document for one tenant, normalized
// so legacy rows missing newer collections come back complete.
func (s *Service) Organization(ctx context.Context, session Session, orgID string) (*orgdoc.Document, error) {
	if session.OrgID != orgID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return s.loadDocument(ctx, orgID)
}

func (s *Service) loadDocument(ctx context.Context, orgID string) (*orgdoc.Document, error) {
	raw, err := s.store.GetOrganizationDocument(ctx, orgID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Organization not found", nil)
	}
	if err != nil {
		return nil, err
	}

	doc := orgdoc.New(orgID)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, doc); err != nil {
			return nil, fmt.Errorf("decode organization %s: %w", orgID, err)
		}
	}
	doc.ID = orgID
	doc.Normalize()
	return doc, nil
}

// SyncOrganization overwrites the stored document with the client's
// copy. The client is authoritative; the server performs no merge. A
// git revision is recorded best-effort so a failing revision store
// never rejects a sync.
func (s *Service) SyncOrganization(ctx context.Context, session Session, orgID string, data *orgdoc.Document) error {
	if session.OrgID != orgID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if data == nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "data is required", nil)
	}

	doc := data.Clone()
	doc.ID = orgID
	doc.Normalize()

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := s.store.SaveOrganizationDocument(ctx, orgID, payload); err != nil {
		return err
	}

	if s.revisions != nil {
		if _, err := s.revisions.RecordRevision(orgID, payload, session.UserName, "Sync from client"); err != nil {
			log.Printf(`{"event":"revision_record_failed","org_id":"%s","error":"%s"}`, orgID, err)
		}
	}
	return nil
}

// Revisions lists the recorded document history for one tenant.
func (s *Service) Revisions(ctx context.Context, session Session, orgID string, limit int) ([]docrepo.Revision, error) {
	if session.OrgID != orgID {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if s.revisions == nil {
		return []docrepo.Revision{}, nil
	}
	return s.revisions.History(orgID, limit)
}

// ExportInvoice renders one invoice entity from the stored document as
// a PDF download.
func (s *Service) ExportInvoice(ctx context.Context, session Session, orgID, invoiceID string) (*export.Result, error) {
	doc, err := s.Organization(ctx, session, orgID)
	if err != nil {
		return nil, err
	}

	var entity orgdoc.Entity
	for _, candidate := range doc.Invoices {
		if orgdoc.EntityID(candidate) == invoiceID {
			entity = candidate
			break
		}
	}
	if entity == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Invoice not found", nil)
	}

	return s.exporter.ExportInvoice(entity, orgName(doc))
}

// orgName pulls a display name out of the opaque settings blob,
// falling back to the organization id.
func orgName(doc *orgdoc.Document) string {
	var settings struct {
		Name string `json:"name"`
	}
	if len(doc.Settings) > 0 {
		if err := json.Unmarshal(doc.Settings, &settings); err == nil && settings.Name != "" {
			return settings.Name
		}
	}
	return doc.ID
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
