package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/Pollen/internal/docstore"
	"github.com/soaringjerry/Pollen/internal/identity"
	"github.com/soaringjerry/Pollen/internal/models"
)

type AccountStore interface {
	Read(ctx context.Context, path string) (docstore.Snapshot, error)
	Write(ctx context.Context, path string, doc docstore.Document, opts docstore.WriteOptions) error
}

type TokenSigner func(id identity.Identity) (string, error)

type Account struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	PassHash    string    `json:"passHash"`
	CreatedAt   time.Time `json:"createdAt"`
}

type AccountService struct {
	store     AccountStore
	appID     string
	now       func() time.Time
	idGen     func() string
	signToken TokenSigner
}

type AuthResult struct {
	Token    string            `json:"token"`
	Identity identity.Identity `json:"user"`
}

func NewAccountService(store AccountStore, appID string, signer TokenSigner) *AccountService {
	return &AccountService{
		store:     store,
		appID:     appID,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func() string { return shortID(20) },
		signToken: signer,
	}
}

// SignInAnonymously issues a token for a fresh anonymous identity. Nothing is stored.
func (s *AccountService) SignInAnonymously(ctx context.Context) (*AuthResult, error) {
	return s.issue(identity.Identity{UserID: s.idGen(), IsAnonymous: true})
}

func (s *AccountService) Register(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	p := s.accountPath(email)
	snap, err := s.store.Read(ctx, p)
	if err != nil {
		return nil, NewPersistenceError("read account", err)
	}
	if snap.Exists {
		return nil, NewConflictError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acct := Account{
		UserID:      s.idGen(),
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		PassHash:    string(hash),
		CreatedAt:   s.now(),
	}
	doc, err := models.ToDocument(acct)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(ctx, p, doc, docstore.WriteOptions{}); err != nil {
		return nil, NewPersistenceError("write account", err)
	}
	return s.issue(identity.Identity{UserID: acct.UserID, DisplayName: acct.DisplayName})
}

func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	snap, err := s.store.Read(ctx, s.accountPath(email))
	if err != nil {
		return nil, NewPersistenceError("read account", err)
	}
	if !snap.Exists {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	var acct Account
	if err := models.FromDocument(snap.Data, &acct); err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PassHash), []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	return s.issue(identity.Identity{UserID: acct.UserID, DisplayName: acct.DisplayName})
}

func (s *AccountService) issue(id identity.Identity) (*AuthResult, error) {
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(id)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Identity: id}, nil
}

func (s *AccountService) accountPath(email string) string {
	return AccountsCollection(s.appID) + "/" + email
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") || strings.ContainsAny(email, "/ ") {
		return "", NewInvalidError("email/password required")
	}
	return email, nil
}

func shortID(n int) string {
	id := strings.ReplaceAll(newID(), "-", "")
	if n > len(id) {
		n = len(id)
	}
	return id[:n]
}
