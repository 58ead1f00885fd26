package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/core/service/mail"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"

	"github.com/google/uuid"
)

const (
	DefaultStateTTL     = 10 * time.Minute
	DefaultFirstSyncMax = 50
	firstSyncTimeout    = 5 * time.Minute
)

// SessionIssuer signs a session token for an account.
type SessionIssuer interface {
	Issue(accountID int64, email string) (string, error)
}

// CategorySeeder creates the default categories for a new account.
type CategorySeeder interface {
	SeedDefaults(ctx context.Context, accountID int64) (int, error)
}

// ConnectService links a Google account: consent, code exchange, account and
// credential storage, category seeding and the first sync.
type ConnectService struct {
	oauth    out.OAuthProvider
	states   out.OAuthStateStore
	accounts out.AccountRepository
	creds    out.CredentialRepository
	seeder   CategorySeeder
	sync     in.SyncUseCase
	sessions SessionIssuer

	stateTTL     time.Duration
	firstSyncMax int
	wg           sync.WaitGroup
}

func NewConnectService(
	oauth out.OAuthProvider,
	states out.OAuthStateStore,
	accounts out.AccountRepository,
	creds out.CredentialRepository,
	seeder CategorySeeder,
	syncer in.SyncUseCase,
	sessions SessionIssuer,
) *ConnectService {
	return &ConnectService{
		oauth:        oauth,
		states:       states,
		accounts:     accounts,
		creds:        creds,
		seeder:       seeder,
		sync:         syncer,
		sessions:     sessions,
		stateTTL:     DefaultStateTTL,
		firstSyncMax: DefaultFirstSyncMax,
	}
}

var _ in.ConnectUseCase = (*ConnectService)(nil)

// Begin stores a fresh state and returns the consent URL.
func (s *ConnectService) Begin(ctx context.Context) (string, error) {
	state := uuid.NewString()
	if err := s.states.Store(ctx, state, s.stateTTL); err != nil {
		return "", apperr.Internal("failed to start oauth flow", err)
	}
	return s.oauth.AuthCodeURL(state), nil
}

// Complete finishes the flow started by Begin.
func (s *ConnectService) Complete(ctx context.Context, code, state string) (*in.ConnectResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperr.MissingField("code")
	}
	ok, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, apperr.Internal("failed to validate oauth state", err)
	}
	if !ok {
		return nil, apperr.BadRequest("invalid or expired oauth state")
	}

	grant, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.New(apperr.CodeBadRequest, "authorization code exchange failed", 400).WithError(err)
	}
	identity, err := s.oauth.UserInfo(ctx, grant.AccessToken)
	if err != nil {
		return nil, apperr.New(apperr.CodeBadRequest, "failed to read google profile", 400).WithError(err)
	}

	account := &domain.Account{
		Subject: identity.Subject,
		Email:   strings.ToLower(identity.Email),
		Name:    identity.Name,
	}
	if err := s.accounts.Upsert(ctx, account); err != nil {
		return nil, apperr.DatabaseError("upsert account", err)
	}

	cred := &domain.Credential{AccountID: account.ID, TokenType: "Bearer"}
	cred.ApplyGrant(grant.AccessToken, grant.RefreshToken, grant.TokenType, grant.Scope, grant.Expiry)
	if err := s.creds.Save(ctx, cred); err != nil {
		return nil, apperr.DatabaseError("save credential", err)
	}
	account.NeedsReconnect = false

	if grant.RefreshToken == "" {
		logger.Warn("[Connect] account=%d connected without a refresh token", account.ID)
	}

	if s.seeder != nil {
		if n, err := s.seeder.SeedDefaults(ctx, account.ID); err != nil {
			logger.WithError(err).Warn("[Connect] seeding categories for account=%d failed", account.ID)
		} else if n > 0 {
			logger.Info("[Connect] seeded %d categories for account=%d", n, account.ID)
		}
	}

	token, err := s.sessions.Issue(account.ID, account.Email)
	if err != nil {
		return nil, apperr.Internal("failed to issue session", err)
	}

	s.startFirstSync(account.ID)

	logger.WithFields(map[string]any{
		"account_id": account.ID,
		"email":      account.Email,
	}).Info("[Connect] account connected")

	return &in.ConnectResult{Token: token, Account: account}, nil
}

func (s *ConnectService) startFirstSync(accountID int64) {
	if s.sync == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(mail.WithTrigger(context.Background(), mail.TriggerManual), firstSyncTimeout)
		defer cancel()

		n, err := s.sync.Sync(ctx, accountID, s.firstSyncMax)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Warn("[Connect] first sync for account=%d failed", accountID)
			return
		}
		logger.Info("[Connect] first sync stored %d emails for account=%d", n, accountID)
	}()
}

// Wait blocks until background first syncs finish.
func (s *ConnectService) Wait() {
	s.wg.Wait()
}
