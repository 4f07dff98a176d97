package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/platinummonkey/threshold/pkg/authn"
	"github.com/sirupsen/logrus"
)

// SQLService resolves users stored in PostgreSQL
type SQLService struct {
	db   *sql.DB
	opts Options
	log  *logrus.Logger
}

// Open connects to PostgreSQL
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewSQLService creates a SQL-backed user service
func NewSQLService(db *sql.DB, opts Options, log *logrus.Logger) *SQLService {
	if log == nil {
		log = logrus.New()
	}
	return &SQLService{db: db, opts: opts.withDefaults(), log: log}
}

// AuthenticateLocal implements authn.UserService
func (s *SQLService) AuthenticateLocal(ctx context.Context, username, password string, msg *authn.SignInMessage) (*authn.Outcome, error) {
	rec := &record{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, display_name, password_hash, mfa_required, is_active
		FROM users
		WHERE lower(username) = $1
	`, strings.ToLower(username)).Scan(
		&rec.ID, &rec.Username, &rec.DisplayName, &rec.PasswordHash, &rec.MFARequired, &rec.Active)
	if errors.Is(err, sql.ErrNoRows) {
		checkPassword(nil, password)
		return authn.Rejected(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if !checkPassword(rec, password) {
		return authn.Rejected(), nil
	}

	if err := s.touch(ctx, rec.ID); err != nil {
		s.log.WithError(err).Warn("failed to record last login")
	}
	return s.opts.outcome(rec, IdentityProviderLocal, AuthMethodPassword), nil
}

// AuthenticateExternal implements authn.UserService
func (s *SQLService) AuthenticateExternal(ctx context.Context, ext *authn.ExternalIdentity) (*authn.Outcome, error) {
	if ext == nil || ext.Provider == "" || ext.ProviderID == "" {
		return authn.Rejected(), nil
	}

	rec := &record{}
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.display_name, u.mfa_required, u.is_active
		FROM external_logins el
		JOIN users u ON u.id = el.user_id
		WHERE el.provider = $1 AND el.provider_user_id = $2
	`, ext.Provider, ext.ProviderID).Scan(
		&rec.ID, &rec.Username, &rec.DisplayName, &rec.MFARequired, &rec.Active)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.WithField("provider", ext.Provider).Info("no local account linked to external login")
		return s.opts.unknownExternal(ext), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query external login: %w", err)
	}

	if err := s.touch(ctx, rec.ID); err != nil {
		s.log.WithError(err).Warn("failed to record last login")
	}
	return s.opts.outcome(rec, ext.Provider, AuthMethodExternal), nil
}

// CreateUser stores a new local user and returns its id
func (s *SQLService) CreateUser(ctx context.Context, username, displayName, password string) (int64, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, display_name, password_hash, mfa_required, is_active, created_at)
		VALUES ($1, $2, $3, false, true, NOW())
		RETURNING id
	`, username, displayName, hash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

// LinkExternalLogin links a federated account to a local user
func (s *SQLService) LinkExternalLogin(ctx context.Context, userID int64, provider, providerUserID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO external_logins (user_id, provider, provider_user_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (provider, provider_user_id) DO UPDATE SET user_id = EXCLUDED.user_id
	`, userID, provider, providerUserID)
	if err != nil {
		return fmt.Errorf("failed to link external login: %w", err)
	}
	return nil
}

func (s *SQLService) touch(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID)
	return err
}
