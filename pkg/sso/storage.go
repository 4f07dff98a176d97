package sso

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrProviderNotFound is returned when no stored provider has the name
var ErrProviderNotFound = errors.New("sso provider not found")

const providerColumns = `id, name, caption, provider_type, preset, enabled,
	saml_config, oauth2_config, oidc_config, attribute_mapping,
	created_at, updated_at`

// Storage keeps provider configurations in the sso_providers table
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new SSO storage
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

type providerJSON struct {
	saml, oauth2, oidc, attrs []byte
}

func marshalProvider(config *ProviderConfig) (*providerJSON, error) {
	out := &providerJSON{}
	var err error

	if config.SAMLConfig != nil {
		if out.saml, err = json.Marshal(config.SAMLConfig); err != nil {
			return nil, fmt.Errorf("failed to marshal SAML config: %w", err)
		}
	}
	if config.OAuth2Config != nil {
		if out.oauth2, err = json.Marshal(config.OAuth2Config); err != nil {
			return nil, fmt.Errorf("failed to marshal OAuth2 config: %w", err)
		}
	}
	if config.OIDCConfig != nil {
		if out.oidc, err = json.Marshal(config.OIDCConfig); err != nil {
			return nil, fmt.Errorf("failed to marshal OIDC config: %w", err)
		}
	}
	if out.attrs, err = json.Marshal(config.AttributeMapping); err != nil {
		return nil, fmt.Errorf("failed to marshal attribute mapping: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProvider(row scanner) (*ProviderConfig, error) {
	var raw providerJSON
	config := &ProviderConfig{}
	err := row.Scan(
		&config.ID, &config.Name, &config.Caption, &config.ProviderType, &config.Preset,
		&config.Enabled, &raw.saml, &raw.oauth2, &raw.oidc, &raw.attrs,
		&config.CreatedAt, &config.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(raw.saml) > 0 {
		config.SAMLConfig = &SAMLConfig{}
		if err := json.Unmarshal(raw.saml, config.SAMLConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal SAML config: %w", err)
		}
	}
	if len(raw.oauth2) > 0 {
		config.OAuth2Config = &OAuth2Config{}
		if err := json.Unmarshal(raw.oauth2, config.OAuth2Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OAuth2 config: %w", err)
		}
	}
	if len(raw.oidc) > 0 {
		config.OIDCConfig = &OIDCConfig{}
		if err := json.Unmarshal(raw.oidc, config.OIDCConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OIDC config: %w", err)
		}
	}
	if len(raw.attrs) > 0 {
		if err := json.Unmarshal(raw.attrs, &config.AttributeMapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attribute mapping: %w", err)
		}
	}
	return config, nil
}

// UpsertProvider inserts a provider or replaces the one with the same name
func (s *Storage) UpsertProvider(ctx context.Context, config *ProviderConfig) error {
	raw, err := marshalProvider(config)
	if err != nil {
		return err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO sso_providers (
			name, caption, provider_type, preset, enabled,
			saml_config, oauth2_config, oidc_config, attribute_mapping,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
			caption = EXCLUDED.caption,
			provider_type = EXCLUDED.provider_type,
			preset = EXCLUDED.preset,
			enabled = EXCLUDED.enabled,
			saml_config = EXCLUDED.saml_config,
			oauth2_config = EXCLUDED.oauth2_config,
			oidc_config = EXCLUDED.oidc_config,
			attribute_mapping = EXCLUDED.attribute_mapping,
			updated_at = NOW()
		RETURNING id
	`, config.Name, config.Caption, config.ProviderType, config.Preset, config.Enabled,
		raw.saml, raw.oauth2, raw.oidc, raw.attrs).Scan(&config.ID)
	if err != nil {
		return fmt.Errorf("failed to store provider %s: %w", config.Name, err)
	}
	return nil
}

// GetProvider retrieves a provider by name
func (s *Storage) GetProvider(ctx context.Context, name string) (*ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM sso_providers WHERE name = $1`, name)
	config, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return config, err
}

// ListProviders lists providers ordered by name
func (s *Storage) ListProviders(ctx context.Context, enabledOnly bool) ([]*ProviderConfig, error) {
	query := `SELECT ` + providerColumns + ` FROM sso_providers`
	if enabledOnly {
		query += " WHERE enabled = true"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*ProviderConfig
	for rows.Next() {
		config, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, config)
	}
	return providers, rows.Err()
}

// DeleteProvider deletes a provider
func (s *Storage) DeleteProvider(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sso_providers WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return nil
}
