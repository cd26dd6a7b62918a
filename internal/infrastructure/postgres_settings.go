package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adreport/internal/domain"
	"adreport/pkg/config"
	"adreport/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSettings loads project classification settings from PostgreSQL.
type PostgresSettings struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewPostgresSettings creates the connection pool and checks connectivity.
func NewPostgresSettings(ctx context.Context, cfg config.PostgresConfig, logger *logger.Logger) (*PostgresSettings, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithField("max_conns", cfg.MaxConns).Info("Connected to PostgreSQL")
	return &PostgresSettings{pool: pool, logger: logger}, nil
}

func (p *PostgresSettings) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresSettings) ProjectSettings(ctx context.Context, projectID string) (*domain.ProjectSettings, error) {
	s := &domain.ProjectSettings{ID: projectID}

	err := p.pool.QueryRow(ctx,
		`SELECT name, conversion_advertiser_id FROM projects WHERE id = $1`, projectID,
	).Scan(&s.Name, &s.ConversionAdvertiserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}

	if s.Sections, err = p.sections(ctx, projectID); err != nil {
		return nil, err
	}
	if s.Platforms, err = p.platforms(ctx, projectID); err != nil {
		return nil, err
	}
	if s.Links, err = p.links(ctx, projectID); err != nil {
		return nil, err
	}
	if s.Accounts, err = p.accounts(ctx, projectID); err != nil {
		return nil, err
	}
	return s, nil
}

// rule order is significant, so every list is read by its position column
func (p *PostgresSettings) sections(ctx context.Context, projectID string) ([]domain.SectionRule, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, label, campaign_prefixes, campaign_keywords, catch_all_campaign,
       conversion_prefixes, catch_all_conversion
FROM section_rules WHERE project_id = $1 ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("load section rules: %w", err)
	}
	defer rows.Close()

	var out []domain.SectionRule
	for rows.Next() {
		var r domain.SectionRule
		if err := rows.Scan(&r.ID, &r.Label, &r.CampaignPrefixes, &r.CampaignKeywords, &r.CatchAllCampaign,
			&r.ConversionPrefixes, &r.CatchAllConversion); err != nil {
			return nil, fmt.Errorf("scan section rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresSettings) platforms(ctx context.Context, projectID string) ([]domain.PlatformMapping, error) {
	rows, err := p.pool.Query(ctx, `
SELECT section_id, platform_type, platform_id, label
FROM platform_mappings WHERE project_id = $1 ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("load platform mappings: %w", err)
	}
	defer rows.Close()

	var out []domain.PlatformMapping
	for rows.Next() {
		var m domain.PlatformMapping
		var platformType string
		if err := rows.Scan(&m.SectionID, &platformType, &m.PlatformID, &m.Label); err != nil {
			return nil, fmt.Errorf("scan platform mapping: %w", err)
		}
		m.PlatformType = domain.Platform(platformType)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PostgresSettings) links(ctx context.Context, projectID string) ([]domain.LinkMapping, error) {
	rows, err := p.pool.Query(ctx, `
SELECT section_id, link_prefix, platform_id
FROM link_mappings WHERE project_id = $1 ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("load link mappings: %w", err)
	}
	defer rows.Close()

	var out []domain.LinkMapping
	for rows.Next() {
		var l domain.LinkMapping
		if err := rows.Scan(&l.SectionID, &l.LinkPrefix, &l.PlatformID); err != nil {
			return nil, fmt.Errorf("scan link mapping: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *PostgresSettings) accounts(ctx context.Context, projectID string) ([]domain.Account, error) {
	rows, err := p.pool.Query(ctx, `
SELECT platform, account_id
FROM ad_accounts WHERE project_id = $1 ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("load ad accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		var platform string
		if err := rows.Scan(&platform, &a.AccountID); err != nil {
			return nil, fmt.Errorf("scan ad account: %w", err)
		}
		a.Platform = domain.Platform(platform)
		out = append(out, a)
	}
	return out, rows.Err()
}
