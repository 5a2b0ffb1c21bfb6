package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"quantfolio/internal/analytics"
	apperrors "quantfolio/internal/errors"
)

// DB wraps the postgres connection used for portfolio persistence.
type DB struct {
	*sql.DB
}

// Config holds postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxOpen  int
	MaxIdle  int
	Timeout  time.Duration
}

// NewConnection opens and verifies a postgres connection.
func NewConnection(cfg *Config) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBConnection, "failed to open database")
	}

	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = 25
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBConnection, "failed to ping database")
	}

	return &DB{DB: db}, nil
}

// StoredAsset is the persisted form of an asset. Prices and dates are empty
// for assets saved from bare statistics; reconstruction then yields a
// synthetic asset whose covariance contribution degrades until backfilled.
type StoredAsset struct {
	Ticker         string      `json:"ticker"`
	ExpectedReturn float64     `json:"expected_return"`
	Volatility     float64     `json:"volatility"`
	Prices         []float64   `json:"prices,omitempty"`
	Dates          []time.Time `json:"dates,omitempty"`
}

// StoredPortfolio is a persisted portfolio row.
type StoredPortfolio struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Assets    []StoredAsset `json:"assets"`
	Weights   []float64     `json:"weights"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SavePortfolio inserts or updates a portfolio snapshot.
func (db *DB) SavePortfolio(ctx context.Context, name string, p *analytics.Portfolio) (*StoredPortfolio, error) {
	stored := &StoredPortfolio{
		ID:      uuid.New(),
		Name:    name,
		Weights: p.Weights(),
	}
	for _, a := range p.Assets() {
		sa := StoredAsset{
			Ticker:         a.Ticker(),
			ExpectedReturn: a.ExpectedReturn(),
			Volatility:     a.Volatility(),
		}
		if a.Prices().Len() > 0 {
			sa.Prices = a.Prices().Prices()
			if a.Prices().HasDates() {
				sa.Dates = a.Prices().Dates()
			}
		}
		stored.Assets = append(stored.Assets, sa)
	}

	assetsJSON, err := json.Marshal(stored.Assets)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal assets")
	}
	weightsJSON, err := json.Marshal(stored.Weights)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal weights")
	}

	query := `
		INSERT INTO portfolios (id, name, assets, weights, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
			assets = EXCLUDED.assets,
			weights = EXCLUDED.weights,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	row := db.QueryRowContext(ctx, query, stored.ID, name, assetsJSON, weightsJSON)
	if err := row.Scan(&stored.ID, &stored.CreatedAt, &stored.UpdatedAt); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to save portfolio")
	}
	return stored, nil
}

// GetPortfolio loads a stored portfolio by id.
func (db *DB) GetPortfolio(ctx context.Context, id uuid.UUID) (*StoredPortfolio, error) {
	query := `
		SELECT id, name, assets, weights, created_at, updated_at
		FROM portfolios
		WHERE id = $1
	`
	return db.scanPortfolio(db.QueryRowContext(ctx, query, id))
}

// GetPortfolioByName loads a stored portfolio by its unique name.
func (db *DB) GetPortfolioByName(ctx context.Context, name string) (*StoredPortfolio, error) {
	query := `
		SELECT id, name, assets, weights, created_at, updated_at
		FROM portfolios
		WHERE name = $1
	`
	return db.scanPortfolio(db.QueryRowContext(ctx, query, name))
}

// ListPortfolios returns all stored portfolios, newest first.
func (db *DB) ListPortfolios(ctx context.Context) ([]*StoredPortfolio, error) {
	query := `
		SELECT id, name, assets, weights, created_at, updated_at
		FROM portfolios
		ORDER BY updated_at DESC
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to query portfolios")
	}
	defer rows.Close()

	var portfolios []*StoredPortfolio
	for rows.Next() {
		p, err := db.scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "error iterating portfolios")
	}
	return portfolios, nil
}

// DeletePortfolio removes a stored portfolio.
func (db *DB) DeletePortfolio(ctx context.Context, id uuid.UUID) error {
	result, err := db.ExecContext(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to delete portfolio")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.Newf(apperrors.ErrCodeNotFound, "portfolio %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) scanPortfolio(row rowScanner) (*StoredPortfolio, error) {
	var stored StoredPortfolio
	var assetsJSON, weightsJSON []byte

	if err := row.Scan(&stored.ID, &stored.Name, &assetsJSON, &weightsJSON,
		&stored.CreatedAt, &stored.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.ErrCodeNotFound, "portfolio not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to scan portfolio")
	}

	if err := json.Unmarshal(assetsJSON, &stored.Assets); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to unmarshal assets")
	}
	if err := json.Unmarshal(weightsJSON, &stored.Weights); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to unmarshal weights")
	}
	return &stored, nil
}

// Rebuild converts a stored portfolio back into an analytics portfolio.
// Assets persisted with price history recover their full return series;
// assets persisted from bare statistics come back synthetic.
func (s *StoredPortfolio) Rebuild() (*analytics.Portfolio, error) {
	assets := make([]*analytics.Asset, len(s.Assets))
	for i, sa := range s.Assets {
		if len(sa.Prices) > 0 {
			series, err := analytics.NewPriceSeries(sa.Prices, sa.Dates)
			if err != nil {
				// stored date axis no longer lines up; keep the prices
				series, _ = analytics.NewPriceSeries(sa.Prices, nil)
			}
			assets[i] = analytics.NewAsset(sa.Ticker, series)
		} else {
			assets[i] = analytics.NewSyntheticAsset(sa.Ticker, sa.ExpectedReturn, sa.Volatility)
		}
	}
	return analytics.NewPortfolio(assets, s.Weights)
}

// comparisonRecord is the persisted form of a comparison result. Metric
// entries that came out NaN are stored as nulls; encoding/json rejects NaN
// outright, and degenerate metrics are routine for short or synthetic
// histories.
type comparisonRecord struct {
	Labels            []string    `json:"labels"`
	PeriodicReturns   [][]float64 `json:"periodic_returns"`
	CumulativeReturns [][]float64 `json:"cumulative_returns"`
	Benchmark         []float64   `json:"benchmark"`
	Dates             []time.Time `json:"dates,omitempty"`
	Sharpe            []*float64  `json:"sharpe"`
	Alpha             []*float64  `json:"alpha"`
	Beta              []*float64  `json:"beta"`
	Treynor           []*float64  `json:"treynor"`
	InformationRatio  []*float64  `json:"information_ratio"`
}

func newComparisonRecord(r *analytics.ComparisonResult) comparisonRecord {
	return comparisonRecord{
		Labels:            r.Labels,
		PeriodicReturns:   r.PeriodicReturns,
		CumulativeReturns: r.CumulativeReturns,
		Benchmark:         r.Benchmark,
		Dates:             r.Dates,
		Sharpe:            nullifyNaN(r.Sharpe),
		Alpha:             nullifyNaN(r.Alpha),
		Beta:              nullifyNaN(r.Beta),
		Treynor:           nullifyNaN(r.Treynor),
		InformationRatio:  nullifyNaN(r.InformationRatio),
	}
}

func nullifyNaN(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if !math.IsNaN(values[i]) && !math.IsInf(values[i], 0) {
			v := values[i]
			out[i] = &v
		}
	}
	return out
}

// SaveComparison persists a comparison snapshot for later inspection.
func (db *DB) SaveComparison(ctx context.Context, result *analytics.ComparisonResult) (uuid.UUID, error) {
	payload, err := json.Marshal(newComparisonRecord(result))
	if err != nil {
		return uuid.Nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal comparison")
	}

	id := uuid.New()
	query := `
		INSERT INTO comparisons (id, result, created_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := db.ExecContext(ctx, query, id, payload); err != nil {
		return uuid.Nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to save comparison")
	}
	return id, nil
}
