package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zenrsr/capx-stockfolio/internal/models"
)

var ErrNotFound = errors.New("not found")

// HoldingRepository is the persistence collaborator behind the holdings store.
// It is implemented by the local SQLite store and by the REST backend client.
type HoldingRepository interface {
	ListHoldings(ctx context.Context) ([]models.Holding, error)
	GetHolding(ctx context.Context, id int64) (models.Holding, error)
	CreateHolding(ctx context.Context, h models.Holding) (models.Holding, error)
	UpdateHolding(ctx context.Context, h models.Holding) (models.Holding, error)
	DeleteHolding(ctx context.Context, id int64) error
}

type AlertRepository interface {
	ListAlerts(ctx context.Context) ([]models.PriceAlert, error)
	CreateAlert(ctx context.Context, alert models.PriceAlert) (models.PriceAlert, error)
	DeleteAlert(ctx context.Context, id int64) error
	MarkAlertTriggered(ctx context.Context, id int64, triggeredAt time.Time) error
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const holdingColumns = `id, name, ticker, asset_class, cat, quantity, buy_price, current_price, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanHolding(row scanner) (models.Holding, error) {
	var h models.Holding
	if err := row.Scan(&h.ID, &h.Name, &h.Ticker, &h.AssetClass, &h.Category, &h.Quantity, &h.BuyPrice, &h.CurrentPrice, &h.CreatedAt); err != nil {
		return models.Holding{}, err
	}
	return h.Normalize(), nil
}

func (s *SQLiteStore) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+holdingColumns+` FROM holdings ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	holdings := make([]models.Holding, 0)
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}
	return holdings, nil
}

func (s *SQLiteStore) GetHolding(ctx context.Context, id int64) (models.Holding, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE id = ?`, id)
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Holding{}, fmt.Errorf("holding %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Holding{}, fmt.Errorf("fetch holding: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) CreateHolding(ctx context.Context, h models.Holding) (models.Holding, error) {
	h = h.Normalize()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO holdings(name, ticker, asset_class, cat, quantity, buy_price, current_price)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.Name, h.Ticker, h.AssetClass, h.Category, h.Quantity, h.BuyPrice, h.CurrentPrice)
	if err != nil {
		return models.Holding{}, fmt.Errorf("insert holding: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Holding{}, fmt.Errorf("holding last insert id: %w", err)
	}
	return s.GetHolding(ctx, id)
}

// UpdateHolding rewrites the mutable fields of a holding. Ticker and asset
// class are fixed at creation.
func (s *SQLiteStore) UpdateHolding(ctx context.Context, h models.Holding) (models.Holding, error) {
	h = h.Normalize()
	res, err := s.db.ExecContext(ctx, `
		UPDATE holdings
		SET name = ?, cat = ?, quantity = ?, buy_price = ?, current_price = ?
		WHERE id = ?`,
		h.Name, h.Category, h.Quantity, h.BuyPrice, h.CurrentPrice, h.ID)
	if err != nil {
		return models.Holding{}, fmt.Errorf("update holding: %w", err)
	}
	if err := affected(res, "holding", h.ID); err != nil {
		return models.Holding{}, err
	}
	return s.GetHolding(ctx, h.ID)
}

func (s *SQLiteStore) DeleteHolding(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM holdings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete holding: %w", err)
	}
	return affected(res, "holding", id)
}

const alertColumns = `id, ticker, asset_class, upper_threshold, lower_threshold, created_at, triggered, triggered_at`

func scanAlert(row scanner) (models.PriceAlert, error) {
	var a models.PriceAlert
	var triggeredInt int
	var triggeredAt sql.NullTime
	if err := row.Scan(&a.ID, &a.Ticker, &a.AssetClass, &a.UpperThreshold, &a.LowerThreshold, &a.CreatedAt, &triggeredInt, &triggeredAt); err != nil {
		return models.PriceAlert{}, err
	}
	a.Triggered = triggeredInt == 1
	if triggeredAt.Valid {
		t := triggeredAt.Time
		a.TriggeredAt = &t
	}
	return a, nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context) ([]models.PriceAlert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM price_alerts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]models.PriceAlert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

func (s *SQLiteStore) CreateAlert(ctx context.Context, alert models.PriceAlert) (models.PriceAlert, error) {
	alert.Ticker = models.NormalizeTicker(alert.Ticker)
	if !alert.AssetClass.Valid() {
		alert.AssetClass = models.Classify(alert.Ticker)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO price_alerts(ticker, asset_class, upper_threshold, lower_threshold)
		VALUES (?, ?, ?, ?)`, alert.Ticker, alert.AssetClass, alert.UpperThreshold, alert.LowerThreshold)
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("insert alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("alert last insert id: %w", err)
	}

	out, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM price_alerts WHERE id = ?`, id))
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("fetch inserted alert: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM price_alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return affected(res, "alert", id)
}

func (s *SQLiteStore) MarkAlertTriggered(ctx context.Context, id int64, triggeredAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE price_alerts
		SET triggered = 1, triggered_at = ?
		WHERE id = ?`, triggeredAt, id)
	if err != nil {
		return fmt.Errorf("mark alert triggered: %w", err)
	}
	return nil
}

func affected(res sql.Result, what string, id int64) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
