package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MariaTargetRepo реализует TargetRepo для MariaDB/MySQL.
// Использует таблицу unit_targets; удобна, когда аналитика уже живёт в SQL.
type MariaTargetRepo struct {
	db *sql.DB
}

// NewMariaTargetRepo подключается к базе и создает таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname?parseTime=true)
func NewMariaTargetRepo(ctx context.Context, dsn string) (*MariaTargetRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaTargetRepo{db: db}
	if err := repo.createTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// createTable создает таблицу unit_targets, если она не существует.
func (r *MariaTargetRepo) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS unit_targets (
			unit_id    BIGINT UNSIGNED PRIMARY KEY,
			target_id  BIGINT UNSIGNED NOT NULL DEFAULT 0,
			has_target BOOLEAN         NOT NULL DEFAULT FALSE,
			state      VARCHAR(16)     NOT NULL,
			tick       BIGINT UNSIGNED NOT NULL,
			updated_at DATETIME(6)     NOT NULL,
			INDEX idx_target (target_id)
		) ENGINE=InnoDB
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы unit_targets: %w", err)
	}
	return nil
}

const upsertTargetQuery = `
	INSERT INTO unit_targets (unit_id, target_id, has_target, state, tick, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		target_id = VALUES(target_id),
		has_target = VALUES(has_target),
		state = VALUES(state),
		tick = VALUES(tick),
		updated_at = VALUES(updated_at)
`

// Save сохраняет снимок (INSERT ... ON DUPLICATE KEY UPDATE).
func (r *MariaTargetRepo) Save(ctx context.Context, snap TargetSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, upsertTargetQuery,
		snap.UnitID, snap.TargetID, snap.HasTarget, snap.State, snap.Tick, snap.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения снимка юнита %d: %w", snap.UnitID, err)
	}
	return nil
}

// Load загружает снимок юнита.
func (r *MariaTargetRepo) Load(ctx context.Context, unitID uint64) (TargetSnapshot, bool, error) {
	query := `SELECT unit_id, target_id, has_target, state, tick, updated_at FROM unit_targets WHERE unit_id = ?`

	var snap TargetSnapshot
	err := r.db.QueryRowContext(ctx, query, unitID).Scan(
		&snap.UnitID, &snap.TargetID, &snap.HasTarget, &snap.State, &snap.Tick, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TargetSnapshot{}, false, nil
	}
	if err != nil {
		return TargetSnapshot{}, false, fmt.Errorf("ошибка загрузки снимка юнита %d: %w", unitID, err)
	}
	return snap, true, nil
}

// Delete удаляет снимок юнита.
func (r *MariaTargetRepo) Delete(ctx context.Context, unitID uint64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM unit_targets WHERE unit_id = ?`, unitID)
	if err != nil {
		return fmt.Errorf("ошибка удаления снимка юнита %d: %w", unitID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: юнит %d", ErrNotFound, unitID)
	}
	return nil
}

// BatchSave сохраняет снимки в одной транзакции.
func (r *MariaTargetRepo) BatchSave(ctx context.Context, snaps []TargetSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	if err := validateBatch(snaps); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertTargetQuery)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snaps {
		if _, err := stmt.ExecContext(ctx,
			snap.UnitID, snap.TargetID, snap.HasTarget, snap.State, snap.Tick, snap.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("ошибка сохранения снимка юнита %d: %w", snap.UnitID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Close закрывает соединение с базой.
func (r *MariaTargetRepo) Close() error {
	return r.db.Close()
}
