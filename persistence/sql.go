// persistence/sql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"
	// SQLite 驱动
	_ "modernc.org/sqlite"

	"github.com/wfunc/landfluss/models"
)

const queryTimeout = 5 * time.Second

var schemas = map[string]string{
	DriverPostgres: `
        CREATE TABLE IF NOT EXISTS round_records (
            id BIGSERIAL PRIMARY KEY,
            game_id TEXT NOT NULL,
            round BIGINT NOT NULL,
            letter VARCHAR(1) NOT NULL,
            categories JSONB NOT NULL,
            players JSONB NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ
        );
        CREATE INDEX IF NOT EXISTS idx_round_records_game_id ON round_records(game_id);
    `,
	DriverSQLite: `
        CREATE TABLE IF NOT EXISTS round_records (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            game_id TEXT NOT NULL,
            round INTEGER NOT NULL,
            letter TEXT NOT NULL,
            categories TEXT NOT NULL,
            players TEXT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_round_records_game_id ON round_records(game_id);
    `,
}

var queries = map[string]struct{ insert, list string }{
	DriverPostgres: {
		insert: `INSERT INTO round_records (game_id, round, letter, categories, players, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		list:   `SELECT game_id, round, letter, categories, players, created_at FROM round_records WHERE game_id = $1 AND deleted_at IS NULL ORDER BY round, id`,
	},
	DriverSQLite: {
		insert: `INSERT INTO round_records (game_id, round, letter, categories, players, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		list:   `SELECT game_id, round, letter, categories, players, created_at FROM round_records WHERE game_id = ? AND deleted_at IS NULL ORDER BY round, id`,
	},
}

// SQLStore keeps the history with database/sql, on PostgreSQL (lib/pq) or SQLite.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore opens dsn with driver and creates the schema.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

func (p *SQLStore) SaveRound(ctx context.Context, rec models.RoundRecord) error {
	categories, err := json.Marshal(rec.Categories)
	if err != nil {
		return err
	}
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = p.db.ExecContext(ctx, queries[p.driver].insert,
		rec.GameID, rec.Round, string(rec.Letter), string(categories), string(players), rec.CreatedAt.UTC())
	return err
}

func (p *SQLStore) ListRounds(ctx context.Context, gameID string) ([]models.RoundRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, queries[p.driver].list, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []models.RoundRecord
	for rows.Next() {
		var (
			rec                 models.RoundRecord
			letter              string
			categories, players []byte
		)
		if err := rows.Scan(&rec.GameID, &rec.Round, &letter, &categories, &players, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Letter = models.Letter(letter)
		if err := json.Unmarshal(categories, &rec.Categories); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
		if err := json.Unmarshal(players, &rec.Players); err != nil {
			return nil, fmt.Errorf("decode players: %w", err)
		}
		rounds = append(rounds, rec)
	}
	return rounds, rows.Err()
}

// Close 关闭数据库连接
func (p *SQLStore) Close() error {
	return p.db.Close()
}
