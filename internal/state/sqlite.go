package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MuchTitan/awatchlog/internal/database"
)

// SQLiteStore keeps all states in one table of a shared database.
type SQLiteStore struct {
	db *database.DBManager
}

// NewSQLiteStore opens dbFile and creates the state table.
func NewSQLiteStore(dbFile string) (*SQLiteStore, error) {
	dbManager, err := database.NewDBManager(dbFile)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: dbManager}
	if err := s.createTables(); err != nil {
		dbManager.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	query := `CREATE TABLE IF NOT EXISTS tail_state (
        file_key TEXT NOT NULL PRIMARY KEY,
        token TEXT NOT NULL,
        byte_offset INTEGER NOT NULL,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    )`
	index := `CREATE INDEX IF NOT EXISTS tail_state_updated_at ON tail_state (updated_at)`

	err := s.db.ExecuteWriteTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(query); err != nil {
			return err
		}
		_, err := tx.Exec(index)
		return err
	})
	if err != nil {
		return fmt.Errorf("could not create db table tail_state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(key string) (TailState, error) {
	query := `SELECT token, byte_offset FROM tail_state WHERE file_key = $1`

	var st TailState
	var offset int64
	err := s.db.QueryRow(context.Background(), query, key).Scan(&st.Token, &offset)
	if errors.Is(err, sql.ErrNoRows) {
		return TailState{}, ErrNotFound
	}
	if err != nil {
		return TailState{}, fmt.Errorf("could not load state %s: %w", key, err)
	}
	if offset < 0 {
		return TailState{}, fmt.Errorf("corrupt state %s: negative offset %d", key, offset)
	}
	st.Offset = uint64(offset)
	return st, nil
}

func (s *SQLiteStore) Save(key string, st TailState) error {
	query := `
        INSERT OR REPLACE INTO tail_state
        (file_key, token, byte_offset, updated_at)
        VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecuteWrite(context.Background(), query,
		key,
		st.Token,
		int64(st.Offset),
		time.Now(),
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
