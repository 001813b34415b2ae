package auth

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

// SQLiteStore keeps tokens in a sqlite database, one row per account.
type SQLiteStore struct {
	db      *sql.DB
	account string
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path, account string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open token database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS tokens (
		account_name TEXT PRIMARY KEY,
		token TEXT)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create tokens table: %w", err)
	}

	return &SQLiteStore{db: db, account: account}, nil
}

func (s *SQLiteStore) Load() (*oauth2.Token, error) {
	var tokenJSON []byte
	err := s.db.QueryRow("SELECT token FROM tokens WHERE account_name = ?", s.account).Scan(&tokenJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("retrieve token from database: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &tok, nil
}

func (s *SQLiteStore) Save(tok *oauth2.Token) error {
	tokenJSON, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("INSERT OR REPLACE INTO tokens (account_name, token) VALUES (?, ?)", s.account, string(tokenJSON))
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
