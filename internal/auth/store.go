package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"calreport/internal/config"
)

// ErrNoToken is returned by a store that has nothing cached.
var ErrNoToken = errors.New("no cached token")

// TokenStore persists an OAuth token between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// OpenStore returns the store selected in cfg. Stores that hold resources
// also implement io.Closer.
func OpenStore(cfg config.TokenConfig) (TokenStore, error) {
	switch cfg.Store {
	case config.StoreFile:
		return &FileStore{Path: cfg.Path}, nil
	case config.StoreSQLite:
		return OpenSQLiteStore(cfg.Path, cfg.Account)
	case config.StoreEnv:
		return EnvStore{Var: cfg.EnvVar}, nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Store)
	}
}

// FileStore keeps the token as JSON in a single file, overwritten on save.
type FileStore struct {
	Path string
}

func (s *FileStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", s.Path, err)
	}
	return tok, nil
}

func (s *FileStore) Save(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("encode token: %w", err)
	}
	return f.Close()
}

// EnvStore reads the token JSON from an environment variable. It is read-only.
type EnvStore struct {
	Var string
}

func (s EnvStore) Load() (*oauth2.Token, error) {
	raw := os.Getenv(s.Var)
	if raw == "" {
		return nil, ErrNoToken
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal([]byte(raw), tok); err != nil {
		return nil, fmt.Errorf("decode token from $%s: %w", s.Var, err)
	}
	return tok, nil
}

// Save is a no-op; the environment cannot be written back.
func (s EnvStore) Save(*oauth2.Token) error {
	return nil
}
