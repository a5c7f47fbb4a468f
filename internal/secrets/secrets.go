// Package secrets manages the persisted secrets file under the config
// directory. Secrets are generated on first start and reused afterwards so
// sessions survive restarts.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mpetrov/harmonia/internal/constants"
)

type Secrets struct {
	JWTSecret string `json:"jwt_secret"`
}

// Load reads the secrets file at path, creating it with fresh values when it
// does not exist. The file is written with owner-only permissions.
func Load(path string) (*Secrets, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var s Secrets
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse secrets file: %w", err)
		}
		if s.JWTSecret != "" {
			return &s, nil
		}
		// Empty or partial file gets regenerated below.
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	s, err := generate()
	if err != nil {
		return nil, err
	}
	if err := save(path, s); err != nil {
		return nil, err
	}
	return s, nil
}

func generate() (*Secrets, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return &Secrets{
		JWTSecret: base64.RawURLEncoding.EncodeToString(buf),
	}, nil
}

func save(path string, s *Secrets) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return fmt.Errorf("failed to create secrets dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, constants.SecretsPermissions); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}
