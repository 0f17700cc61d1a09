package configuration

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
)

// Key is a node identity written by the key generator (`witness generate --filename <path>`).
// Only the name is used here; the secret is read by the node itself.
type Key struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// LoadKey reads the key file at path.
func LoadKey(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(&bencherrors.ErrConfigFile{Path: path, Err: err})
	}
	var key Key
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, errors.WithStack(&bencherrors.ErrConfigFile{Path: path, Err: err})
	}
	if key.Name == "" {
		return nil, errors.WithStack(&bencherrors.ErrMissingKey{Key: "name", Source: path})
	}
	if key.Secret == "" {
		return nil, errors.WithStack(&bencherrors.ErrMissingKey{Key: "secret", Source: path})
	}
	return &key, nil
}
