package configuration

import (
	"fmt"
	"math"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
)

// ReservedPortThreshold is the highest port the testbed may not use.
const ReservedPortThreshold = 1024

// Settings describes the testbed. It is loaded once and never modified afterwards.
type Settings struct {
	// Name of the testbed, used to tag instances.
	Testbed string
	Key     KeySettings
	// Port of the identity provider; witnesses use the following ports.
	BasePort  int
	Repo      RepoSettings
	Instances InstanceSettings
}

type KeySettings struct {
	// Name of the key pair registered with the cloud provider.
	Name string
	// Path to the private key used to log into the instances.
	Path string
}

type RepoSettings struct {
	Name   string
	URL    string
	Branch string
}

type InstanceSettings struct {
	Type    string
	Regions []string
}

var settingsKeys = []string{
	"testbed",
	"key.name",
	"key.path",
	"port",
	"repo.name",
	"repo.url",
	"repo.branch",
	"instances.type",
	"instances.regions",
}

// LoadSettings reads the JSON settings file at path.
// Every key is required. $VAR and ${VAR} in the key name and path are replaced from the environment
// and a leading ~ in the key path is expanded to the home directory.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.WithStack(&bencherrors.ErrConfigFile{Path: path, Err: err})
	}
	for _, key := range settingsKeys {
		if !v.IsSet(key) {
			return nil, errors.WithStack(&bencherrors.ErrMissingKey{Key: key, Source: "settings"})
		}
	}

	var err error
	settings := &Settings{}
	fields := map[string]*string{
		"testbed":        &settings.Testbed,
		"key.name":       &settings.Key.Name,
		"key.path":       &settings.Key.Path,
		"repo.name":      &settings.Repo.Name,
		"repo.url":       &settings.Repo.URL,
		"repo.branch":    &settings.Repo.Branch,
		"instances.type": &settings.Instances.Type,
	}
	for key, field := range fields {
		if *field, err = stringSetting(v, key); err != nil {
			return nil, err
		}
	}
	if settings.BasePort, err = portSetting(v, "port"); err != nil {
		return nil, err
	}
	if settings.Instances.Regions, err = regionsSetting(v, "instances.regions"); err != nil {
		return nil, err
	}

	if settings.Key.Name, err = ExpandEnv(settings.Key.Name); err != nil {
		return nil, err
	}
	if settings.Key.Path, err = ExpandEnv(settings.Key.Path); err != nil {
		return nil, err
	}
	if settings.Key.Path, err = homedir.Expand(settings.Key.Path); err != nil {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "key.path",
			Value:   settings.Key.Path,
			Message: err.Error(),
		})
	}
	return settings, nil
}

// ExpandEnv replaces $VAR and ${VAR} in value with the value of the environment variable.
// Unlike os.ExpandEnv, a variable that isn't set is an error rather than the empty string.
func ExpandEnv(value string) (string, error) {
	missing := ""
	expanded := os.Expand(value, func(name string) string {
		v, ok := os.LookupEnv(name)
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", errors.WithStack(&bencherrors.ErrMissingEnv{Name: missing, Value: value})
	}
	return expanded, nil
}

func stringSetting(v *viper.Viper, key string) (string, error) {
	s, ok := v.Get(key).(string)
	if !ok {
		return "", errors.WithStack(&bencherrors.ErrInvalidType{Key: key, Value: v.Get(key), Expected: "string"})
	}
	if s == "" {
		return "", errors.WithStack(&bencherrors.ErrInvalidArgument{Name: key, Value: s, Message: "must not be empty"})
	}
	return s, nil
}

// portSetting accepts any integral number; JSON numbers are decoded as float64.
func portSetting(v *viper.Viper, key string) (int, error) {
	var port int
	switch value := v.Get(key).(type) {
	case int:
		port = value
	case int64:
		port = int(value)
	case float64:
		if value != math.Trunc(value) {
			return 0, errors.WithStack(&bencherrors.ErrInvalidType{Key: key, Value: value, Expected: "integer"})
		}
		port = int(value)
	default:
		return 0, errors.WithStack(&bencherrors.ErrInvalidType{Key: key, Value: value, Expected: "integer"})
	}
	if port <= ReservedPortThreshold || port > math.MaxUint16 {
		return 0, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    key,
			Value:   port,
			Message: fmt.Sprintf("must be in (%d, %d]", ReservedPortThreshold, math.MaxUint16),
		})
	}
	return port, nil
}

// regionsSetting accepts either a single region or a non-empty list of regions.
func regionsSetting(v *viper.Viper, key string) ([]string, error) {
	switch value := v.Get(key).(type) {
	case string:
		if value == "" {
			return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{Name: key, Value: value, Message: "must not be empty"})
		}
		return []string{value}, nil
	case []interface{}:
		if len(value) == 0 {
			return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{Name: key, Value: value, Message: "at least one region is required"})
		}
		regions := make([]string, len(value))
		for i, item := range value {
			region, ok := item.(string)
			if !ok || region == "" {
				return nil, errors.WithStack(&bencherrors.ErrInvalidType{Key: key, Value: item, Expected: "non-empty string"})
			}
			regions[i] = region
		}
		return regions, nil
	default:
		return nil, errors.WithStack(&bencherrors.ErrInvalidType{Key: key, Value: value, Expected: "string or list of strings"})
	}
}
