// Package config fills configuration structs from the environment, reading
// a local .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrParsingConfig  = errors.New("config: failed to parse environment")
	ErrInvalidConfig  = errors.New("config: invalid configuration")
	ErrNilPointer     = errors.New("config: nil pointer")
	ErrLoadingEnvFile = errors.New("config: failed to read env file")
)

// Validator is implemented by configs that check their own values after
// parsing.
type Validator interface {
	Validate() error
}

// Load reads envFiles (".env" when none are given) without overriding
// variables already set, then parses v. Missing files are skipped.
func Load[T any](v *T, envFiles ...string) error {
	if v == nil {
		return ErrNilPointer
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	for _, f := range envFiles {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", f, err))
		}
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
	}
	return nil
}

// MustLoad is Load for startup code; it panics on error.
func MustLoad[T any](v *T, envFiles ...string) {
	if err := Load(v, envFiles...); err != nil {
		panic(err)
	}
}
