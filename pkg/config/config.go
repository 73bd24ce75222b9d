// Package config loads typed configuration structs from the environment,
// optionally seeded from an env file (-env flag, falling back to ./.env).
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

var envFile = struct {
	once sync.Once
	path string
}{}

// MustNew is New but panics on error. Intended for process startup only.
func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New populates a T from environment variables with the given prefix. An env
// file, when present, is exported into the process environment first so that
// envconfig sees it.
func New[T any](prefix string) (*T, error) {
	if err := seedEnvironment(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func seedEnvironment() error {
	if path := envFilePath(); path != "" {
		return exportEnvFile(path)
	}

	// No explicit file; pick up ./.env when one exists.
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvFile(".env")
}

func envFilePath() string {
	envFile.once.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFile.path, "env", "", "path to .env file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})
	return strings.TrimSpace(envFile.path)
}

func exportEnvFile(path string) error {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}

	for k, v := range viper.AllSettings() {
		if err := os.Setenv(strings.ToUpper(k), fmt.Sprint(v)); err != nil {
			return err
		}
	}
	return nil
}
