// Package config fills tagged structs from the environment.
//
// A .env file in the working directory is read once, before the first
// struct is parsed; variables already set in the process win over the file.
// Each struct type is parsed once and the result is reused on later calls.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	ErrNilPointer    = errors.New("nil pointer passed to config loader")
)

var (
	dotenv sync.Once
	loaded sync.Map // reflect.Type -> any
	locks  sync.Map // reflect.Type -> *sync.Mutex
)

// Load parses environment variables into v according to its env tags.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenv.Do(func() {
		// a missing .env is normal outside local development
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()
	if cached, ok := loaded.Load(key); ok {
		*v = cached.(T)
		return nil
	}

	mu, _ := locks.LoadOrStore(key, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	if cached, ok := loaded.Load(key); ok {
		*v = cached.(T)
		return nil
	}
	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	loaded.Store(key, parsed)
	*v = parsed
	return nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}
