package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	TableName string
	Prefix    string
	Rows      int
	Days      int
	Customers int
	Seed      int64
}

func DefaultConfig() Config {
	return Config{
		TableName: "orders",
		Prefix:    "datasets",
		Rows:      2000,
		Days:      90,
		Customers: 150,
		Seed:      time.Now().UTC().UnixNano(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if raw, ok := lookup("REPORTDESK_SEED_TABLE"); ok {
		cfg.TableName = strings.TrimSpace(raw)
	}
	if raw, ok := lookup("REPORTDESK_SEED_PREFIX"); ok {
		cfg.Prefix = strings.TrimSpace(raw)
	}
	if err := applyInt(lookup, "REPORTDESK_SEED_ROWS", &cfg.Rows); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "REPORTDESK_SEED_DAYS", &cfg.Days); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "REPORTDESK_SEED_CUSTOMERS", &cfg.Customers); err != nil {
		return Config{}, err
	}
	if raw, ok := lookup("REPORTDESK_SEED_SEED"); ok {
		value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REPORTDESK_SEED_SEED: %w", err)
		}
		cfg.Seed = value
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.TableName == "":
		return fmt.Errorf("seed table name is required")
	case c.Rows <= 0:
		return fmt.Errorf("seed rows must be positive")
	case c.Days <= 0:
		return fmt.Errorf("seed days must be positive")
	case c.Customers <= 0:
		return fmt.Errorf("seed customers must be positive")
	}
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}
