package schema

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the schema retriever's tunables. This is the config layer
// the distilled spec.md omits (spec.md §4.2 only specifies the negative
// cache TTL; everything else here is an ambient-stack addition per
// SPEC_FULL.md).
type Config struct {
	// BasicTTL/EverythingTTL are how long a positive cache entry for the
	// "basic"/"everything" level lives before it is considered stale.
	BasicTTL      time.Duration
	EverythingTTL time.Duration

	// NegativeTTL is the negative-cache lifetime (spec §4.2: "a 10-minute
	// negative cache entry").
	NegativeTTL time.Duration

	// Debounce is how long the retriever waits for more requests to join
	// a forming batch before firing it (spec §4.2/§5: "yields control ...
	// one event-loop turn").
	Debounce time.Duration
}

// DefaultConfig matches the defaults implied by spec.md exactly (the
// 10-minute negative TTL of §4.2/§8 property #8).
func DefaultConfig() Config {
	return Config{
		BasicTTL:      1 * time.Hour,
		EverythingTTL: 1 * time.Hour,
		NegativeTTL:   10 * time.Minute,
		Debounce:      0,
	}
}

// LoadConfig loads retriever tunables from a .env-style file at path using
// github.com/joho/godotenv, falling back to DefaultConfig for any value not
// present (and when the file itself doesn't exist). Recognized keys:
// THINGTALK_BASIC_TTL_MS, THINGTALK_EVERYTHING_TTL_MS,
// THINGTALK_NEGATIVE_TTL_MS, THINGTALK_DEBOUNCE_MS.
func LoadConfig(path string) Config {
	cfg := DefaultConfig()

	env, err := godotenv.Read(path)
	if err != nil {
		return cfg
	}

	if v, ok := env["THINGTALK_BASIC_TTL_MS"]; ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.BasicTTL = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := env["THINGTALK_EVERYTHING_TTL_MS"]; ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.EverythingTTL = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := env["THINGTALK_NEGATIVE_TTL_MS"]; ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.NegativeTTL = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := env["THINGTALK_DEBOUNCE_MS"]; ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Debounce = time.Duration(ms) * time.Millisecond
		}
	}
	return cfg
}

// LoadConfigFromEnv applies the same keys directly from the process
// environment, for deployments that inject configuration without a file.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, ok := os.LookupEnv("THINGTALK_BASIC_TTL_MS"); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.BasicTTL = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv("THINGTALK_EVERYTHING_TTL_MS"); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.EverythingTTL = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv("THINGTALK_NEGATIVE_TTL_MS"); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.NegativeTTL = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv("THINGTALK_DEBOUNCE_MS"); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Debounce = time.Duration(ms) * time.Millisecond
		}
	}
	return cfg
}
