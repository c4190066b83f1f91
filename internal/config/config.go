package config

import (
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"datedVamm/internal/vamm"
)

const envPrefix = "VAMM"

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Listen          string
	Journal         string
	StateDir        string
	RPCURL          string
	LendingPool     string
	RateAssets      map[string]string
	StaticIndex     string
	MaxRetries      int
	RetryBackoff    time.Duration
	CORSOrigins     []string
	AllowedCallers  []string
	AllowAllCallers bool
	LogLevel        string

	Spread                 string
	PriceImpactPhi         string
	PriceImpactBeta        string
	ObservationCardinality uint16
	InactiveWindow         time.Duration
	MakerPositionsLimit    int
	MinTick                int32
	MaxTick                int32
}

// Load merges .env, config file, environment variables, and flags into
// ServeConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	defaults := vamm.DefaultMutableConfig()
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"listen":                  ":8080",
		"journal":                 "./data/journal.jsonl",
		"state-dir":               "./data/state",
		"static-index":            "1",
		"max-retries":             5,
		"retry-backoff":           500 * time.Millisecond,
		"cors-origins":            "*",
		"allow-all-callers":       false,
		"log-level":               "info",
		"spread":                  defaults.Spread.String(),
		"price-impact-phi":        defaults.PriceImpactPhi.String(),
		"price-impact-beta":       defaults.PriceImpactBeta.String(),
		"observation-cardinality": int(defaults.ObservationCardinalityTarget),
		"inactive-window":         time.Duration(defaults.InactiveWindowSeconds) * time.Second,
		"maker-positions-limit":   defaults.MakerPositionsLimit,
		"min-tick":                int(defaults.MinTick),
		"max-tick":                int(defaults.MaxTick),
	})
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:          v.GetString("listen"),
		Journal:         v.GetString("journal"),
		StateDir:        v.GetString("state-dir"),
		RPCURL:          v.GetString("rpc"),
		LendingPool:     v.GetString("lending-pool"),
		RateAssets:      getStringMap(v, "rate-assets"),
		StaticIndex:     v.GetString("static-index"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		CORSOrigins:     getStringSlice(v, "cors-origins"),
		AllowedCallers:  getStringSlice(v, "allowed-callers"),
		AllowAllCallers: v.GetBool("allow-all-callers"),
		LogLevel:        v.GetString("log-level"),

		Spread:                 v.GetString("spread"),
		PriceImpactPhi:         v.GetString("price-impact-phi"),
		PriceImpactBeta:        v.GetString("price-impact-beta"),
		ObservationCardinality: uint16(v.GetUint("observation-cardinality")),
		InactiveWindow:         v.GetDuration("inactive-window"),
		MakerPositionsLimit:    v.GetInt("maker-positions-limit"),
		MinTick:                v.GetInt32("min-tick"),
		MaxTick:                v.GetInt32("max-tick"),
	}

	return cfg, nil
}

// MutableDefaults builds the operator settings applied to new pools.
func (c ServeConfig) MutableDefaults() (vamm.MutableConfig, error) {
	spread, err := sdkmath.LegacyNewDecFromStr(c.Spread)
	if err != nil {
		return vamm.MutableConfig{}, fmt.Errorf("parse spread: %w", err)
	}
	phi, err := sdkmath.LegacyNewDecFromStr(c.PriceImpactPhi)
	if err != nil {
		return vamm.MutableConfig{}, fmt.Errorf("parse price impact phi: %w", err)
	}
	beta, err := sdkmath.LegacyNewDecFromStr(c.PriceImpactBeta)
	if err != nil {
		return vamm.MutableConfig{}, fmt.Errorf("parse price impact beta: %w", err)
	}
	m := vamm.MutableConfig{
		Spread:                       spread,
		PriceImpactPhi:               phi,
		PriceImpactBeta:              beta,
		ObservationCardinalityTarget: c.ObservationCardinality,
		MinTick:                      c.MinTick,
		MaxTick:                      c.MaxTick,
		InactiveWindowSeconds:        int64(c.InactiveWindow / time.Second),
		MakerPositionsLimit:          c.MakerPositionsLimit,
	}
	if err := m.Validate(1); err != nil {
		return vamm.MutableConfig{}, err
	}
	return m, nil
}

// newViper loads .env, then layers defaults, environment, flags and the
// config file.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
