package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults exercises the default-value path through the same
// getEnv/getEnvInt/getEnvBool helpers Load uses, with env keys guaranteed
// unset (t.Setenv can't express "unset", only "set to empty string", so
// Load itself can't be used to observe defaults here).
func TestLoad_Defaults(t *testing.T) {
	require.Equal(t, "4000", getEnv("LUMEN_TEST_UNSET_PORT", "4000"))
	require.Equal(t, "development", getEnv("LUMEN_TEST_UNSET_ENV", "development"))
	assert.Equal(t, 60, getEnvInt("LUMEN_TEST_UNSET_DMX_REFRESH_RATE", 60))
	assert.Equal(t, 1, getEnvInt("LUMEN_TEST_UNSET_DMX_IDLE_RATE", 1))
	assert.Equal(t, 60, getEnvInt("LUMEN_TEST_UNSET_ENGINE_UPDATE_RATE", 60))
	assert.True(t, getEnvBool("LUMEN_TEST_UNSET_ARTNET_ENABLED", true))
	assert.False(t, getEnvBool("LUMEN_TEST_UNSET_NON_INTERACTIVE", false))

	cfg := Load()
	assert.NotEmpty(t, cfg.Port, "Load should always produce a non-empty port, default or not")
	assert.NotEmpty(t, cfg.Env, "Load should always produce a non-empty env, default or not")
}

func TestLoad_CustomEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "file:./prod.db")
	t.Setenv("DMX_UNIVERSE_COUNT", "8")
	t.Setenv("DMX_REFRESH_RATE", "30")
	t.Setenv("DMX_IDLE_RATE", "5")
	t.Setenv("DMX_HIGH_RATE_DURATION", "3000")
	t.Setenv("ARTNET_ENABLED", "false")
	t.Setenv("ARTNET_PORT", "6455")
	t.Setenv("ARTNET_BROADCAST", "192.168.1.255")
	t.Setenv("DMX_DRIFT_THRESHOLD", "100")
	t.Setenv("DMX_DRIFT_THROTTLE", "10000")
	t.Setenv("NON_INTERACTIVE", "true")
	t.Setenv("CORS_ORIGIN", "http://example.com")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "file:./prod.db", cfg.DatabaseURL)
	assert.Equal(t, 8, cfg.DMXUniverseCount)
	assert.Equal(t, 30, cfg.DMXRefreshRate)
	assert.Equal(t, 5, cfg.DMXIdleRate)
	assert.Equal(t, 3000*time.Millisecond, cfg.DMXHighRateDuration)
	assert.False(t, cfg.ArtNetEnabled)
	assert.Equal(t, 6455, cfg.ArtNetPort)
	assert.Equal(t, "192.168.1.255", cfg.ArtNetBroadcast)
	assert.Equal(t, 100, cfg.DMXDriftThreshold)
	assert.Equal(t, 10000, cfg.DMXDriftThrottle)
	assert.True(t, cfg.NonInteractive)
	assert.Equal(t, "http://example.com", cfg.CORSOrigin)
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		env      string
		expected bool
	}{
		{"development", true},
		{"production", false},
		{"staging", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Env: tt.env}
			assert.Equal(t, tt.expected, cfg.IsDevelopment())
		})
	}
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		env      string
		expected bool
	}{
		{"production", true},
		{"development", false},
		{"staging", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Env: tt.env}
			assert.Equal(t, tt.expected, cfg.IsProduction())
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_GET_ENV", "custom_value")
	assert.Equal(t, "custom_value", getEnv("TEST_GET_ENV", "default"))
	assert.Equal(t, "default_value", getEnv("NON_EXISTING_VAR_12345_UNIQUE", "default_value"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT_VAR", "42")
	assert.Equal(t, 42, getEnvInt("TEST_INT_VAR", 10))

	t.Setenv("TEST_INVALID_INT", "not_a_number")
	assert.Equal(t, 10, getEnvInt("TEST_INVALID_INT", 10), "invalid int should fall back to default")

	assert.Equal(t, 100, getEnvInt("NON_EXISTING_INT_VAR_12345_UNIQUE", 100))
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
		setEnv       bool
	}{
		{"true_string", "true", false, true, true},
		{"false_string", "false", true, false, true},
		{"1_string", "1", false, true, true},
		{"0_string", "0", true, false, true},
		{"invalid_string_returns_default", "invalid", true, true, true},
		{"non_existing_returns_default_true", "", true, true, false},
		{"non_existing_returns_default_false", "", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envKey := "TEST_BOOL_VAR_" + tt.name + "_UNIQUE"
			if tt.setEnv {
				t.Setenv(envKey, tt.envValue)
			}
			assert.Equal(t, tt.expected, getEnvBool(envKey, tt.defaultValue))
		})
	}
}

func TestGetEnvInt_ZeroValue(t *testing.T) {
	t.Setenv("TEST_ZERO_INT", "0")
	assert.Equal(t, 0, getEnvInt("TEST_ZERO_INT", 10))
}

func TestGetEnvBool_VariousTrue(t *testing.T) {
	trueValues := []string{"true", "TRUE", "True", "1", "t", "T"}
	for _, val := range trueValues {
		t.Run(val, func(t *testing.T) {
			envKey := "TEST_BOOL_TRUE_" + val
			t.Setenv(envKey, val)
			assert.True(t, getEnvBool(envKey, false))
		})
	}
}

func TestGetEnvBool_VariousFalse(t *testing.T) {
	falseValues := []string{"false", "FALSE", "False", "0", "f", "F"}
	for _, val := range falseValues {
		t.Run(val, func(t *testing.T) {
			envKey := "TEST_BOOL_FALSE_" + val
			t.Setenv(envKey, val)
			assert.False(t, getEnvBool(envKey, true))
		})
	}
}

func TestConfig_StructFields(t *testing.T) {
	cfg := &Config{
		Port:                "4000",
		Env:                 "test",
		DatabaseURL:         "test.db",
		DMXUniverseCount:    4,
		DMXRefreshRate:      44,
		DMXIdleRate:         1,
		DMXHighRateDuration: time.Second,
		ArtNetEnabled:       true,
		ArtNetPort:          6454,
		ArtNetBroadcast:     "255.255.255.255",
		DMXDriftThreshold:   50,
		DMXDriftThrottle:    5000,
		NonInteractive:      false,
		CORSOrigin:          "http://localhost",
	}

	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, 4, cfg.DMXUniverseCount)
	assert.True(t, cfg.ArtNetEnabled)
}
