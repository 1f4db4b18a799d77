// internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "insta", cfg.Logger().ServiceName)
	assert.Equal(t, "http://localhost:3000", cfg.Server().URL)
	assert.Equal(t, 1920, cfg.Server().Width)
	assert.Equal(t, time.Second, cfg.Server().SettleDelay)
	assert.True(t, cfg.Retry().Enabled)
	assert.Equal(t, 5, cfg.Retry().MaxAttempts)
	assert.Equal(t, 2.0, cfg.Retry().BackoffFactor)
	assert.True(t, cfg.Observation().RequireVisible)
	assert.Nil(t, cfg.Observation().Viewport)
	assert.Equal(t, 100, cfg.Observation().MaxLabelLength)
	assert.Equal(t, GrammarJSON, cfg.Action().Grammar)
	assert.False(t, cfg.Store().Enabled)

	assert.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		noURL := *cfg
		noURL.ServerCfg.URL = ""
		err := noURL.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "server.url is a required configuration field")

		badSize := *cfg
		badSize.ServerCfg.Height = 0
		err = badSize.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "server.width and server.height must be positive integers")

		badGrammar := *cfg
		badGrammar.ActionCfg.Grammar = "yaml"
		err = badGrammar.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), `action.grammar must be "json" or "call_chain"`)

		storeWithoutURL := *cfg
		storeWithoutURL.StoreCfg.Enabled = true
		err = storeWithoutURL.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "INSTA_STORE_URL")
	})

	t.Run("Retry Validation", func(t *testing.T) {
		valid := RetryConfig{Enabled: true, MaxAttempts: 3, BackoffFactor: 2}
		assert.NoError(t, valid.Validate())

		disabled := RetryConfig{Enabled: false}
		assert.NoError(t, disabled.Validate(), "a disabled policy needs no attempts")

		noAttempts := valid
		noAttempts.MaxAttempts = 0
		err := noAttempts.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max_attempts must be greater than 0")

		negativeFactor := valid
		negativeFactor.BackoffFactor = -1
		assert.Error(t, negativeFactor.Validate())
	})

	t.Run("Observation Validation", func(t *testing.T) {
		valid := ObservationConfig{MaxLabelLength: 50, Viewport: &ViewportConfig{Width: 100, Height: 100}}
		assert.NoError(t, valid.Validate())

		noLabel := valid
		noLabel.MaxLabelLength = 0
		assert.Error(t, noLabel.Validate())

		negativeViewport := valid
		negativeViewport.Viewport = &ViewportConfig{Width: -1, Height: 10}
		err := negativeViewport.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "viewport width and height must not be negative")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
server:
  url: "http://automation:3000"
  settle_delay: 250ms
observation:
  viewport:
    x: 0
    y: 0
    width: 1280
    height: 720
action:
  grammar: call_chain
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "http://automation:3000", cfg.Server().URL)
		assert.Equal(t, 250*time.Millisecond, cfg.Server().SettleDelay)
		require.NotNil(t, cfg.Observation().Viewport)
		assert.Equal(t, 1280.0, cfg.Observation().Viewport.Width)
		assert.Equal(t, GrammarCallChain, cfg.Action().Grammar)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("retry.max_attempts", 0) // Intentionally invalid

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "max_attempts must be greater than 0")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("store.enabled", true)

		testURL := "postgres://envvar/trajectories"
		t.Setenv("INSTA_STORE_URL", testURL)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, testURL, cfg.Store().URL)
	})

	t.Run("Log File Home Expansion", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		v := viper.New()
		SetDefaults(v)
		v.Set("logger.log_file", "~/insta.log")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "insta.log"), cfg.Logger().LogFile)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetServerURL("http://other:9000")
	iface.SetServerSettleDelay(0)
	iface.SetActionGrammar(GrammarCallChain)
	iface.SetObservationViewport(&ViewportConfig{Width: 100, Height: 100})

	assert.Equal(t, "http://other:9000", cfg.Server().URL)
	assert.Zero(t, cfg.Server().SettleDelay)
	assert.Equal(t, GrammarCallChain, cfg.Action().Grammar)
	require.NotNil(t, cfg.Observation().Viewport)
	assert.Equal(t, 100.0, cfg.Observation().Viewport.Height)
}
