package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/sangamner-ai/sai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(suite.T(), "*", cfg.Server.AllowOrigin)
	assert.Equal(suite.T(), "gemini", cfg.Provider.Type)
	assert.Equal(suite.T(), internal.DefaultGeminiModel, cfg.Provider.Model)
	assert.Equal(suite.T(), float32(0), cfg.Provider.Temperature)
	assert.Equal(suite.T(), internal.DefaultNearbyEndpoint, cfg.Nearby.Endpoint)
	assert.Equal(suite.T(), 30*time.Second, cfg.Nearby.Timeout)
	assert.Equal(suite.T(), 3, cfg.Harness.MaxParseRetries)
	assert.Equal(suite.T(), 10, cfg.Harness.MaxIterations)
	assert.Equal(suite.T(), 3, cfg.Harness.MaxToolDepth)
	assert.Equal(suite.T(), 30*time.Second, cfg.Harness.ToolTimeout)
	assert.Equal(suite.T(), time.Second, cfg.Harness.RateLimitRefillRate)
	assert.Equal(suite.T(), "lru", cfg.Harness.CacheBackend)
	assert.False(suite.T(), cfg.Database.Enabled)
	assert.Equal(suite.T(), "info", cfg.Log.Level)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
server:
  addr: ":9090"
provider:
  type: "rules"
  model: "offline"
nearby:
  endpoint: "http://localhost:1234/api/find-nearby/"
  timeout: "5s"
harness:
  max_parse_retries: 5
  cache_backend: "redis"
database:
  enabled: true
  path: "./turns.db"
`
	configPath := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configPath)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), ":9090", cfg.Server.Addr)
	assert.Equal(suite.T(), "rules", cfg.Provider.Type)
	assert.Equal(suite.T(), "offline", cfg.Provider.Model)
	assert.Equal(suite.T(), "http://localhost:1234/api/find-nearby/", cfg.Nearby.Endpoint)
	assert.Equal(suite.T(), 5*time.Second, cfg.Nearby.Timeout)
	assert.Equal(suite.T(), 5, cfg.Harness.MaxParseRetries)
	assert.Equal(suite.T(), "redis", cfg.Harness.CacheBackend)
	assert.True(suite.T(), cfg.Database.Enabled)
	assert.Equal(suite.T(), "./turns.db", cfg.Database.Path)

	// Untouched keys keep their defaults
	assert.Equal(suite.T(), 10, cfg.Harness.MaxIterations)
}

func (suite *ConfigTestSuite) TestLoadConfigDiscoversFileInWorkingDir() {
	configContent := `
log:
  level: "debug"
`
	require.NoError(suite.T(), os.WriteFile(filepath.Join(suite.tempDir, "config.yaml"), []byte(configContent), 0o644))

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "debug", cfg.Log.Level)
}

func (suite *ConfigTestSuite) TestGoogleAPIKeyFromEnvironment() {
	suite.T().Setenv("GOOGLE_API_KEY", "test-google-key")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "test-google-key", cfg.Google.APIKey)
	assert.Equal(suite.T(), "test-google-key", cfg.SearchAPIKey())
	// gemini provider falls back to the Google key
	assert.Equal(suite.T(), "test-google-key", cfg.ProviderAPIKey())
}

func (suite *ConfigTestSuite) TestEnvironmentOverridesNestedKeys() {
	suite.T().Setenv("HARNESS_MAX_ITERATIONS", "4")
	suite.T().Setenv("PROVIDER_TYPE", "ollama")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 4, cfg.Harness.MaxIterations)
	assert.Equal(suite.T(), "ollama", cfg.Provider.Type)
}

func (suite *ConfigTestSuite) TestProviderAPIKeyDoesNotLeakGoogleKeyToOtherProviders() {
	cfg := &Config{
		Provider: ProviderConfig{Type: "anthropic"},
		Google:   GoogleConfig{APIKey: "google"},
	}
	assert.Empty(suite.T(), cfg.ProviderAPIKey())
}

func (suite *ConfigTestSuite) TestLoadConfigMissingExplicitFile() {
	_, err := LoadConfig(filepath.Join(suite.tempDir, "missing.yaml"))
	assert.Error(suite.T(), err)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidYAML() {
	configPath := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configPath, []byte("server: [unterminated"), 0o644))

	_, err := LoadConfig(configPath)
	assert.Error(suite.T(), err)
}
