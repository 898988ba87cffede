package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Upload.Bucket = "mybucket"
	return cfg
}

func TestDefault_IsValidWithBucket(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Upload.RollingOnExit)
	assert.Equal(t, DefaultDrainTimeout, cfg.Upload.DrainTimeout)
	assert.NotEmpty(t, cfg.Upload.InstanceID)
}

func TestValidate_ReportsSnakeCaseFields(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"missing bucket", func(c *Config) { c.Upload.Bucket = "" }, "upload.bucket"},
		{"malformed region", func(c *Config) { c.Upload.Region = "US West 2" }, "upload.region"},
		{"endpoint without scheme", func(c *Config) { c.Upload.Endpoint = "minio:9000" }, "upload.endpoint"},
		{"endpoint without host", func(c *Config) { c.Upload.Endpoint = "http://" }, "upload.endpoint"},
		{"access key without secret", func(c *Config) { c.Upload.AccessKey = "AKID" }, "upload.secret_key"},
		{"secret without access key", func(c *Config) { c.Upload.SecretKey = "secret" }, "upload.access_key"},
		{"role not an arn", func(c *Config) { c.Upload.AssumeRoleARN = "my-role" }, "upload.assume_role_arn"},
		{"zero drain timeout", func(c *Config) { c.Upload.DrainTimeout = 0 }, "upload.drain_timeout"},
		{"tiny part size", func(c *Config) { c.Upload.PartSize = 1024 }, "upload.part_size"},
		{"pattern without index", func(c *Config) { c.Rotation.FileNamePattern = "app.log.old" }, "rotation.file_name_pattern"},
		{"inverted window", func(c *Config) { c.Rotation.MinIndex = 5; c.Rotation.MaxIndex = 2 }, "rotation.max_index"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad metrics address", func(c *Config) { c.Metrics.Listen = "not an address" }, "metrics.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %T", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Upload.Bucket = ""
	cfg.Upload.Region = "Bad Region"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload.bucket")
	assert.Contains(t, err.Error(), "upload.region")
}

func TestValidate_AcceptsCompatibleStoreSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Upload.Region = "us-west-2"
	cfg.Upload.Endpoint = "http://minio:9000"
	cfg.Upload.AccessKey = "user"
	cfg.Upload.SecretKey = "password"
	cfg.Upload.AssumeRoleARN = "arn:aws:iam::123456789012:role/uploader"
	cfg.Rotation.FileNamePattern = "logs/app.%i.log"
	cfg.Metrics.Listen = "127.0.0.1:9090"

	require.NoError(t, cfg.Validate())
}

func TestValidateRegion(t *testing.T) {
	for _, region := range []string{"us-east-1", "eu-central-2", "garage", "local"} {
		assert.NoError(t, ValidateRegion(region), region)
	}
	for _, region := range []string{"", "US-EAST-1", "us east 1", "us-east-1/", "-us"} {
		err := ValidateRegion(region)
		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr), region)
	}
}

func TestParseEndpoint(t *testing.T) {
	u, err := ParseEndpoint("http://minio:9000")
	require.NoError(t, err)
	assert.Equal(t, "minio", u.Hostname())
	assert.Equal(t, "9000", u.Port())

	for _, endpoint := range []string{"minio:9000", "ftp://minio", "http://", "://bad"} {
		_, err := ParseEndpoint(endpoint)
		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr), endpoint)
	}
}

func TestLoad_FileKeepsExplicitFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logroller.yaml")
	content := `
upload:
  bucket: mybucket
  folder_prefix: logs
  region: us-west-2
  rolling_on_exit: false
  drain_timeout: 30s
rotation:
  file_name: /var/log/app.log
  max_index: 3
logging:
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mybucket", cfg.Upload.Bucket)
	assert.Equal(t, "logs", cfg.Upload.FolderPrefix)
	assert.False(t, cfg.Upload.RollingOnExit)
	assert.Equal(t, 30*time.Second, cfg.Upload.DrainTimeout)
	assert.Equal(t, 3, cfg.Rotation.MaxIndex)
	assert.Equal(t, DefaultMinIndex, cfg.Rotation.MinIndex)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logroller.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upload:\n  bucket: from-file\n"), 0o600))

	t.Setenv("LOGROLLER_BUCKET", "from-env")
	t.Setenv("LOGROLLER_ROLLING_ON_EXIT", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Upload.Bucket)
	assert.False(t, cfg.Upload.RollingOnExit)
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	t.Setenv("LOGROLLER_BUCKET", "env-bucket")
	t.Setenv("LOGROLLER_ENDPOINT", "http://localhost:9000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-bucket", cfg.Upload.Bucket)
	assert.Equal(t, "http://localhost:9000", cfg.Upload.Endpoint)
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logroller.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upload:\n  bucket: b\n  region: \"not valid\"\n"), 0o600))

	_, err := Load(path)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "upload.region", cfgErr.Field)
}

func TestDescribe_ListsEnvironment(t *testing.T) {
	text, err := Describe()
	require.NoError(t, err)
	assert.Contains(t, text, "LOGROLLER_BUCKET")
	assert.Contains(t, text, "LOGROLLER_ASSUME_ROLE_ARN")
}
