// Package config_test tests the configuration loading for the nightly-brief job.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/nightly-brief/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[storage]
backend = "nats"
bucket = "AUDIO_FILES"

[opslog]
backend = "mongo"
collection = "ops"
mongo_uri = "mongodb://localhost:27017"
mongo_db = "brief"

[nats]
url = "nats://127.0.0.1:4222"
notify_subject = "brief.published"

[job]
name = "mock_generate"
tone_name = "Anchor Calm"
tones_dir = "/etc/brief/tones"
timeout_seconds = 300
`

	cfg := config.Default()

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, config.StorageNATS, cfg.Storage.Backend)
	assert.Equal(t, "AUDIO_FILES", cfg.Storage.Bucket)
	assert.Equal(t, config.OpsLogMongo, cfg.OpsLog.Backend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.OpsLog.MongoURI)
	assert.Equal(t, "brief", cfg.OpsLog.MongoDB)
	assert.Equal(t, "OPS", cfg.OpsLog.KVBucket, "unset keys keep their defaults")
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "brief.trigger", cfg.NATS.TriggerSubject)
	assert.Equal(t, "Anchor Calm", cfg.Job.ToneName)
	assert.Equal(t, "/etc/brief/tones", cfg.Job.TonesDir)
	assert.Equal(t, 300, cfg.Job.TimeoutSeconds)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_OverridesFileValues(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Storage.Bucket = "from-file"
	cfg.Job.ToneName = "Morning Bright"

	cfg.ApplyEnv(envFrom(map[string]string{
		config.EnvBucket:         "test-bucket",
		config.EnvServiceAccount: `{"type":"service_account"}`,
		config.EnvStorageBackend: "S3",
		config.EnvTimeoutSeconds: "45",
		config.EnvToneName:       "   ",
	}))

	assert.Equal(t, "test-bucket", cfg.Storage.Bucket)
	assert.Equal(t, `{"type":"service_account"}`, cfg.CredentialsJSON)
	assert.Equal(t, config.StorageS3, cfg.Storage.Backend)
	assert.Equal(t, 45, cfg.Job.TimeoutSeconds)
	assert.Equal(t, "Morning Bright", cfg.Job.ToneName, "blank env values do not override")
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr error
	}{
		{
			name:    "missing bucket",
			mutate:  func(cfg *config.Config) { cfg.Storage.Bucket = "" },
			wantErr: config.ErrBucketMissing,
		},
		{
			name:    "credentials are not json",
			mutate:  func(cfg *config.Config) { cfg.CredentialsJSON = "not-json" },
			wantErr: config.ErrInvalidCredentials,
		},
		{
			name:    "unknown storage backend",
			mutate:  func(cfg *config.Config) { cfg.Storage.Backend = "ftp" },
			wantErr: config.ErrUnknownBackend,
		},
		{
			name:    "unknown ops-log backend",
			mutate:  func(cfg *config.Config) { cfg.OpsLog.Backend = "redis" },
			wantErr: config.ErrUnknownBackend,
		},
		{
			name:    "mongo without uri",
			mutate:  func(cfg *config.Config) { cfg.OpsLog.Backend = config.OpsLogMongo },
			wantErr: config.ErrMongoURIMissing,
		},
		{
			name:    "nats without url",
			mutate:  func(cfg *config.Config) { cfg.OpsLog.Backend = config.OpsLogNATS },
			wantErr: config.ErrNATSURLMissing,
		},
		{
			name: "nats storage with a firebase bucket name",
			mutate: func(cfg *config.Config) {
				cfg.Storage.Backend = config.StorageNATS
				cfg.Storage.Bucket = "todai-alpha.firebasestorage.app"
				cfg.NATS.URL = "nats://localhost:4222"
			},
			wantErr: config.ErrInvalidBucketName,
		},
		{
			name: "nats ops log with a dotted bucket name",
			mutate: func(cfg *config.Config) {
				cfg.OpsLog.Backend = config.OpsLogNATS
				cfg.OpsLog.KVBucket = "ops.log"
				cfg.NATS.URL = "nats://localhost:4222"
			},
			wantErr: config.ErrInvalidBucketName,
		},
		{
			name:    "negative timeout",
			mutate:  func(cfg *config.Config) { cfg.Job.TimeoutSeconds = -1 },
			wantErr: config.ErrTimeoutNegative,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			cfg.Storage.Bucket = "test-bucket"
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidate_BucketNames(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Storage.Bucket = "todai-alpha.firebasestorage.app"
	require.NoError(t, cfg.Validate(), "cloud buckets may contain dots")

	cfg.Storage.Backend = config.StorageNATS
	cfg.Storage.Bucket = "todai-alpha_brief"
	cfg.OpsLog.Backend = config.OpsLogNATS
	cfg.NATS.URL = "nats://localhost:4222"
	require.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, config.LoadDotEnv(filepath.Join(dir, "missing.env")))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("NIGHTLY_BRIEF_DOTENV_TEST=loaded\n"), 0o600))

	t.Setenv("NIGHTLY_BRIEF_DOTENV_TEST", "")
	require.NoError(t, os.Unsetenv("NIGHTLY_BRIEF_DOTENV_TEST"))

	require.NoError(t, config.LoadDotEnv(envPath))
	assert.Equal(t, "loaded", os.Getenv("NIGHTLY_BRIEF_DOTENV_TEST"))
}
