// Package config provides the configuration structure for the nightly-brief job.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
)

// Environment variables that override the project configuration.
const (
	EnvServiceAccount = "FIREBASE_SERVICE_ACCOUNT"
	EnvBucket         = "FB_BUCKET"
	EnvToneName       = "TONE_NAME"
	EnvTonesDir       = "TONES_DIR"
	EnvStorageBackend = "STORAGE_BACKEND"
	EnvOpsLogBackend  = "OPSLOG_BACKEND"
	EnvNATSURL        = "NATS_URL"
	EnvMongoURI       = "MONGO_URI"
	EnvMongoDB        = "MONGO_DB"
	EnvAWSRegion      = "AWS_REGION"
	EnvLogDir         = "LOG_DIR"
	EnvTimeoutSeconds = "JOB_TIMEOUT_SECONDS"
)

// Supported storage backends.
const (
	StorageGCS  = "gcs"
	StorageS3   = "s3"
	StorageNATS = "nats"
)

// Supported ops-log backends.
const (
	OpsLogFirestore = "firestore"
	OpsLogMongo     = "mongo"
	OpsLogNATS      = "nats"
)

const (
	defaultJobName        = "mock_generate"
	defaultCollection     = "ops"
	defaultTonesDir       = "tones"
	defaultTimeoutSeconds = 120
	defaultMongoDB        = "nightly_brief"
	defaultKVBucket       = "OPS"
	defaultNotifySubject  = "brief.published"
	defaultTriggerSubject = "brief.trigger"
)

// natsBucketName matches the bucket names JetStream accepts for object stores and key-value buckets.
var natsBucketName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var (
	// ErrBucketMissing indicates that no target bucket was configured.
	ErrBucketMissing = errors.New("storage bucket is not set")
	// ErrInvalidCredentials indicates that the service account blob is not valid JSON.
	ErrInvalidCredentials = errors.New("service account credentials are not valid JSON")
	// ErrUnknownBackend indicates an unsupported storage or ops-log backend.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrMongoURIMissing indicates that the mongo backend was selected without a URI.
	ErrMongoURIMissing = errors.New("mongo uri is required for the mongo ops-log backend")
	// ErrNATSURLMissing indicates that a NATS backend was selected without a URL.
	ErrNATSURLMissing = errors.New("nats url is required for the nats backends")
	// ErrTimeoutNegative indicates a negative job timeout.
	ErrTimeoutNegative = errors.New("job timeout must be non-negative")
	// ErrInvalidBucketName indicates a bucket name a NATS backend cannot use.
	ErrInvalidBucketName = errors.New("bucket name may only contain letters, digits, '-' and '_' for the nats backends")
)

// StorageConfig holds the object storage settings.
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Bucket    string `toml:"bucket"`
	AWSRegion string `toml:"aws_region"`
}

// OpsLogConfig holds the ops-log document store settings.
type OpsLogConfig struct {
	Backend    string `toml:"backend"`
	Collection string `toml:"collection"`
	MongoURI   string `toml:"mongo_uri"`
	MongoDB    string `toml:"mongo_db"`
	KVBucket   string `toml:"kv_bucket"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL            string `toml:"url"`
	NotifySubject  string `toml:"notify_subject"`
	TriggerSubject string `toml:"trigger_subject"`
}

// JobConfig holds the settings of a single nightly run.
type JobConfig struct {
	Name           string `toml:"name"`
	ToneName       string `toml:"tone_name"`
	TonesDir       string `toml:"tones_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	OpsLog  OpsLogConfig  `toml:"opslog"`
	NATS    NATSConfig    `toml:"nats"`
	Job     JobConfig     `toml:"job"`
	Paths   PathsConfig   `toml:"paths"`

	// CredentialsJSON is only ever read from the environment.
	CredentialsJSON string `toml:"-"`
}

// Default returns a configuration with every optional value filled in.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend:   StorageGCS,
			Bucket:    "",
			AWSRegion: "",
		},
		OpsLog: OpsLogConfig{
			Backend:    OpsLogFirestore,
			Collection: defaultCollection,
			MongoURI:   "",
			MongoDB:    defaultMongoDB,
			KVBucket:   defaultKVBucket,
		},
		NATS: NATSConfig{
			URL:            "",
			NotifySubject:  defaultNotifySubject,
			TriggerSubject: defaultTriggerSubject,
		},
		Job: JobConfig{
			Name:           defaultJobName,
			ToneName:       "",
			TonesDir:       defaultTonesDir,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Paths: PathsConfig{
			BaseLogsDir: os.TempDir(),
		},
		CredentialsJSON: "",
	}
}

// LoadDotEnv loads variables from an env file. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}

	return nil
}

// Load loads the configuration for the nightly-brief job. The project file is
// optional: when the configurator cannot provide one the defaults are used.
// Environment variables always take precedence.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(&cfg, log)
	if err != nil {
		log.Warn("Project configuration unavailable, using defaults: %v", err)
	}

	cfg.ApplyEnv(os.Getenv)

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides configuration values with the non-empty variables
// returned by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	overrides := map[string]*string{
		EnvServiceAccount: &c.CredentialsJSON,
		EnvBucket:         &c.Storage.Bucket,
		EnvToneName:       &c.Job.ToneName,
		EnvTonesDir:       &c.Job.TonesDir,
		EnvStorageBackend: &c.Storage.Backend,
		EnvOpsLogBackend:  &c.OpsLog.Backend,
		EnvNATSURL:        &c.NATS.URL,
		EnvMongoURI:       &c.OpsLog.MongoURI,
		EnvMongoDB:        &c.OpsLog.MongoDB,
		EnvAWSRegion:      &c.Storage.AWSRegion,
		EnvLogDir:         &c.Paths.BaseLogsDir,
	}

	for key, target := range overrides {
		value := strings.TrimSpace(getenv(key))
		if value != "" {
			*target = value
		}
	}

	timeout, err := strconv.Atoi(strings.TrimSpace(getenv(EnvTimeoutSeconds)))
	if err == nil {
		c.Job.TimeoutSeconds = timeout
	}

	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	c.OpsLog.Backend = strings.ToLower(c.OpsLog.Backend)
}

// Validate ensures the job has a destination and a usable backend selection.
func (c *Config) Validate() error {
	if c.Storage.Bucket == "" {
		return fmt.Errorf("%w: set %s", ErrBucketMissing, EnvBucket)
	}

	if c.CredentialsJSON != "" && !json.Valid([]byte(c.CredentialsJSON)) {
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, EnvServiceAccount)
	}

	switch c.Storage.Backend {
	case StorageGCS, StorageS3, StorageNATS:
	default:
		return fmt.Errorf("%w: storage %q", ErrUnknownBackend, c.Storage.Backend)
	}

	switch c.OpsLog.Backend {
	case OpsLogFirestore, OpsLogNATS:
	case OpsLogMongo:
		if c.OpsLog.MongoURI == "" {
			return ErrMongoURIMissing
		}
	default:
		return fmt.Errorf("%w: ops-log %q", ErrUnknownBackend, c.OpsLog.Backend)
	}

	if c.NATS.URL == "" && (c.Storage.Backend == StorageNATS || c.OpsLog.Backend == OpsLogNATS) {
		return ErrNATSURLMissing
	}

	if c.Storage.Backend == StorageNATS && !natsBucketName.MatchString(c.Storage.Bucket) {
		return fmt.Errorf("%w: storage bucket %q", ErrInvalidBucketName, c.Storage.Bucket)
	}

	if c.OpsLog.Backend == OpsLogNATS && !natsBucketName.MatchString(c.OpsLog.KVBucket) {
		return fmt.Errorf("%w: ops-log bucket %q", ErrInvalidBucketName, c.OpsLog.KVBucket)
	}

	if c.Job.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: got %d", ErrTimeoutNegative, c.Job.TimeoutSeconds)
	}

	return nil
}
