// Package implements loading of logroller configuration. Settings are read from a YAML file and
// LOGROLLER_* environment variables on top of built-in defaults, then validated.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
)

// Defaults applied before a configuration file or the environment is read.
const (
	DefaultDrainTimeout = 10 * time.Minute
	DefaultMinIndex     = 1
	DefaultMaxIndex     = 7
	DefaultMaxSize      = 10 << 20
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
)

// Upload holds settings for shipping rolled log files to an object store. All credential fields
// are optional; precedence between them is decided by the client resolver.
type Upload struct {
	AccessKey      string        `yaml:"access_key"       env:"LOGROLLER_ACCESS_KEY"       env-description:"Static access key id"                             validate:"required_with=SecretKey"`
	SecretKey      string        `yaml:"secret_key"       env:"LOGROLLER_SECRET_KEY"       env-description:"Static secret access key"                         validate:"required_with=AccessKey"`
	SessionToken   string        `yaml:"session_token"    env:"LOGROLLER_SESSION_TOKEN"    env-description:"Session token for temporary credentials"          validate:"-"`
	AssumeRoleARN  string        `yaml:"assume_role_arn"  env:"LOGROLLER_ASSUME_ROLE_ARN"  env-description:"Role assumed through STS before uploading"        validate:"omitempty,startswith=arn:"`
	Region         string        `yaml:"region"           env:"LOGROLLER_REGION"           env-description:"Region for S3 and STS"                            validate:"omitempty,awsregion"`
	Endpoint       string        `yaml:"endpoint"         env:"LOGROLLER_ENDPOINT"         env-description:"Custom endpoint for S3-compatible stores"         validate:"omitempty,endpoint"`
	ForcePathStyle bool          `yaml:"force_path_style" env:"LOGROLLER_FORCE_PATH_STYLE" env-description:"Always address buckets in the request path"       validate:"-"`
	Bucket         string        `yaml:"bucket"           env:"LOGROLLER_BUCKET"           env-description:"Destination bucket"                               validate:"required"`
	FolderPrefix   string        `yaml:"folder_prefix"    env:"LOGROLLER_FOLDER_PREFIX"    env-description:"Key prefix for uploaded files"                    validate:"-"`
	RollingOnExit  bool          `yaml:"rolling_on_exit"  env:"LOGROLLER_ROLLING_ON_EXIT"  env-description:"Roll the active file on shutdown instead of copying it" validate:"-"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"    env:"LOGROLLER_DRAIN_TIMEOUT"    env-description:"Maximum time to wait for pending uploads on shutdown" validate:"gt=0"`
	Compress       bool          `yaml:"compress"         env:"LOGROLLER_COMPRESS"         env-description:"Zstd compress files before upload"                validate:"-"`
	ValidateBucket bool          `yaml:"validate_bucket"  env:"LOGROLLER_VALIDATE_BUCKET"  env-description:"Check bucket access on startup"                    validate:"-"`
	PartSize       int64         `yaml:"part_size"        env:"LOGROLLER_PART_SIZE"        env-description:"Multipart threshold in bytes, 0 for SDK default"  validate:"omitempty,gte=5242880"`
	InstanceID     string        `yaml:"instance_id"      env:"LOGROLLER_INSTANCE_ID"      env-description:"Id stored as object metadata"                     validate:"required"`
}

// Rotation holds settings for the local fixed-window rolling file.
type Rotation struct {
	FileName        string        `yaml:"file_name"         env:"LOGROLLER_FILE_NAME"         env-description:"Active log file"                          validate:"-"`
	FileNamePattern string        `yaml:"file_name_pattern" env:"LOGROLLER_FILE_NAME_PATTERN" env-description:"Rolled file pattern, %i is the slot index" validate:"omitempty,filepattern"`
	MinIndex        int           `yaml:"min_index"         env:"LOGROLLER_MIN_INDEX"         env-description:"Lowest slot index"                        validate:"gte=1"`
	MaxIndex        int           `yaml:"max_index"         env:"LOGROLLER_MAX_INDEX"         env-description:"Highest slot index"                       validate:"gtefield=MinIndex"`
	MaxSize         int64         `yaml:"max_size"          env:"LOGROLLER_MAX_SIZE"          env-description:"Roll when the active file reaches this many bytes, 0 disables" validate:"gte=0"`
	MaxAge          time.Duration `yaml:"max_age"           env:"LOGROLLER_MAX_AGE"           env-description:"Roll when the active file is this old, 0 disables" validate:"gte=0"`
}

// Logging holds settings for the process logger.
type Logging struct {
	Level  string `yaml:"level"  env:"LOGROLLER_LOG_LEVEL"  env-description:"trace, debug, info, warn, error" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `yaml:"format" env:"LOGROLLER_LOG_FORMAT" env-description:"json or console"                 validate:"oneof=json console"`
}

// Metrics holds settings for the Prometheus listener.
type Metrics struct {
	Listen string `yaml:"listen" env:"LOGROLLER_METRICS_LISTEN" env-description:"Address serving /metrics, empty disables" validate:"omitempty,hostname_port"`
}

// Config is the complete logroller configuration.
type Config struct {
	Upload   Upload   `yaml:"upload"`
	Rotation Rotation `yaml:"rotation"`
	Logging  Logging  `yaml:"logging"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Default returns a configuration holding every default value. Setting defaults before reading
// user input ensures explicit false or zero values from the file are not overwritten.
//
// Returns:
//   - cfg: Default configuration
func Default() *Config {
	return &Config{
		Upload: Upload{
			RollingOnExit: true,
			DrainTimeout:  DefaultDrainTimeout,
			// Random id distinguishes uploads from several processes shipping into the same prefix.
			InstanceID: uuid.New().String(),
		},
		Rotation: Rotation{
			MinIndex: DefaultMinIndex,
			MaxIndex: DefaultMaxIndex,
			MaxSize:  DefaultMaxSize,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads configuration from a YAML file and the environment. If path is empty only the
// environment is read. Environment variables take precedence over the file.
//
// Parameters:
//   - path: Path to YAML configuration file, may be empty
//
// Returns:
//   - cfg: Validated configuration
//   - err: Error reading file, all validation errors joined
func Load(path string) (*Config, error) {
	cfg := Default()

	var err error
	if path == "" {
		err = cleanenv.ReadEnv(cfg)
	} else {
		err = cleanenv.ReadConfig(path, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Describe returns a reference of all environment variables understood by [Load].
func Describe() (string, error) {
	header := "Environment variables:"
	return cleanenv.GetDescription(&Config{}, &header)
}

// Validate checks every setting and returns all failures at once so the user can fix them
// together. Each failure is a [ConfigurationError].
//
// Returns:
//   - err: All validation errors joined, nil if valid
func (c *Config) Validate() error {
	validate := newValidator()

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return fmt.Errorf("error validating configuration: %w", err)
	}

	configErrors := make([]error, 0, len(valErrs))
	for _, fieldErr := range valErrs {
		configErrors = append(configErrors, &ConfigurationError{
			Field:  strings.TrimPrefix(fieldErr.Namespace(), "Config."),
			Value:  fieldErr.Value(),
			Reason: "failed test " + fieldErr.Tag(),
		})
	}
	return errors.Join(configErrors...)
}

// newValidator creates a validator reporting snake case setting names and knowing the custom
// rules used by the struct tags above.
func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Used example directly from [validator.RegisterTagNameFunc] and replaced "json" with "yaml".
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration only fails for empty tags or nil functions.
	_ = validate.RegisterValidation("awsregion", func(fl validator.FieldLevel) bool {
		return ValidateRegion(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("endpoint", func(fl validator.FieldLevel) bool {
		_, err := ParseEndpoint(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("filepattern", func(fl validator.FieldLevel) bool {
		return strings.Contains(fl.Field().String(), "%i")
	})

	return validate
}
