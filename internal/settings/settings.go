package settings

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName names the optional settings file (compositor.yaml).
	AppName = "compositor"
	// EnvPrefix is the prefix of settings environment variables.
	EnvPrefix = "COMPOSITOR"
)

// Settings are the runner-level options that are not part of a manifest.
type Settings struct {
	LogLevel     string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat    string        `mapstructure:"log_format" validate:"oneof=auto json console"`
	DefaultShell string        `mapstructure:"default_shell"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Platform     string        `mapstructure:"platform"`

	// ConfigFile is the settings file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// FlagBindings maps settings keys to the CLI flags that override them.
var FlagBindings = map[string]string{
	"log_level":     "log-level",
	"log_format":    "log-format",
	"default_shell": "default-shell",
	"timeout":       "timeout",
	"platform":      "platform",
}

// LoadOptions controls where settings are read from.
type LoadOptions struct {
	// ConfigFile is an explicit settings file; when empty SearchPaths are probed
	// for compositor.yaml.
	ConfigFile  string
	SearchPaths []string
	// Flags, when set, override file and environment values for flags the user changed.
	Flags *pflag.FlagSet
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Load resolves settings from defaults, the settings file, COMPOSITOR_*
// environment variables and flags, in increasing precedence.
func Load(opts LoadOptions) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		paths := opts.SearchPaths
		if len(paths) == 0 {
			paths = []string{"."}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for key, name := range FlagBindings {
			if flag := opts.Flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var configFile string
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings file: %w", err)
		}
	} else {
		configFile = v.ConfigFileUsed()
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
	s.LogFormat = strings.ToLower(strings.TrimSpace(s.LogFormat))
	s.ConfigFile = configFile

	if err := validatorInstance().Struct(s); err != nil {
		return nil, convertValidationError(err)
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "auto")
	v.SetDefault("default_shell", "")
	v.SetDefault("timeout", time.Duration(0))
	v.SetDefault("platform", "")
}

func convertValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	key := ""
	for _, k := range []string{"log_level", "log_format", "timeout"} {
		if strings.EqualFold(strings.ReplaceAll(k, "_", ""), fe.Field()) {
			key = k
		}
	}
	if key == "" {
		key = fe.Field()
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("invalid %s %q: must be one of %s", key, fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Errorf("invalid %s %v", key, fe.Value())
	}
}

// GOOS is the platform whose environment key rules apply.
func (s *Settings) GOOS() string {
	if s.Platform != "" {
		return s.Platform
	}
	return runtime.GOOS
}

// HumanReadable reports whether logs should use the console writer.
func (s *Settings) HumanReadable(terminal bool) bool {
	switch s.LogFormat {
	case "json":
		return false
	case "console":
		return true
	default:
		return terminal
	}
}
