package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// ServerEnv is the deployment environment.
type ServerEnv string

const (
	Development ServerEnv = "development"
	Testing     ServerEnv = "testing"
	Staging     ServerEnv = "staging"
	Production  ServerEnv = "production"
)

func (e ServerEnv) Valid() bool {
	switch e {
	case Development, Testing, Staging, Production:
		return true
	}
	return false
}

// Setting keys. Each maps to the upper-case environment variable of the same name.
const (
	KeyServerEnv        = "server_env"
	KeyServerHost       = "server_host"
	KeyServerPort       = "server_port"
	KeyBasePath         = "base_path"
	KeyLogLevel         = "log_level"
	KeyNoAuth           = "no_auth"
	KeyOAuth2Audience   = "oauth2_audience"
	KeyOAuth2Scope      = "oauth2_scope"
	KeyAllowedRoles     = "allowed_roles"
	KeyAccountsAPIURL   = "accounts_api_url"
	KeyDOIPrefix        = "doi_prefix"
	KeyDataCiteUsername = "datacite_username"
	KeyDataCitePassword = "datacite_password"
	KeyDataCiteTesting  = "datacite_testing"
	KeyDataCiteURL      = "datacite_url"
)

var prefixRegexp = regexp.MustCompile(`^10\.\d{4,}(\.\d+)*$`)

// Config is the service configuration, populated from the environment.
type Config struct {
	ServerEnv  ServerEnv
	ServerHost string
	ServerPort int
	BasePath   string
	LogLevel   string

	NoAuth         bool
	OAuth2Audience string
	OAuth2Scope    string
	AllowedRoles   []string
	AccountsAPIURL string

	DOIPrefix        string
	DataCiteUsername string
	DataCitePassword string
	DataCiteTesting  bool
	// DataCiteURL overrides the endpoint chosen by DataCiteTesting.
	DataCiteURL string
}

// NewViper returns a viper instance bound to the environment with defaults set.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	v.SetDefault(KeyServerHost, "127.0.0.1")
	v.SetDefault(KeyServerPort, 8080)
	v.SetDefault(KeyBasePath, "/v0")
	v.SetDefault(KeyNoAuth, false)
	v.SetDefault(KeyDataCiteTesting, false)
	return v
}

// Load reads the optional config file (dotenv or YAML), then validates.
// Environment variables take precedence over the file.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper copies settings without validating them.
func FromViper(v *viper.Viper) (*Config, error) {
	roles, err := parseList(v.Get(KeyAllowedRoles))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.ToUpper(KeyAllowedRoles), err)
	}
	return &Config{
		ServerEnv:        ServerEnv(strings.ToLower(strings.TrimSpace(v.GetString(KeyServerEnv)))),
		ServerHost:       v.GetString(KeyServerHost),
		ServerPort:       v.GetInt(KeyServerPort),
		BasePath:         v.GetString(KeyBasePath),
		LogLevel:         v.GetString(KeyLogLevel),
		NoAuth:           v.GetBool(KeyNoAuth),
		OAuth2Audience:   v.GetString(KeyOAuth2Audience),
		OAuth2Scope:      v.GetString(KeyOAuth2Scope),
		AllowedRoles:     roles,
		AccountsAPIURL:   v.GetString(KeyAccountsAPIURL),
		DOIPrefix:        v.GetString(KeyDOIPrefix),
		DataCiteUsername: v.GetString(KeyDataCiteUsername),
		DataCitePassword: v.GetString(KeyDataCitePassword),
		DataCiteTesting:  v.GetBool(KeyDataCiteTesting),
		DataCiteURL:      v.GetString(KeyDataCiteURL),
	}, nil
}

// parseList accepts a JSON array, a comma-separated string or a YAML list.
func parseList(raw any) ([]string, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		if strings.HasPrefix(s, "[") {
			var out []string
			if err := json.Unmarshal([]byte(s), &out); err != nil {
				return nil, fmt.Errorf("invalid JSON list: %w", err)
			}
			return out, nil
		}
		var out []string
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported list value %T", raw)
	}
}

// Validate reports every problem at once. Authorization settings are
// mandatory unless NoAuth is set.
func (c *Config) Validate() error {
	var errs error
	if !c.ServerEnv.Valid() {
		errs = multierr.Append(errs, fmt.Errorf("SERVER_ENV must be one of development, testing, staging, production (got %q)", c.ServerEnv))
	}
	if strings.TrimSpace(c.ServerHost) == "" {
		errs = multierr.Append(errs, fmt.Errorf("SERVER_HOST is required"))
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("SERVER_PORT must be between 1 and 65535 (got %d)", c.ServerPort))
	}
	errs = multierr.Append(errs, c.ValidateDataCite())
	if !c.NoAuth {
		if c.AccountsAPIURL == "" {
			errs = multierr.Append(errs, fmt.Errorf("ACCOUNTS_API_URL is required if NO_AUTH is false"))
		} else if err := checkHTTPURL(c.AccountsAPIURL); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("ACCOUNTS_API_URL: %w", err))
		}
		if c.OAuth2Audience == "" {
			errs = multierr.Append(errs, fmt.Errorf("OAUTH2_AUDIENCE is required if NO_AUTH is false"))
		}
		if c.OAuth2Scope == "" {
			errs = multierr.Append(errs, fmt.Errorf("OAUTH2_SCOPE is required if NO_AUTH is false"))
		}
		if len(c.AllowedRoles) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("ALLOWED_ROLES is required if NO_AUTH is false"))
		}
	}
	return errs
}

// ValidateDataCite checks only the settings needed to call DataCite.
func (c *Config) ValidateDataCite() error {
	var errs error
	if c.DOIPrefix == "" {
		errs = multierr.Append(errs, fmt.Errorf("DOI_PREFIX is required"))
	} else if !prefixRegexp.MatchString(c.DOIPrefix) {
		errs = multierr.Append(errs, fmt.Errorf("DOI_PREFIX %q is not a DOI prefix", c.DOIPrefix))
	}
	if c.DataCiteUsername == "" {
		errs = multierr.Append(errs, fmt.Errorf("DATACITE_USERNAME is required"))
	}
	if c.DataCitePassword == "" {
		errs = multierr.Append(errs, fmt.Errorf("DATACITE_PASSWORD is required"))
	}
	if c.DataCiteURL != "" {
		if err := checkHTTPURL(c.DataCiteURL); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("DATACITE_URL: %w", err))
		}
	}
	return errs
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q must be an absolute http(s) URL", raw)
	}
	return nil
}

// Development reports whether relaxed development behavior applies.
func (c *Config) Development() bool { return c.ServerEnv == Development }

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// Redacted returns the settings with secrets masked, for display.
func (c *Config) Redacted() map[string]any {
	password := ""
	if c.DataCitePassword != "" {
		password = "********"
	}
	return map[string]any{
		KeyServerEnv:        string(c.ServerEnv),
		KeyServerHost:       c.ServerHost,
		KeyServerPort:       c.ServerPort,
		KeyBasePath:         c.BasePath,
		KeyLogLevel:         c.LogLevel,
		KeyNoAuth:           c.NoAuth,
		KeyOAuth2Audience:   c.OAuth2Audience,
		KeyOAuth2Scope:      c.OAuth2Scope,
		KeyAllowedRoles:     c.AllowedRoles,
		KeyAccountsAPIURL:   c.AccountsAPIURL,
		KeyDOIPrefix:        c.DOIPrefix,
		KeyDataCiteUsername: c.DataCiteUsername,
		KeyDataCitePassword: password,
		KeyDataCiteTesting:  c.DataCiteTesting,
		KeyDataCiteURL:      c.DataCiteURL,
	}
}
