package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func baseViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := NewViper()
	v.Set(KeyServerEnv, "production")
	v.Set(KeyDOIPrefix, "10.15493")
	v.Set(KeyDataCiteUsername, "SAEON.ODP")
	v.Set(KeyDataCitePassword, "secret")
	return v
}

func withAuth(v *viper.Viper) *viper.Viper {
	v.Set(KeyAccountsAPIURL, "https://accounts.example.org")
	v.Set(KeyOAuth2Audience, "datacite-api")
	v.Set(KeyOAuth2Scope, "DataCite")
	v.Set(KeyAllowedRoles, `["admin","curator"]`)
	return v
}

func TestLoadWithAuth(t *testing.T) {
	cfg, err := Load(withAuth(baseViper(t)), "")
	require.NoError(t, err)
	assert.Equal(t, Production, cfg.ServerEnv)
	assert.False(t, cfg.NoAuth)
	assert.Equal(t, []string{"admin", "curator"}, cfg.AllowedRoles)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, "/v0", cfg.BasePath)
	assert.False(t, cfg.Development())
}

func TestMissingAccountsURLFailsWhenAuthEnabled(t *testing.T) {
	v := withAuth(baseViper(t))
	v.Set(KeyAccountsAPIURL, "")
	_, err := Load(v, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCOUNTS_API_URL is required")
}

func TestAllAuthSettingsRequired(t *testing.T) {
	_, err := Load(baseViper(t), "")
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 4)
	for _, key := range []string{"ACCOUNTS_API_URL", "OAUTH2_AUDIENCE", "OAUTH2_SCOPE", "ALLOWED_ROLES"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestNoAuthRelaxesAuthSettings(t *testing.T) {
	v := baseViper(t)
	v.Set(KeyNoAuth, "true")
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.True(t, cfg.NoAuth)
}

func TestValidateRejectsBadValues(t *testing.T) {
	v := withAuth(baseViper(t))
	v.Set(KeyServerEnv, "qa")
	v.Set(KeyServerPort, 0)
	v.Set(KeyDOIPrefix, "11.x")
	v.Set(KeyAccountsAPIURL, "accounts.example.org")
	_, err := Load(v, "")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "SERVER_ENV")
	assert.Contains(t, msg, "SERVER_PORT")
	assert.Contains(t, msg, "DOI_PREFIX")
	assert.Contains(t, msg, "absolute http(s) URL")
}

func TestParseList(t *testing.T) {
	out, err := parseList("admin, curator,,")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "curator"}, out)

	out, err = parseList([]any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)

	out, err = parseList("")
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = parseList("[not json")
	assert.Error(t, err)
}

func TestLoadDotEnvFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datacite.env")
	content := "SERVER_ENV=development\nSERVER_PORT=9000\nNO_AUTH=true\nDOI_PREFIX=10.15493\nDATACITE_USERNAME=user\nDATACITE_PASSWORD=pass\nDATACITE_TESTING=true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SERVER_PORT", "9100")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, Development, cfg.ServerEnv)
	assert.True(t, cfg.Development())
	assert.Equal(t, 9100, cfg.ServerPort)
	assert.True(t, cfg.DataCiteTesting)
	assert.True(t, cfg.NoAuth)
}

func TestRedacted(t *testing.T) {
	cfg, err := Load(withAuth(baseViper(t)), "")
	require.NoError(t, err)
	red := cfg.Redacted()
	assert.Equal(t, "********", red[KeyDataCitePassword])
	assert.Equal(t, "SAEON.ODP", red[KeyDataCiteUsername])
}

func TestValidateDataCiteIgnoresServerAndAuth(t *testing.T) {
	v := baseViper(t)
	v.Set(KeyServerEnv, "")
	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateDataCite())
	assert.Error(t, cfg.Validate())

	cfg.DataCitePassword = ""
	cfg.DOIPrefix = ""
	assert.Len(t, multierr.Errors(cfg.ValidateDataCite()), 2)
}
