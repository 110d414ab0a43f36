package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restic-health.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const fullConfig = `
state_dir: /var/lib/restic-health
defaults:
  cache_dir: /var/cache/restic-health
  retries: 3
  retry_delay: 90s
locations:
  home:
    password_file: /etc/restic/home.pass
    backends:
      local: /srv/restic/home
      offsite: b2:bucket:home
  work:
    password_file: /etc/restic/work.pass
    cache_dir: /var/cache/restic-work
    backends:
      nas: sftp:nas:/restic/work
`

func TestLoad(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, fullConfig))
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())

		assert.Equal(t, "/var/lib/restic-health", cfg.StateDir)
		assert.Equal(t, 3, cfg.Retries())
		assert.Equal(t, 90*time.Second, cfg.RetryDelay())
		assert.Len(t, cfg.Locations, 2)
		assert.Equal(t, "/etc/restic/home.pass", cfg.Locations["home"].PasswordFile)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "state_dir: [broken"))
		assert.Error(t, err)
	})

	t.Run("bad retry delay", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
state_dir: /tmp/state
defaults:
  retry_delay: soon
locations:
  home:
    password_file: /etc/p
    backends:
      local: /srv/r
`))
		assert.Error(t, err)
	})
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
state_dir: /tmp/state
locations:
  home:
    password_file: /etc/p
    backends:
      local: /srv/r
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultRetries, cfg.Retries())
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(writeConfig(t, fullConfig))
		require.NoError(t, err)
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing state dir", func(t *testing.T) {
		cfg := valid()
		cfg.StateDir = ""
		assert.ErrorContains(t, cfg.Validate(), "state_dir")
	})

	t.Run("no locations", func(t *testing.T) {
		cfg := valid()
		cfg.Locations = nil
		assert.ErrorContains(t, cfg.Validate(), "location")
	})

	t.Run("missing password file", func(t *testing.T) {
		cfg := valid()
		loc := cfg.Locations["home"]
		loc.PasswordFile = ""
		cfg.Locations["home"] = loc
		assert.ErrorContains(t, cfg.Validate(), "password_file")
	})

	t.Run("no backends", func(t *testing.T) {
		cfg := valid()
		loc := cfg.Locations["home"]
		loc.Backends = nil
		cfg.Locations["home"] = loc
		assert.ErrorContains(t, cfg.Validate(), "backend")
	})

	t.Run("empty repository address", func(t *testing.T) {
		cfg := valid()
		cfg.Locations["home"].Backends["local"] = ""
		assert.ErrorContains(t, cfg.Validate(), "repository address")
	})

	t.Run("negative retries", func(t *testing.T) {
		cfg := valid()
		negative := -1
		cfg.Defaults.Retries = &negative
		assert.ErrorContains(t, cfg.Validate(), "retries")
	})
}

func TestConfig_Targets(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	targets := cfg.Targets()
	require.Len(t, targets, 3)

	// Deterministic order: sorted by location, then backend.
	assert.Equal(t, "home@local", targets[0].Name())
	assert.Equal(t, "home@offsite", targets[1].Name())
	assert.Equal(t, "work@nas", targets[2].Name())

	assert.Equal(t, "/srv/restic/home", targets[0].Repository)
	assert.Equal(t, "b2:bucket:home", targets[1].Repository)
	assert.Equal(t, "/etc/restic/home.pass", targets[0].PasswordFile)

	// Fleet-wide cache dir unless the location overrides it.
	assert.Equal(t, "/var/cache/restic-health", targets[0].CacheDir)
	assert.Equal(t, "/var/cache/restic-work", targets[2].CacheDir)
}
