package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountsYAML = `
accounts:
  admin:
    username: admin
    password: ${ADMIN_PASSWORD}
    environments:
      prod:
        username: prod-admin
        password: ${PROD_ADMIN_PASSWORD}
  viewer:
    username: viewer
    password: pa$$word
`

func loadTestAccounts(t *testing.T) *Accounts {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(accountsYAML), 0644))
	a, err := LoadAccounts(path)
	require.NoError(t, err)
	return a
}

func TestAccounts_Get(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "s3cret")
	t.Setenv("PROD_ADMIN_PASSWORD", "pr0d")
	a := loadTestAccounts(t)

	acc, err := a.Get("admin", "qa")
	require.NoError(t, err)
	assert.Equal(t, Account{"username": "admin", "password": "s3cret"}, acc)

	acc, err = a.Get("admin", "PROD")
	require.NoError(t, err)
	assert.Equal(t, Account{"username": "prod-admin", "password": "pr0d"}, acc)
}

func TestAccounts_BareDollarKept(t *testing.T) {
	a := loadTestAccounts(t)
	v, err := a.Field("viewer", "password", "qa")
	require.NoError(t, err)
	assert.Equal(t, "pa$$word", v)
}

func TestAccounts_NotFound(t *testing.T) {
	a := loadTestAccounts(t)

	_, err := a.Get("ghost", "qa")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAccountNotFound))
	assert.Equal(t, "account_not_found", core.CodeOf(err))

	_, err = a.Field("viewer", "pin", "qa")
	assert.True(t, errors.Is(err, core.ErrAccountNotFound))
}

func TestAccounts_Aliases(t *testing.T) {
	assert.Equal(t, []string{"admin", "viewer"}, loadTestAccounts(t).Aliases())
}

func TestLoadAccounts_MissingFile(t *testing.T) {
	a, err := LoadAccounts(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, a.Aliases())
}

func TestLoadAccounts_NonScalarField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  x:\n    roles: [a, b]\n"), 0644))
	_, err := LoadAccounts(path)
	assert.Error(t, err)
}

func TestExpandEnvRefs(t *testing.T) {
	t.Setenv("GR_USER", "alice")
	assert.Equal(t, "alice@x", ExpandEnvRefs("${GR_USER}@x"))
	assert.Equal(t, "$GR_USER", ExpandEnvRefs("$GR_USER"))
	assert.Equal(t, "", ExpandEnvRefs("${GR_UNSET_VARIABLE}"))
}
