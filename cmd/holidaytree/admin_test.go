package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunAdmin_Usage(t *testing.T) {
	require.Equal(t, 2, runAdmin(nil))
	require.Equal(t, 2, runAdmin([]string{"reset-everything"}))
}

func TestRunHashPassword(t *testing.T) {
	require.Equal(t, 2, runHashPassword([]string{"--password", "short"}))
	require.Equal(t, 0, runHashPassword([]string{"--password", "let-it-snow"}))
	require.Equal(t, 0, runHashPassword(nil))
}

func TestRunMigrate_RequiresDSN(t *testing.T) {
	t.Setenv("HT_DB_DSN", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.Equal(t, 2, runMigrate(nil))
}

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(4)
	require.NoError(t, err)
	require.Len(t, a, 11)

	b, err := generatePassword(18)
	require.NoError(t, err)
	require.Len(t, b, 24)
	require.NotEqual(t, a, b)
}
