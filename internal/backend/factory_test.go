package backend

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rette/internal/config"
	"rette/internal/sheets/appscript"
	"rette/internal/sheets/memory"
)

func quietFactory() Factory {
	return NewFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	require.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sqlite"})
	require.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:     "sheets",
		GoogleSheetName: "Roster",
		MemorySeedFile:  "seed.yaml",
		RemoteRateLimit: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, SheetsBackend, cfg.Type)
	assert.Equal(t, "Roster", cfg.GoogleSheetName)
	assert.Equal(t, "seed.yaml", cfg.SeedFile)
	assert.Equal(t, 3.0, cfg.RateLimit)
}

func TestCreateBackend_UnconfiguredRemoteIsSetupRequired(t *testing.T) {
	for _, typ := range []BackendType{AppScriptBackend, SheetsBackend} {
		t.Run(typ.String(), func(t *testing.T) {
			res, err := quietFactory().CreateBackend(context.Background(), Config{Type: typ, GoogleSheetName: "Sheet1"})
			require.NoError(t, err)
			assert.Nil(t, res.Source)
		})
	}
}

func TestCreateBackend_AppScript(t *testing.T) {
	res, err := quietFactory().CreateBackend(context.Background(), Config{
		Type:           AppScriptBackend,
		RosterEndpoint: "https://script.example.com/exec",
	})
	require.NoError(t, err)
	assert.IsType(t, &appscript.Client{}, res.Source)

	_, err = quietFactory().CreateBackend(context.Background(), Config{
		Type:           AppScriptBackend,
		RosterEndpoint: "ftp://script.example.com/exec",
	})
	assert.Error(t, err)
}

func TestCreateBackend_Memory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	seed := "cohorts:\n  Salsa:\n    - name: Ann\n      last_payment_date: \"2025-11-01\"\n"
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	res, err := quietFactory().CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedFile: path})
	require.NoError(t, err)
	require.IsType(t, &memory.Store{}, res.Source)

	cohorts, err := res.Source.FetchRoster(context.Background())
	require.NoError(t, err)
	require.Len(t, cohorts["Salsa"], 1)
	assert.Equal(t, "Ann", cohorts["Salsa"][0].Name)
}

func TestCreateBackend_InvalidType(t *testing.T) {
	_, err := quietFactory().CreateBackend(context.Background(), Config{Type: "sqlite"})
	assert.Error(t, err)
}

func TestGetBackendTypeStrings(t *testing.T) {
	assert.Equal(t, []string{"appscript", "sheets", "memory"}, GetBackendTypeStrings())
}
