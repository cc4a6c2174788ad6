package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := "database:\n  driver: sqlite\n  dsn: \"" + filepath.Join(dir, "rag.db") + "\"\n" +
		"vector:\n  type: memory\n" +
		"storage:\n  basePath: \"" + filepath.Join(dir, "media") + "\"\n" + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestMigrate(t *testing.T) {
	path := writeConfig(t, "")
	var out bytes.Buffer

	err := newApp(&out).Run([]string{"ragctl", "--config", path, "migrate"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "schema is up to date")
}

func TestTaskStatusRequiresID(t *testing.T) {
	err := newApp(&bytes.Buffer{}).Run([]string{"ragctl", "task-status"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task id is required")
}

func TestPurgeFailedRejectsNegativeDuration(t *testing.T) {
	err := newApp(&bytes.Buffer{}).Run([]string{"ragctl", "purge-failed", "--older-than", "-1h"})
	require.Error(t, err)
}

func TestCleanupFiles(t *testing.T) {
	path := writeConfig(t, "")
	require.NoError(t, newApp(&bytes.Buffer{}).Run([]string{"ragctl", "--config", path, "migrate"}))

	stray := filepath.Join(filepath.Dir(path), "media", "documents", uuid.New().String(), "stray.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stray), 0o755))
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stray, past, past))

	var out bytes.Buffer
	err := newApp(&out).Run([]string{"ragctl", "--config", path, "cleanup-files"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "removed 1 orphaned file(s)")
	assert.NoFileExists(t, stray)
}

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3.2:latest"}},
		})
	}))
	defer srv.Close()

	path := writeConfig(t, "llm:\n  serverURL: \""+srv.URL+"\"\n")

	err := newApp(&bytes.Buffer{}).Run([]string{"ragctl", "--config", path, "check"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all-minilm")
}
