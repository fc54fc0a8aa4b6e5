package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// storeServer is a document store that answers with handler and remembers
// what it was asked.
type storeServer struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string][]byte
	handler  http.HandlerFunc
}

func newStoreServer(t *testing.T, handler http.HandlerFunc) (*storeServer, string) {
	t.Helper()
	s := &storeServer{handler: handler, bodies: map[string][]byte{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requests = append(s.requests, key)
		s.bodies[key] = body
		s.mu.Unlock()

		s.handler(w, r)
	}))
	t.Cleanup(server.Close)
	return s, server.URL + "/api/documents"
}

func (s *storeServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	for _, key := range []string{"ONBASE_ROBI_URL", "ONBASE_USERNAME", "ONBASE_PASSWORD", "ONBASE_LOG_USER", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `docstore:
  base_url: "` + baseURL + `"
  username: "svc-archives"
  password: "s3cret"
  log_user: "archivist"
schedule:
  keyword_job_interval_seconds: 60
  delete_unlinked_cron: "0 2 * * *"
  delete_obsolete_cron: "0 3 * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd("test", &app{})
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestParseKeywordFlags(t *testing.T) {
	pairs, err := parseKeywordFlags([]string{"agent_name=Occom, Samson", "record_identifier=MS-1=2", "example_alpha_20="})
	require.NoError(t, err)
	assert.Equal(t, []keywords.Pair{
		keywords.P(keywords.AgentName, "Occom, Samson"),
		keywords.P(keywords.RecordIdentifier, "MS-1=2"),
		keywords.P(keywords.ExampleAlpha20, ""),
	}, pairs)

	_, err = parseKeywordFlags([]string{"agent_name"})
	assert.Error(t, err)
	_, err = parseKeywordFlags([]string{"=value"})
	assert.Error(t, err)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", detectContentType("report.pdf", nil))
	assert.Equal(t, "text/plain; charset=utf-8", detectContentType("notes", []byte("plain words")))
}

func TestExistsCmd(t *testing.T) {
	_, baseURL := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/42") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	configPath := writeConfig(t, baseURL)

	out, _, err := execute(t, configPath, "exists", "42")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, _, err = execute(t, configPath, "exists", "43")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)
}

func TestExistsCmdUnknownStatus(t *testing.T) {
	_, baseURL := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _, err := execute(t, writeConfig(t, baseURL), "exists", "42")
	assert.Error(t, err)
}

func TestUploadCmd(t *testing.T) {
	server, baseURL := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SPCL - Deed", r.URL.Query().Get("documentTypeName"))
		w.Write([]byte(`{"id": 2284804}`))
	})
	configPath := writeConfig(t, baseURL)

	file := filepath.Join(t.TempDir(), "deed.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF-1.4"), 0644))

	out, stderr, err := execute(t, configPath, "upload", file, "--type", "SPCL - Deed", "-k", "agent_name=Occom, Samson")
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded deed.pdf as document 2284804")
	assert.NotContains(t, stderr, "not in the registry")
	assert.Equal(t, []string{"POST /api/documents"}, server.seen())
}

func TestUploadCmdUnknownType(t *testing.T) {
	_, baseURL := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 7}`))
	})
	configPath := writeConfig(t, baseURL)

	file := filepath.Join(t.TempDir(), "scan.tif")
	require.NoError(t, os.WriteFile(file, []byte("II*\x00"), 0644))

	_, stderr, err := execute(t, configPath, "upload", file, "--type", "Local Scan")
	require.NoError(t, err)
	assert.Contains(t, stderr, `document type "Local Scan" is not in the registry`)
}

func TestKeywordsShowCmd(t *testing.T) {
	_, baseURL := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"keywords":[
			{"keywordTypeName":"SPCL - Agent Name","keywordValue":"Occom, Samson"},
			{"keywordTypeName":"Shelf Mark","keywordValue":"A1"}
		]}`))
	})
	configPath := writeConfig(t, baseURL)

	out, _, err := execute(t, configPath, "keywords", "show", "42")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"TYPE", "NAME", "VALUE"}, strings.Fields(lines[0]))
	assert.Contains(t, lines[1], "agent_name")
	assert.Contains(t, lines[1], "Occom, Samson")
	assert.Contains(t, lines[2], "Shelf Mark")
	assert.Contains(t, lines[2], " - ")

	out, _, err = execute(t, configPath, "keywords", "show", "42", "--json")
	require.NoError(t, err)
	var set keywords.Set
	require.NoError(t, json.Unmarshal([]byte(out), &set))
	assert.Len(t, set, 2)
}

func TestKeywordsSyncCmd(t *testing.T) {
	server, baseURL := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"documentId":"42","keywords":[
				{"keywordTypeName":"SPCL - Agent Name","keywordValue":"Wheelock, Eleazar"},
				{"keywordTypeName":"SPCL - File Name","keywordValue":"deed.pdf"}
			]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	configPath := writeConfig(t, baseURL)

	out, _, err := execute(t, configPath, "keywords", "sync", "42",
		"--type", "SPCL - Deed", "--value", "agent_name=Occom, Samson")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated keywords of document 42")

	assert.Equal(t, []string{"GET /api/documents/42/keywords", "PUT /api/documents/42/keywords"}, server.seen())

	var written struct {
		DocumentID string       `json:"documentId"`
		Keywords   keywords.Set `json:"keywords"`
	}
	require.NoError(t, json.Unmarshal(server.bodies["PUT /api/documents/42/keywords"], &written))
	assert.Equal(t, "42", written.DocumentID)
	assert.Equal(t, keywords.Set{
		{TypeName: "SPCL - Agent Name", Value: "Occom, Samson"},
		{TypeName: "SPCL - File Name", Value: "deed.pdf"},
	}, written.Keywords)
}

func TestKeywordsSyncCmdArguments(t *testing.T) {
	configPath := writeConfig(t, "http://127.0.0.1:1/api/documents")

	_, _, err := execute(t, configPath, "keywords", "sync")
	assert.ErrorContains(t, err, "document id or --jobs")

	_, _, err = execute(t, configPath, "keywords", "sync", "42")
	assert.ErrorContains(t, err, "--type")

	_, _, err = execute(t, configPath, "keywords", "sync", "42", "--type", "SPCL - Deed", "--value", "shelf_mark=A1")
	assert.True(t, keywords.IsUnknownKeywordName(err))
}

func TestKeywordsSyncCmdJobs(t *testing.T) {
	server, baseURL := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/43/") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Document not found"}`))
			return
		}
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"keywords":[]}`))
		}
	})
	configPath := writeConfig(t, baseURL)

	jobs := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(jobs, []byte(`
jobs:
  - onbase_id: "42"
    document_type: "SPCL - Deed"
    values: {agent_name: "Occom, Samson"}
  - onbase_id: "43"
    document_type: "SPCL - Deed"
    values: {agent_name: "Occom, Samson"}
`), 0644))

	_, stderr, err := execute(t, configPath, "keywords", "sync", "--jobs", jobs)
	assert.ErrorContains(t, err, "1 of 2 failed")
	assert.Contains(t, stderr, "jobs.yaml#1 (document 43)")
	assert.Contains(t, server.seen(), "PUT /api/documents/42/keywords")
	assert.NotContains(t, server.seen(), "PUT /api/documents/43/keywords")
}

func TestDeleteCmd(t *testing.T) {
	t.Run("missing document", func(t *testing.T) {
		server, baseURL := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		out, _, err := execute(t, writeConfig(t, baseURL), "delete", "42")
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted document 42")
		assert.Equal(t, []string{"GET /api/documents/42"}, server.seen())
	})

	t.Run("delete refused", func(t *testing.T) {
		_, baseURL := newStoreServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete {
				w.WriteHeader(http.StatusConflict)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		_, _, err := execute(t, writeConfig(t, baseURL), "delete", "42")
		assert.ErrorContains(t, err, "document 42 was not deleted")
	})
}

func TestValidateCmd(t *testing.T) {
	configPath := writeConfig(t, "https://onbase.example.edu/api/documents")

	out, _, err := execute(t, configPath, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration and document types are valid")

	broken := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(broken, []byte(`
docstore:
  base_url: "onbase.example.edu"
  username: "svc-archives"
`), 0644))

	_, stderr, err := execute(t, broken, "validate")
	assert.ErrorContains(t, err, "configuration problem(s)")
	assert.Contains(t, stderr, "docstore.base_url")
	assert.Contains(t, stderr, "docstore.password")
	assert.Contains(t, stderr, "schedule.delete_unlinked_cron")
}

func TestLinkCmdRequiresDatabase(t *testing.T) {
	configPath := writeConfig(t, "https://onbase.example.edu/api/documents")

	_, _, err := execute(t, configPath, "link", "42")
	assert.ErrorContains(t, err, "no database configured")
}
