package docstore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/docstore"
	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
)

type recorded struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   []byte
}

// fakeStore records every request and answers with handler.
type fakeStore struct {
	mu       sync.Mutex
	requests []recorded
	handler  http.HandlerFunc
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))

	f.mu.Lock()
	f.requests = append(f.requests, recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	f.mu.Unlock()

	f.handler(w, r)
}

func (f *fakeStore) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		out = append(out, r.Method+" "+r.Path)
	}
	return out
}

func translator(t *testing.T) *keywords.Translator {
	t.Helper()
	tr, err := keywords.NewTranslator(map[keywords.Name]string{
		keywords.AgentName:               "Agent Name",
		keywords.ParentSystemID:          "Parent System ID",
		keywords.AgentSystemID:           "Agent System ID",
		keywords.LinkedRecordSystemID:    "Linked Record System ID",
		keywords.RecordIdentifier:        "Record Identifier",
		keywords.EventProcessingPlanDate: "Processing Plan Date",
		keywords.AccessionDate:           "Accession Date",
		keywords.CatalogLocation:         "Catalog Location",
		keywords.ConservationNumber:      "Conservation Number",
		keywords.LoanEndDate:             "Loan End Date",
		keywords.FindingAidUseStartDate:  "Finding Aid Use Start Date",
		keywords.FindingAidUseEndDate:    "Finding Aid Use End Date",
		keywords.ExampleAlpha20:          "Example Alpha 20",
		keywords.ExampleDate:             "EventDate",
		keywords.ExampleAlpha250:         "Example Alpha 250",
		keywords.FileName:                "File Name",
	})
	require.NoError(t, err)
	return tr
}

func newClient(t *testing.T, handler http.HandlerFunc) (*docstore.Client, *fakeStore) {
	t.Helper()
	store := &fakeStore{handler: handler}
	server := httptest.NewServer(store)
	t.Cleanup(server.Close)

	client, err := docstore.NewWithConfig(docstore.ClientConfig{
		BaseURL:    server.URL + "/api/documents/",
		Username:   "svc-archives",
		Password:   "s3cret",
		LogUser:    "archivist",
		Translator: translator(t),
		HTTPClient: server.Client(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return client, store
}

func TestTransportURL(t *testing.T) {
	transport, err := docstore.NewTransport(docstore.TransportConfig{
		BaseURL:  "https://onbase.example.edu/api/documents//",
		Username: "u",
		Password: "p",
		LogUser:  "archivist",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://onbase.example.edu/api/documents?logUser=archivist", transport.URL("", nil))
	assert.Equal(t, "https://onbase.example.edu/api/documents/42/keywords?logUser=archivist",
		transport.URL("42/keywords/", nil))
	assert.Equal(t, "https://onbase.example.edu/api/documents?documentTypeName=SPCL+-+Deed&logUser=archivist",
		transport.URL("", map[string][]string{"documentTypeName": {"SPCL - Deed"}, "logUser": {"spoofed"}}))
}

func TestNewTransportRequiresSettings(t *testing.T) {
	_, err := docstore.NewTransport(docstore.TransportConfig{Username: "u", Password: "p", LogUser: "l"})
	assert.Error(t, err)
	_, err = docstore.NewTransport(docstore.TransportConfig{BaseURL: "http://x", LogUser: "l"})
	assert.Error(t, err)
	_, err = docstore.NewTransport(docstore.TransportConfig{BaseURL: "http://x", Username: "u", Password: "p"})
	assert.Error(t, err)
}

func TestEveryRequestIsAuthenticatedAndAudited(t *testing.T) {
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.Exists(context.Background(), docstore.Ref("42"))
	require.NoError(t, err)

	require.Len(t, store.requests, 1)
	req := store.requests[0]
	assert.Equal(t, []string{"archivist"}, req.Query["logUser"])
	assert.Equal(t, "/api/documents/42", req.Path)

	user, pass, ok := (&http.Request{Header: req.Header}).BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "svc-archives", user)
	assert.Equal(t, "s3cret", pass)
}

func TestUpload(t *testing.T) {
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 2284804}`))
	})

	ref, err := client.Upload(context.Background(), strings.NewReader("%PDF-1.4"), "report.pdf",
		"application/pdf", "SPCL - Deed", nil)
	require.NoError(t, err)
	assert.Equal(t, "2284804", ref.ID)

	require.Len(t, store.requests, 1)
	req := store.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/documents", req.Path)
	assert.Equal(t, []string{"SPCL - Deed"}, req.Query["documentTypeName"])
	assert.Equal(t, []string{"archivist"}, req.Query["logUser"])

	parsed, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(req.Body))
	require.NoError(t, err)
	parsed.Header = req.Header
	require.NoError(t, parsed.ParseMultipartForm(1<<20))

	file, header, err := parsed.FormFile("file")
	require.NoError(t, err)
	content, _ := io.ReadAll(file)
	assert.Equal(t, "%PDF-1.4", string(content))
	assert.Equal(t, "report.pdf", header.Filename)
	assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))

	var keywordData struct {
		Keywords keywords.Set `json:"keywords"`
	}
	require.NoError(t, json.Unmarshal([]byte(parsed.FormValue("keywordData")), &keywordData))
	assert.Equal(t, keywords.Set{{TypeName: "File Name", Value: "report.pdf"}}, keywordData.Keywords)
}

func TestUploadKeywordsReplacesFilename(t *testing.T) {
	pairs := docstore.UploadKeywords("report.pdf", []keywords.Pair{
		keywords.P(keywords.FileName, "other.pdf"),
		keywords.P(keywords.AgentName, "Occom, Samson"),
	})
	assert.Equal(t, []keywords.Pair{
		keywords.P(keywords.AgentName, "Occom, Samson"),
		keywords.P(keywords.FileName, "report.pdf"),
	}, pairs)
}

func TestUploadRejected(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"Message": "Document type not found"}`))
	})

	_, err := client.Upload(context.Background(), strings.NewReader("x"), "a.txt", "text/plain", "Nope", nil)
	require.Error(t, err)

	var rejected *docstore.RemoteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.StatusCode)
	assert.Equal(t, "Document type not found", rejected.Message)
	assert.True(t, docstore.IsRemoteRejected(err, http.StatusBadRequest))
}

func TestUploadUnknownKeywordFailsBeforeRequest(t *testing.T) {
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 1}`))
	})

	_, err := client.Upload(context.Background(), strings.NewReader("x"), "a.txt", "text/plain", "SPCL - Deed",
		[]keywords.Pair{keywords.P("shelf_mark", "A1")})
	assert.True(t, keywords.IsUnknownKeywordName(err))
	assert.Empty(t, store.requests)
}

func TestUnrecognizedResponses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		summary     string
	}{
		{
			name:        "html error page",
			status:      http.StatusInternalServerError,
			contentType: "text/html",
			body:        "<html><head><title>500 - Internal server error.</title></head><body>boom</body></html>",
			summary:     "500 - Internal server error.",
		},
		{
			name:    "plain text",
			status:  http.StatusBadGateway,
			body:    "upstream unavailable",
			summary: "upstream unavailable",
		},
		{
			name:    "invalid json on success",
			status:  http.StatusOK,
			body:    "not json",
			summary: "not json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.FetchKeywords(context.Background(), docstore.Ref("7"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, docstore.ErrUnrecognizedResponse))

			var unrecognized *docstore.UnrecognizedResponseError
			require.ErrorAs(t, err, &unrecognized)
			assert.Equal(t, tt.status, unrecognized.StatusCode)
			assert.Equal(t, tt.summary, unrecognized.Summary)

			var syntaxErr *json.SyntaxError
			assert.False(t, errors.As(err, &syntaxErr))
		})
	}
}

func TestFetchKeywords(t *testing.T) {
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"keywords":[{"keywordTypeName":"Agent Name","keywordValue":"Occom, Samson"}]}`))
	})

	set, err := client.FetchKeywords(context.Background(), docstore.Ref("42"))
	require.NoError(t, err)
	assert.Equal(t, keywords.Set{{TypeName: "Agent Name", Value: "Occom, Samson"}}, set)

	require.Len(t, store.requests, 1)
	assert.Equal(t, "/api/documents/42/keywords", store.requests[0].Path)
	assert.Equal(t, "text/json", store.requests[0].Header.Get("Accept"))
}

func TestUpdateKeywords(t *testing.T) {
	var put []byte
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{
				"documentId": 42,
				"keywords": [
					{"keywordTypeName": "File Name", "keywordValue": "report.pdf"},
					{"keywordTypeName": "EventDate", "keywordValue": "2020-01-01"},
					{"keywordTypeName": "Conservation Number", "keywordValue": "C-77"},
					{"keywordTypeName": "Agent Name", "keywordValue": "stale"}
				]
			}`))
		case http.MethodPut:
			put, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusNoContent)
		}
	})

	written, err := client.UpdateKeywords(context.Background(), docstore.Ref("42"), []keywords.Pair{
		keywords.P(keywords.PotentialDateKeys, "EventDate"),
		keywords.P(keywords.NotGenerated, "Conservation Number"),
		keywords.P(keywords.ExampleDate, "2024-06-01"),
		keywords.P(keywords.AgentName, "Occom, Samson"),
	})
	require.NoError(t, err)

	want := keywords.Set{
		{TypeName: "Agent Name", Value: "Occom, Samson"},
		{TypeName: "Conservation Number", Value: "C-77"},
		{TypeName: "EventDate", Value: "2020-01-01"},
		{TypeName: "File Name", Value: "report.pdf"},
	}
	assert.Equal(t, want, written)
	assert.Equal(t, []string{"GET /api/documents/42/keywords", "PUT /api/documents/42/keywords"}, store.methods())
	assert.Equal(t, "text/json", store.requests[1].Header.Get("Content-Type"))

	var body struct {
		DocumentID int          `json:"documentId"`
		Keywords   keywords.Set `json:"keywords"`
	}
	require.NoError(t, json.Unmarshal(put, &body))
	assert.Equal(t, 42, body.DocumentID)
	assert.Equal(t, want, body.Keywords)
}

func TestUpdateKeywordsUnknownNameFailsBeforeRequest(t *testing.T) {
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"keywords":[]}`))
	})

	_, err := client.UpdateKeywords(context.Background(), docstore.Ref("42"),
		[]keywords.Pair{keywords.P("shelf_mark", "A1")})
	assert.True(t, keywords.IsUnknownKeywordName(err))
	assert.Empty(t, store.requests)
}

func TestExists(t *testing.T) {
	tests := []struct {
		status  int
		want    bool
		wantErr bool
	}{
		{status: http.StatusOK, want: true},
		{status: http.StatusNotFound, want: false},
		{status: http.StatusInternalServerError, wantErr: true},
		{status: http.StatusNoContent, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			got, err := client.Exists(context.Background(), docstore.Ref("42"))
			if tt.wantErr {
				var statusErr *docstore.UnknownRecordStatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tt.status, statusErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExistsTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := docstore.NewWithConfig(docstore.ClientConfig{
		BaseURL:    baseURL,
		Username:   "u",
		Password:   "p",
		LogUser:    "l",
		Translator: translator(t),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	_, err = client.Exists(context.Background(), docstore.Ref("1"))
	assert.True(t, docstore.IsTransport(err))
}

func TestStreamFetch(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 10000)
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	})

	stream, err := client.StreamFetch(context.Background(), docstore.Ref("42"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", stream.ContentType)
	require.NotNil(t, stream.ContentLength)
	assert.Equal(t, int64(len(payload)), *stream.ContentLength)
	assert.Equal(t, payload, stream.Body.Bytes())
}

func TestStreamFetchWithoutLength(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			w.Write([]byte("chunk"))
			flusher.Flush()
		}
	})

	var dst bytes.Buffer
	info, err := client.StreamFetchTo(context.Background(), docstore.Ref("42"), &dst)
	require.NoError(t, err)
	assert.Nil(t, info.ContentLength)
	assert.Equal(t, int64(15), info.Written)
	assert.Equal(t, "chunkchunkchunk", dst.String())
}

func TestStreamFetchMissing(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Document not found"}`))
	})

	_, err := client.StreamFetch(context.Background(), docstore.Ref("42"))
	assert.True(t, docstore.IsRemoteRejected(err, http.StatusNotFound))
}

func TestDelete(t *testing.T) {
	t.Run("missing document is a no-op success", func(t *testing.T) {
		client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		assert.True(t, client.Delete(context.Background(), docstore.Ref("42")))
		assert.Equal(t, []string{"GET /api/documents/42"}, store.methods())
	})

	t.Run("existing document is deleted", func(t *testing.T) {
		client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		assert.True(t, client.Delete(context.Background(), docstore.Ref("42")))
		assert.Equal(t, []string{"GET /api/documents/42", "DELETE /api/documents/42"}, store.methods())
	})

	t.Run("delete failure reports false", func(t *testing.T) {
		client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"message":"Document is locked"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
		})

		assert.False(t, client.Delete(context.Background(), docstore.Ref("42")))
	})

	t.Run("unknown existence status reports false", func(t *testing.T) {
		client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		assert.False(t, client.Delete(context.Background(), docstore.Ref("42")))
		assert.Equal(t, []string{"GET /api/documents/42"}, store.methods())
	})
}

func TestDocumentReferenceUnmarshal(t *testing.T) {
	tests := []struct {
		body    string
		want    string
		wantErr bool
	}{
		{body: `{"id": 2284804}`, want: "2284804"},
		{body: `{"id": "2284804"}`, want: "2284804"},
		{body: `{"id": null}`, wantErr: true},
		{body: `{}`, wantErr: true},
		{body: `{"id": true}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var ref docstore.DocumentReference
			err := json.Unmarshal([]byte(tt.body), &ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.ID)
		})
	}
}
