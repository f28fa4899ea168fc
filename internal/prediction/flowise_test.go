package prediction

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/flowchat/internal/model"
)

func TestFlowisePredict(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/prediction/flow-1", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"text":"hi there","sourceDocuments":[{"pageContent":"doc","metadata":{"page":1}}],"chatId":"c1"}`)
	}))
	defer srv.Close()

	client, err := NewFlowiseClient(FlowiseConfig{Host: srv.URL + "/", ChatflowID: "flow-1", APIKey: "key"})
	require.NoError(t, err)

	resp, err := client.Predict(context.Background(), &Request{
		Question: "hello",
		ChatID:   "c1",
		History:  []HistoryMessage{{Role: "user", Content: "earlier"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "hi there", resp.Content())
	require.Len(t, resp.SourceDocuments, 1)
	assert.Equal(t, "doc", resp.SourceDocuments[0].PageContent)
	assert.Contains(t, string(resp.Raw), `"chatId":"c1"`)

	assert.Equal(t, "hello", got["question"])
	assert.Equal(t, "c1", got["chatId"])
	assert.Equal(t, map[string]any{}, got["overrideConfig"])
	assert.Len(t, got["history"], 1)
}

func TestFlowisePredictKeepsUnexpectedShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		text string
		docs int
	}{
		{name: "array", body: `["a","b"]`},
		{name: "object source documents", body: `{"text":"hi","sourceDocuments":{"k":1}}`, text: "hi"},
		{name: "object text", body: `{"text":{"nested":true},"answer":"fallback"}`, text: "fallback"},
		{name: "string metadata", body: `{"sourceDocuments":[{"pageContent":"x","metadata":"str"},{"pageContent":"y"}]}`, docs: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client, err := NewFlowiseClient(FlowiseConfig{Host: srv.URL, ChatflowID: "flow-1"})
			require.NoError(t, err)

			resp, err := client.Predict(context.Background(), &Request{Question: "hello"})
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(resp.Raw))
			assert.Equal(t, tt.text, resp.Content())
			assert.Len(t, resp.SourceDocuments, tt.docs)
		})
	}
}

func TestFlowisePredictRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer srv.Close()

	client, err := NewFlowiseClient(FlowiseConfig{Host: srv.URL, ChatflowID: "flow-1"})
	require.NoError(t, err)

	_, err = client.Predict(context.Background(), &Request{Question: "hello"})
	assert.Error(t, err)
}

func TestFlowisePredictUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewFlowiseClient(FlowiseConfig{Host: srv.URL, ChatflowID: "flow-1"})
	require.NoError(t, err)

	_, err = client.Predict(context.Background(), &Request{Question: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFlowisePredictRequiresChatflow(t *testing.T) {
	client, err := NewFlowiseClient(FlowiseConfig{Host: "http://localhost"})
	require.NoError(t, err)

	_, err = client.Predict(context.Background(), &Request{Question: "hello"})
	assert.Error(t, err)
}

func TestFlowiseUpsertDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/document-store/upsert/store-1", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "doc-1", r.FormValue("docId"))
		assert.Equal(t, "File Loader", r.FormValue("loaderName"))
		assert.JSONEq(t, `{"config":{"chunkSize":1000}}`, r.FormValue("splitter"))
		assert.JSONEq(t, `{"uploadedBy":"admin@x.com","filename":"a.txt"}`, r.FormValue("metadata"))
		assert.Equal(t, "true", r.FormValue("replaceExisting"))
		assert.Equal(t, "false", r.FormValue("createNewDocStore"))

		files := r.MultipartForm.File["files"]
		require.Len(t, files, 1)
		assert.Equal(t, "a.txt", files[0].Filename)

		_, _ = io.WriteString(w, `{"numAdded":3}`)
	}))
	defer srv.Close()

	client, err := NewFlowiseClient(FlowiseConfig{Host: srv.URL, APIKey: "key"})
	require.NoError(t, err)

	raw, err := client.UpsertDocuments(context.Background(), &UpsertRequest{
		StoreID:         "store-1",
		DocID:           "doc-1",
		LoaderName:      "File Loader",
		ChunkSize:       1000,
		Metadata:        map[string]any{"uploadedBy": "admin@x.com", "filename": "a.txt"},
		ReplaceExisting: true,
		Files:           []Document{{Filename: "a.txt", Content: strings.NewReader("contents")}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"numAdded":3}`, string(raw))
}

func TestHistorySkipsErrors(t *testing.T) {
	history := History([]model.Message{
		{Text: "q", IsUser: true},
		{Text: "a"},
		{Text: "Sorry", IsError: true},
	})

	assert.Equal(t, []HistoryMessage{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	}, history)
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient("bogus", Options{})
	assert.Error(t, err)
}
