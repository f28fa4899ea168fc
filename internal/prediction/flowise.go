package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// FlowiseConfig configures a FlowiseClient.
type FlowiseConfig struct {
	Host       string
	ChatflowID string
	APIKey     string
	HTTPClient *http.Client
}

// FlowiseClient calls the Flowise prediction and document store APIs.
type FlowiseClient struct {
	host       string
	chatflowID string
	apiKey     string
	http       *http.Client
}

// NewFlowiseClient creates a Flowise client.
func NewFlowiseClient(cfg FlowiseConfig) (*FlowiseClient, error) {
	if cfg.Host == "" {
		return nil, errors.New("Flowise host is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &FlowiseClient{
		host:       strings.TrimRight(cfg.Host, "/"),
		chatflowID: cfg.ChatflowID,
		apiKey:     cfg.APIKey,
		http:       httpClient,
	}, nil
}

// Name returns the provider name.
func (c *FlowiseClient) Name() string {
	return string(ProviderFlowise)
}

// Predict posts the question to the configured chatflow. The upstream body
// is kept in Response.Raw.
func (c *FlowiseClient) Predict(ctx context.Context, req *Request) (*Response, error) {
	if c.chatflowID == "" {
		return nil, errors.New("Flowise chatflow id is not configured")
	}

	body := flowisePrediction{
		Question:       req.Question,
		ChatID:         req.ChatID,
		History:        req.History,
		OverrideConfig: req.OverrideConfig,
	}
	if body.History == nil {
		body.History = []HistoryMessage{}
	}
	if body.OverrideConfig == nil {
		body.OverrideConfig = map[string]any{}
	}
	payload, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/api/v1/prediction/"+c.chatflowID, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	return DecodeResponse(raw), nil
}

// flowisePrediction is the prediction body Flowise expects. overrideConfig
// is always sent, even when empty.
type flowisePrediction struct {
	Question       string           `json:"question"`
	ChatID         string           `json:"chatId,omitempty"`
	History        []HistoryMessage `json:"history"`
	OverrideConfig map[string]any   `json:"overrideConfig"`
}

// Document is a file relayed to a Flowise document store.
type Document struct {
	Filename string
	Content  io.Reader
}

// UpsertRequest describes a document store upsert.
type UpsertRequest struct {
	StoreID           string
	DocID             string
	LoaderName        string
	ChunkSize         int
	Metadata          map[string]any
	ReplaceExisting   bool
	CreateNewDocStore bool
	Files             []Document
}

// UpsertDocuments uploads files to a document store and returns the
// upstream JSON response.
func (c *FlowiseClient) UpsertDocuments(ctx context.Context, req *UpsertRequest) (json.RawMessage, error) {
	if req.StoreID == "" {
		return nil, errors.New("document store id is not configured")
	}
	if len(req.Files) == 0 {
		return nil, errors.New("no files to upload")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range req.Files {
		part, err := w.CreateFormFile("files", f.Filename)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Filename, err)
		}
	}

	splitter, _ := json.Marshal(map[string]any{"config": map[string]any{"chunkSize": req.ChunkSize}})
	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	fields := map[string]string{
		"loaderName":        req.LoaderName,
		"splitter":          string(splitter),
		"metadata":          string(metadata),
		"replaceExisting":   fmt.Sprint(req.ReplaceExisting),
		"createNewDocStore": fmt.Sprint(req.CreateNewDocStore),
	}
	if req.DocID != "" {
		fields["docId"] = req.DocID
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/api/v1/document-store/upsert/"+req.StoreID, &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(httpReq)

	return c.do(httpReq)
}

func (c *FlowiseClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *FlowiseClient) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Flowise response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Flowise returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !json.Valid(body) {
		return nil, errors.New("Flowise returned a non-JSON body")
	}
	return body, nil
}
