package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL  string
	Username string
	Password string
	LogUser  string
	// Translator resolves semantic keyword names. Required.
	Translator *keywords.Translator
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client exposes the document lifecycle. It keeps no state between calls
// beyond its configuration, so one Client may be shared by goroutines.
type Client struct {
	transport *Transport
	codec     *keywords.Codec
	logger    *slog.Logger
}

// NewWithConfig creates a Client.
func NewWithConfig(config ClientConfig) (*Client, error) {
	if config.Translator == nil {
		return nil, fmt.Errorf("docstore: Translator is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport, err := NewTransport(TransportConfig{
		BaseURL:    config.BaseURL,
		Username:   config.Username,
		Password:   config.Password,
		LogUser:    config.LogUser,
		HTTPClient: config.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		transport: transport,
		codec:     keywords.NewCodec(config.Translator),
		logger:    logger,
	}, nil
}

// Codec returns the keyword codec used by the client.
func (c *Client) Codec() *keywords.Codec {
	return c.codec
}

// Upload stores content as a new document of documentType. The filename is
// recorded as the filename keyword, replacing any filename pair in pairs.
func (c *Client) Upload(ctx context.Context, content io.Reader, filename, contentType, documentType string, pairs []keywords.Pair) (DocumentReference, error) {
	if documentType == "" {
		return DocumentReference{}, fmt.Errorf("docstore: document type is required")
	}

	set, err := c.codec.Encode(UploadKeywords(filename, pairs))
	if err != nil {
		return DocumentReference{}, err
	}

	body, formType, err := multipartBody(content, filename, contentType, set)
	if err != nil {
		return DocumentReference{}, err
	}

	var ref DocumentReference
	err = c.transport.DoJSON(ctx, Request{
		Method:      http.MethodPost,
		Path:        "",
		Query:       url.Values{"documentTypeName": {documentType}},
		Body:        body,
		ContentType: formType,
	}, &ref)
	if err != nil {
		return DocumentReference{}, fmt.Errorf("docstore: upload %q: %w", filename, err)
	}

	c.logger.Info("uploaded document",
		"id", ref.ID,
		"document_type", documentType,
		"filename", filename,
	)
	return ref, nil
}

// UploadKeywords returns pairs with the filename keyword set to filename.
func UploadKeywords(filename string, pairs []keywords.Pair) []keywords.Pair {
	out := make([]keywords.Pair, 0, len(pairs)+1)
	for _, p := range pairs {
		if p.Name != keywords.FileName {
			out = append(out, p)
		}
	}
	return append(out, keywords.P(keywords.FileName, filename))
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func multipartBody(content io.Reader, filename, contentType string, set keywords.Set) (io.Reader, string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	keywordData, err := json.Marshal(keywordEnvelope{Keywords: set})
	if err != nil {
		return nil, "", fmt.Errorf("docstore: failed to encode keywords: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("docstore: failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", fmt.Errorf("docstore: failed to read upload content: %w", err)
	}

	if err := w.WriteField("keywordData", string(keywordData)); err != nil {
		return nil, "", fmt.Errorf("docstore: failed to write keyword part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("docstore: failed to finish upload body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

type keywordEnvelope struct {
	Keywords keywords.Set `json:"keywords"`
}

func keywordsPath(ref DocumentReference) string {
	return url.PathEscape(ref.ID) + "/keywords"
}

// fetchEnvelope returns the keyword resource as sent by the store, together
// with its decoded keyword list.
func (c *Client) fetchEnvelope(ctx context.Context, ref DocumentReference) (map[string]json.RawMessage, keywords.Set, error) {
	var envelope map[string]json.RawMessage
	err := c.transport.DoJSON(ctx, Request{
		Method: http.MethodGet,
		Path:   keywordsPath(ref),
		Header: http.Header{"Accept": {"text/json"}},
	}, &envelope)
	if err != nil {
		return nil, nil, err
	}

	var set keywords.Set
	if raw, ok := envelope["keywords"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &set); err != nil {
			c.logger.Error("document store returned malformed keywords",
				"id", ref.ID,
				"body", string(raw),
				"error", err,
			)
			return nil, nil, &UnrecognizedResponseError{StatusCode: http.StatusOK, Summary: "malformed keywords member"}
		}
	}
	if envelope == nil {
		envelope = make(map[string]json.RawMessage)
	}
	return envelope, set, nil
}

// FetchKeywords returns the document's current keywords.
func (c *Client) FetchKeywords(ctx context.Context, ref DocumentReference) (keywords.Set, error) {
	_, set, err := c.fetchEnvelope(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("docstore: fetch keywords for %s: %w", ref.ID, err)
	}
	return set, nil
}

// UpdateKeywords reconciles pairs with the document's current keywords and
// writes the result back. Members of the keyword resource other than the
// keyword list are sent back unchanged. It returns the keywords written.
func (c *Client) UpdateKeywords(ctx context.Context, ref DocumentReference, pairs []keywords.Pair) (keywords.Set, error) {
	// Resolve every name before touching the store.
	if _, err := c.codec.Reconcile(pairs, nil); err != nil {
		return nil, err
	}

	envelope, remote, err := c.fetchEnvelope(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("docstore: fetch keywords for %s: %w", ref.ID, err)
	}

	reconciliation, err := c.codec.Reconcile(pairs, remote)
	if err != nil {
		return nil, err
	}
	result := reconciliation.Result()

	if len(reconciliation.Suppressed) > 0 {
		c.logger.Debug("kept keyword values owned by the document store",
			"id", ref.ID,
			"suppressed", len(reconciliation.Suppressed),
		)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("docstore: failed to encode keywords: %w", err)
	}
	envelope["keywords"] = encoded

	body, err := JSONBody(envelope)
	if err != nil {
		return nil, err
	}
	if _, err := c.transport.Do(ctx, Request{
		Method:      http.MethodPut,
		Path:        keywordsPath(ref),
		Body:        body,
		ContentType: "text/json",
	}); err != nil {
		return nil, fmt.Errorf("docstore: update keywords for %s: %w", ref.ID, err)
	}

	c.logger.Debug("updated document keywords", "id", ref.ID, "keywords", len(result))
	return result, nil
}

// Exists reports whether the document is in the store. Only 200 and 404 are
// answers; any other status is an *UnknownRecordStatusError.
func (c *Client) Exists(ctx context.Context, ref DocumentReference) (bool, error) {
	response, err := c.transport.Raw(ctx, Request{
		Method: http.MethodGet,
		Path:   url.PathEscape(ref.ID),
	})
	if err != nil {
		return false, err
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		c.logger.Error("unknown status checking document",
			"id", ref.ID,
			"status", response.StatusCode,
			"body", string(body),
		)
		return false, &UnknownRecordStatusError{ID: ref.ID, StatusCode: response.StatusCode}
	}
}

// StreamInfo describes a fetched document body.
type StreamInfo struct {
	ContentType   string
	ContentLength *int64
	Written       int64
}

// StreamFetchTo copies the document body into dst as it arrives. The
// connection is released before StreamFetchTo returns, including on error.
func (c *Client) StreamFetchTo(ctx context.Context, ref DocumentReference, dst io.Writer) (StreamInfo, error) {
	response, err := c.transport.Send(ctx, Request{
		Method: http.MethodGet,
		Path:   url.PathEscape(ref.ID),
	})
	if err != nil {
		return StreamInfo{}, fmt.Errorf("docstore: fetch %s: %w", ref.ID, err)
	}
	defer response.Body.Close()

	info := StreamInfo{ContentType: response.Header.Get("Content-Type")}
	if response.ContentLength >= 0 {
		length := response.ContentLength
		info.ContentLength = &length
	}

	info.Written, err = io.Copy(dst, response.Body)
	if err != nil {
		return info, &TransportError{Method: http.MethodGet, URL: response.Request.URL.String(), Err: err}
	}
	return info, nil
}

// StreamFetch fetches the document body into a new buffer.
func (c *Client) StreamFetch(ctx context.Context, ref DocumentReference) (*RecordStream, error) {
	var buf bytes.Buffer
	info, err := c.StreamFetchTo(ctx, ref, &buf)
	if err != nil {
		return nil, err
	}
	return &RecordStream{
		ContentType:   info.ContentType,
		ContentLength: info.ContentLength,
		Body:          &buf,
	}, nil
}

// Delete removes the document. A document that is already gone counts as
// deleted. Failures are logged and reported as false so a sweep can move on
// to the next document.
func (c *Client) Delete(ctx context.Context, ref DocumentReference) bool {
	exists, err := c.Exists(ctx, ref)
	if err != nil {
		c.logger.Error("could not check document before delete", "id", ref.ID, "error", err)
		return false
	}
	if !exists {
		c.logger.Debug("document already absent", "id", ref.ID)
		return true
	}

	if _, err := c.transport.Do(ctx, Request{
		Method: http.MethodDelete,
		Path:   url.PathEscape(ref.ID),
	}); err != nil {
		c.logger.Error("failed to delete document", "id", ref.ID, "error", err)
		return false
	}

	c.logger.Info("deleted document", "id", ref.ID)
	return true
}
