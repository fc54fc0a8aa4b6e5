package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Timeouts applied to every request. They are not configurable per call.
const (
	ConnectTimeout      = 60 * time.Second
	ReadTimeout         = 60 * time.Second
	TLSHandshakeTimeout = 60 * time.Second
)

// maxErrorBody bounds how much of a failed response is read for logging.
const maxErrorBody = 1 << 20

// TransportConfig configures a Transport.
type TransportConfig struct {
	// BaseURL is the documents endpoint, e.g.
	// "https://onbase.example.edu/api/asrobiservice/api/documents".
	BaseURL  string
	Username string
	Password string
	// LogUser identifies the acting principal. It is sent as the logUser
	// query parameter on every request.
	LogUser string
	// HTTPClient overrides the default client. Tests use this to point at an
	// httptest server; production code should leave it nil.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport executes authenticated requests against the document store.
type Transport struct {
	baseURL  string
	username string
	password string
	logUser  string
	client   *http.Client
	logger   *slog.Logger
}

// Request describes one call. Path is relative to the base URL.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        io.Reader
	ContentType string
	Header      http.Header
}

// NewTransport creates a Transport.
func NewTransport(config TransportConfig) (*Transport, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("docstore: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("docstore: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if config.Username == "" || config.Password == "" {
		return nil, fmt.Errorf("docstore: Username and Password are required")
	}
	if config.LogUser == "" {
		return nil, fmt.Errorf("docstore: LogUser is required")
	}

	client := config.HTTPClient
	if client == nil {
		client = newHTTPClient(ReadTimeout)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		username: config.Username,
		password: config.Password,
		logUser:  config.LogUser,
		client:   client,
		logger:   logger,
	}, nil
}

func newDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
}

// newHTTPClient has no overall Timeout; readTimeout bounds each read instead.
func newHTTPClient(readTimeout time.Duration) *http.Client {
	dialer := newDialer()
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				conn, err := dialer.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				return &readDeadlineConn{Conn: conn, timeout: readTimeout}, nil
			},
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: readTimeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   4,
		},
	}
}

// readDeadlineConn bounds every individual read, so a stalled body fails
// after ReadTimeout while a slow but steady download is not cut off.
type readDeadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *readDeadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

// URL builds the request URL for path. Trailing slashes are stripped and the
// logUser parameter is always set.
func (t *Transport) URL(path string, query url.Values) string {
	u := strings.TrimRight(t.baseURL+"/"+strings.TrimLeft(path, "/"), "/")

	params := url.Values{}
	for k, v := range query {
		params[k] = append([]string(nil), v...)
	}
	params.Set("logUser", t.logUser)

	return u + "?" + params.Encode()
}

// Raw sends the request and returns the response whatever its status. Only
// transport failures are returned as errors. The caller closes the body.
func (t *Transport) Raw(ctx context.Context, r Request) (*http.Response, error) {
	requestURL := t.URL(r.Path, r.Query)

	request, err := http.NewRequestWithContext(ctx, r.Method, requestURL, r.Body)
	if err != nil {
		return nil, fmt.Errorf("docstore: failed to create request: %w", err)
	}
	for k, v := range r.Header {
		request.Header[k] = v
	}
	if r.ContentType != "" {
		request.Header.Set("Content-Type", r.ContentType)
	}
	request.SetBasicAuth(t.username, t.password)

	response, err := t.client.Do(request)
	if err != nil {
		t.logger.Error("document store request failed",
			"method", r.Method,
			"url", requestURL,
			"error", err,
		)
		return nil, &TransportError{Method: r.Method, URL: requestURL, Err: err}
	}
	return response, nil
}

// Send is Raw followed by status classification. On success the caller owns
// the open body; on failure the body has been read, logged and closed.
func (t *Transport) Send(ctx context.Context, r Request) (*http.Response, error) {
	response, err := t.Raw(ctx, r)
	if err != nil {
		return nil, err
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return response, nil
	}
	defer response.Body.Close()
	return nil, t.classify(r.Method, response)
}

// Do sends the request and returns the whole 2xx body.
func (t *Transport) Do(ctx context.Context, r Request) ([]byte, error) {
	response, err := t.Send(ctx, r)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &TransportError{Method: r.Method, URL: response.Request.URL.String(), Err: err}
	}
	return body, nil
}

// DoJSON sends the request and decodes a 2xx JSON body into out. A body that
// is not valid JSON is logged and reported as an UnrecognizedResponseError.
func (t *Transport) DoJSON(ctx context.Context, r Request, out any) error {
	body, err := t.Do(ctx, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.logger.Error("document store returned invalid JSON",
			"method", r.Method,
			"url", t.URL(r.Path, r.Query),
			"body", string(body),
			"error", err,
		)
		return &UnrecognizedResponseError{StatusCode: http.StatusOK, Summary: summarize(body, "")}
	}
	return nil
}

// JSONBody encodes v for a request body.
func JSONBody(v any) (io.Reader, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: failed to encode request body: %w", err)
	}
	return bytes.NewReader(encoded), nil
}

type remoteMessage struct {
	Message string `json:"message"`
}

func (t *Transport) classify(method string, response *http.Response) error {
	requestURL := response.Request.URL.String()
	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))

	var message remoteMessage
	if readErr == nil && json.Unmarshal(body, &message) == nil {
		if message.Message == "" {
			message.Message = http.StatusText(response.StatusCode)
		}
		t.logger.Error("document store rejected request",
			"method", method,
			"url", requestURL,
			"status", response.StatusCode,
			"message", message.Message,
		)
		return &RemoteRejectedError{StatusCode: response.StatusCode, Message: message.Message}
	}

	t.logger.Error("document store returned an unrecognized response",
		"method", method,
		"url", requestURL,
		"status", response.StatusCode,
		"content_type", response.Header.Get("Content-Type"),
		"body", string(body),
	)
	return &UnrecognizedResponseError{
		StatusCode: response.StatusCode,
		Summary:    summarize(body, response.Header.Get("Content-Type")),
	}
}

// summarize shortens an undecodable body for an error message. HTML error
// pages are reduced to their title or visible text.
func summarize(body []byte, contentType string) string {
	text := strings.TrimSpace(string(body))
	if strings.Contains(contentType, "html") || strings.HasPrefix(text, "<") {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
			if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
				text = title
			} else {
				text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
			}
		}
	}
	return truncate(text, 200)
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
