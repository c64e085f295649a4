package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dohr-michael/lumi/internal/config"
)

const maxResponseBytes = 4 << 20

// Client dispatches operations to the backend over HTTP.
type Client struct {
	HTTPClient *http.Client

	mu      sync.RWMutex
	baseURL string
	routes  config.RoutesConfig
	timeout time.Duration
}

// NewClient creates a Client from backend configuration.
func NewClient(cfg config.BackendConfig) *Client {
	c := &Client{HTTPClient: &http.Client{}}
	c.Reconfigure(cfg)
	return c
}

// Reconfigure swaps base URL, routes and timeout. Requests already in
// flight keep the target they were issued with.
func (c *Client) Reconfigure(cfg config.BackendConfig) {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	c.routes = cfg.Routes
	c.timeout = timeout
}

// BaseURL returns the backend the client currently targets.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) endpoint(op Operation) (string, time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var route string
	switch op {
	case OpVoiceCommand:
		route = c.routes.Listen
	case OpTextCommand:
		route = c.routes.TextCommand
	case OpAskDocument:
		route = c.routes.AskDocument
	case OpUploadDocument:
		route = c.routes.Upload
	default:
		return "", 0, fmt.Errorf("unknown operation %q", op)
	}
	return c.baseURL + route, c.timeout, nil
}

// Dispatch issues op with payload and normalizes every outcome into either
// a Response or a *Failure.
func (c *Client) Dispatch(ctx context.Context, op Operation, payload any) (Response, error) {
	start := time.Now()
	resp, err := c.dispatch(ctx, op, payload)
	if err != nil {
		f := AsFailure(op, err)
		if f.Op == "" {
			f.Op = op
		}
		slog.Warn("backend request failed",
			"op", op, "kind", f.Kind, "status", f.Status, "error", f.Err, "message", f.Message,
			"duration", time.Since(start))
		return Response{}, f
	}
	slog.Debug("backend request done", "op", op, "duration", time.Since(start))
	return resp, nil
}

func (c *Client) dispatch(ctx context.Context, op Operation, payload any) (Response, error) {
	url, timeout, err := c.endpoint(op)
	if err != nil {
		return Response{}, &Failure{Kind: ValidationFailure, Op: op, Message: err.Error(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, contentType, err := encode(payload)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Response{}, &Failure{Kind: TransportFailure, Op: op, Message: DefaultFailureMessage, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Response{}, &Failure{Kind: TransportFailure, Op: op, Message: DefaultFailureMessage, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return Response{}, &Failure{Kind: TransportFailure, Op: op, Status: httpResp.StatusCode, Message: DefaultFailureMessage, Err: err}
	}

	return decode(op, httpResp.StatusCode, data)
}

// encode picks the wire format from the payload's shape.
func encode(payload any) (io.Reader, string, error) {
	switch p := payload.(type) {
	case nil:
		return nil, "", nil
	case FileUpload:
		return encodeMultipart(p)
	case *FileUpload:
		if p == nil {
			return nil, "", nil
		}
		return encodeMultipart(*p)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, "", &Failure{Kind: ValidationFailure, Message: "could not encode request", Err: err}
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func encodeMultipart(u FileUpload) (io.Reader, string, error) {
	content := u.Content
	name := u.Name
	if content == nil {
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, "", &Failure{
				Kind:    TransportFailure,
				Op:      OpUploadDocument,
				Message: fmt.Sprintf("Could not read %s.", filepath.Base(u.Path)),
				Err:     err,
			}
		}
		defer f.Close()
		content = f
	}
	if name == "" {
		name = filepath.Base(u.Path)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", &Failure{Kind: ValidationFailure, Op: OpUploadDocument, Message: "could not encode upload", Err: err}
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", &Failure{
			Kind:    TransportFailure,
			Op:      OpUploadDocument,
			Message: fmt.Sprintf("Could not read %s.", name),
			Err:     err,
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", &Failure{Kind: ValidationFailure, Op: OpUploadDocument, Message: "could not encode upload", Err: err}
	}
	return &buf, w.FormDataContentType(), nil
}

func decode(op Operation, status int, data []byte) (Response, error) {
	var resp Response
	decodeErr := json.Unmarshal(data, &resp)

	if status < 200 || status >= 300 {
		msg := ""
		if decodeErr == nil {
			msg = resp.Message
		}
		if msg == "" {
			msg = DefaultFailureMessage
		}
		return Response{}, &Failure{
			Kind:    ServerFailure,
			Op:      op,
			Status:  status,
			Message: msg,
			Err:     fmt.Errorf("status %d: %s", status, truncate(string(data), 200)),
		}
	}

	if decodeErr != nil {
		// Upload success only matters as a status; tolerate non-JSON bodies.
		if op == OpUploadDocument {
			return Response{}, nil
		}
		return Response{}, &Failure{Kind: ServerFailure, Op: op, Status: status, Message: malformedReplyMessage, Err: decodeErr}
	}

	if strings.EqualFold(resp.Status, "error") {
		msg := resp.Message
		if msg == "" {
			msg = DefaultFailureMessage
		}
		return Response{}, &Failure{Kind: ServerFailure, Op: op, Status: status, Message: msg, Err: errors.New("backend reported error status")}
	}

	if op != OpUploadDocument && resp.Reply() == "" {
		return Response{}, &Failure{Kind: ServerFailure, Op: op, Status: status, Message: emptyReplyMessage}
	}

	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
