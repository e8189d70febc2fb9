package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/Victormzing/storefront-bff/errors"
	"github.com/Victormzing/storefront-bff/session"
)

// GatewayClient is the shared HTTP transport for every upstream call. One
// instance is built at startup and handed to the typed clients.
type GatewayClient struct {
	baseURL string
	client  *http.Client
}

func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Do issues one request against the upstream API, forwarding the session's
// bearer token when one is present.
func (g *GatewayClient) Do(ctx context.Context, sess session.Handle, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	return g.client.Do(req)
}

// DoJSON marshals the request body, issues the call and decodes the response
// into out, validating its shape at the boundary. A body that fails to decode
// or validate surfaces as ErrMalformedResponse rather than as zero values.
func (g *GatewayClient) DoJSON(ctx context.Context, sess session.Handle, method, path string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	resp, err := g.Do(ctx, sess, method, path, query, body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrBadGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return upstreamError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.ErrMalformedResponse, err)
	}
	if v, ok := out.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return apperrors.Wrap(apperrors.ErrMalformedResponse, err)
		}
	}
	return nil
}

// Raw is the pass-through variant used by proxy handlers: it copies the
// upstream response verbatim to the caller.
func (g *GatewayClient) Raw(ctx context.Context, sess session.Handle, method, path string, query url.Values, body []byte) (*http.Response, error) {
	var r io.Reader
	if len(body) > 0 {
		r = bytes.NewReader(body)
	}
	return g.Do(ctx, sess, method, path, query, r)
}

// CopyResponse streams an upstream response to the client untouched.
func CopyResponse(w http.ResponseWriter, resp *http.Response) error {
	defer resp.Body.Close()

	for k, v := range resp.Header {
		for _, vv := range v {
			w.Header().Add(k, vv)
		}
	}
	w.WriteHeader(resp.StatusCode)

	_, err := io.Copy(w, resp.Body)
	return err
}

// upstreamError turns a non-2xx upstream response into an *errors.Error,
// keeping the collaborator's user-facing message when it sent one.
func upstreamError(resp *http.Response) *apperrors.Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	message := ""
	if json.Unmarshal(raw, &payload) == nil {
		switch {
		case payload.Detail != "":
			message = payload.Detail
		case payload.Error != "":
			message = payload.Error
		case payload.Message != "":
			message = payload.Message
		}
	}
	if message == "" {
		message = fmt.Sprintf("upstream returned status %d", resp.StatusCode)
	}
	return apperrors.New(resp.StatusCode, message, nil)
}
