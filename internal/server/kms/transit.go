package kms

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ztmed/emrsearch/internal/common"
)

// HTTPTransitClient talks to a Vault-style transit service over HTTP:
//
//	POST {addr}/encrypt/{keyName} {"plaintext": base64} -> {"ciphertext": "..."}
//	POST {addr}/decrypt/{keyName} {"ciphertext": "..."} -> {"plaintext": base64}
//
// Non-2xx responses and missing fields are hard failures; nothing is retried
// at this layer.
type HTTPTransitClient struct {
	addr   string
	token  string
	client *http.Client
}

// NewHTTPTransitClient builds a client for the transit service at addr,
// authenticating with token when non-empty.
func NewHTTPTransitClient(addr, token string) *HTTPTransitClient {
	return &HTTPTransitClient{
		addr:   addr,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type transitRequest struct {
	Plaintext  string `json:"plaintext,omitempty"`
	Ciphertext string `json:"ciphertext,omitempty"`
}

type transitResponse struct {
	Plaintext  string `json:"plaintext"`
	Ciphertext string `json:"ciphertext"`
}

// Encrypt wraps plaintext under the named transit key and returns the opaque
// ciphertext.
func (c *HTTPTransitClient) Encrypt(ctx context.Context, keyName string, plaintext []byte) (string, error) {
	body := transitRequest{Plaintext: base64.StdEncoding.EncodeToString(plaintext)}
	resp, err := c.post(ctx, "/encrypt/"+keyName, body)
	if err != nil {
		return "", err
	}
	if resp.Ciphertext == "" {
		return "", fmt.Errorf("%w: transit response missing ciphertext", common.ErrBackendUnavailable)
	}
	return resp.Ciphertext, nil
}

// Decrypt unwraps the ciphertext under the named transit key.
func (c *HTTPTransitClient) Decrypt(ctx context.Context, keyName string, ciphertext string) ([]byte, error) {
	resp, err := c.post(ctx, "/decrypt/"+keyName, transitRequest{Ciphertext: ciphertext})
	if err != nil {
		return nil, err
	}
	if resp.Plaintext == "" {
		return nil, fmt.Errorf("%w: transit response missing plaintext", common.ErrBackendUnavailable)
	}
	plaintext, err := base64.StdEncoding.DecodeString(resp.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: transit plaintext not base64", common.ErrBackendUnavailable)
	}
	return plaintext, nil
}

func (c *HTTPTransitClient) post(ctx context.Context, path string, payload transitRequest) (*transitResponse, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Vault-Token", c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: transit request: %v", common.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: transit returned %s: %s", common.ErrBackendUnavailable, resp.Status, string(b))
	}

	var out transitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: transit response decode: %v", common.ErrBackendUnavailable, err)
	}
	return &out, nil
}
