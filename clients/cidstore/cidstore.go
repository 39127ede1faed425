// Package cidstore is the content-addressed evidence-store client (§4.1).
// Grounded on original_source/data-processor/src/storage/ipfs_client.py's
// put_json/get_json/pin/unpin/url_for contract; built on internal/httpretry
// for the common timeout/retry/rate-limit contract. Implements
// internal/evidence's CIDStore interface.
package cidstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/httpretry"
	"github.com/harvestguard/ingestcore/internal/ratelimit"
)

// Client is the content-addressed store upstream client.
type Client struct {
	baseURL string
	token   string
	runner  *httpretry.Client
}

func New(baseURL, token string, httpClient httpretry.Doer, limiter *ratelimit.ClientLimiter, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		runner:  httpretry.New("cidstore", httpClient, limiter, logger),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Permanent, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

type putRequestWire struct {
	Object   json.RawMessage   `json:"object"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type putResponseWire struct {
	CID string `json:"cid"`
}

// PutJSON implements §4.1 put_json and satisfies evidence.CIDStore: the
// store, not the caller, is the source of truth for the published cid.
func (c *Client) PutJSON(ctx context.Context, object any, metadata map[string]string) (string, error) {
	encoded, err := json.Marshal(object)
	if err != nil {
		return "", apperr.Wrap(apperr.Permanent, "encode object", err)
	}
	payload, err := json.Marshal(putRequestWire{Object: encoded, Metadata: metadata})
	if err != nil {
		return "", apperr.Wrap(apperr.Permanent, "encode put_json request", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/objects", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	body, _, err := c.runner.Do(ctx, req)
	if err != nil {
		return "", err
	}
	var wire putResponseWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return "", apperr.Wrap(apperr.Permanent, "decode put_json response", err)
	}
	return wire.CID, nil
}

// GetJSON implements §4.1 get_json, decoding the stored object into out.
func (c *Client) GetJSON(ctx context.Context, cid string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/objects/"+cid, nil)
	if err != nil {
		return err
	}
	body, _, err := c.runner.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.Permanent, "decode get_json response", err)
	}
	return nil
}

// Pin implements §4.1 pin: requests durable retention for a cid.
func (c *Client) Pin(ctx context.Context, cid string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/objects/"+cid+"/pin", nil)
	if err != nil {
		return err
	}
	_, _, err = c.runner.Do(ctx, req)
	return err
}

// Unpin implements §4.1 unpin.
func (c *Client) Unpin(ctx context.Context, cid string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/objects/"+cid+"/pin", nil)
	if err != nil {
		return err
	}
	_, _, err = c.runner.Do(ctx, req)
	return err
}

// URLFor implements §4.1 url_for: a stable, publicly resolvable gateway URL
// for a cid. No round-trip required; the gateway path is deterministic.
func (c *Client) URLFor(cid string) string {
	return c.baseURL + "/objects/" + cid
}
