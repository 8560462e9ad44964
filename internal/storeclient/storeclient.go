// Package storeclient is a typed wrapper over the embedded key/value
// store's loopback protocol (spec.md §4.2). The store itself is an
// external collaborator: a JSON-document store addressable by
// top-level key plus a JSONPath sub-path, reached over a loopback
// HTTP socket. This package only speaks its client side.
package storeclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shog-ai/shoggoth/internal/errs"
)

// Client talks to the KV store over a loopback HTTP connection.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New returns a Client bound to host:port.
func New(host string, port int) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

type request struct {
	Op    string      `json:"op"`
	Key   string      `json:"key"`
	Path  string      `json:"path,omitempty"`
	Value interface{} `json:"value,omitempty"`
	N     float64     `json:"n,omitempty"`
}

type response struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (c *Client) do(req request) (*response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Internal("marshal store request", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Internal("build store request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, errs.StoreUnreachable(fmt.Sprintf("%s %s", req.Op, req.Key), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.StoreUnreachable("read store response", err)
	}

	var out response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errs.ProtocolError("decode store response", err)
	}
	if !out.OK {
		return nil, errs.StoreError(fmt.Sprintf("%s %s: %s", req.Op, req.Key, out.Error), nil)
	}
	return &out, nil
}

// Ping checks reachability of the store, used by the supervisor to
// confirm the child process is up before continuing startup.
func (c *Client) Ping() error {
	httpReq, err := http.NewRequest(http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return errs.Internal("build ping request", err)
	}
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return errs.StoreUnreachable("ping", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errs.StoreError(fmt.Sprintf("ping returned status %d", resp.StatusCode), nil)
	}
	return nil
}

// Get returns the sub-document at path within key, decoded into out.
// If path is empty the whole document at key is returned.
func (c *Client) Get(key, path string, out interface{}) error {
	resp, err := c.do(request{Op: "get", Key: key, Path: path})
	if err != nil {
		return err
	}
	if len(resp.Value) == 0 || string(resp.Value) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Value, out); err != nil {
		return errs.ProtocolError("decode get value", err)
	}
	return nil
}

// Set overwrites the node at path within key with value.
func (c *Client) Set(key, path string, value interface{}) error {
	_, err := c.do(request{Op: "set", Key: key, Path: path, Value: value})
	return err
}

// Append appends value to the array at path within key.
func (c *Client) Append(key, path string, value interface{}) error {
	_, err := c.do(request{Op: "append", Key: key, Path: path, Value: value})
	return err
}

// Delete removes the first array element matching the JSONPath
// predicate in pathWithPredicate within key.
func (c *Client) Delete(key, pathWithPredicate string) error {
	_, err := c.do(request{Op: "delete", Key: key, Path: pathWithPredicate})
	return err
}

// Increment atomically adds n to the numeric node at path within key.
func (c *Client) Increment(key, path string, n float64) error {
	_, err := c.do(request{Op: "increment", Key: key, Path: path, N: n})
	return err
}
