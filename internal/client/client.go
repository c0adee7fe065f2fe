// Package client is a Go client of the docstore REST API.
package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/Chinzzii/docstore/internal/store"
)

// ErrNotFound is returned when the server responds 404.
var ErrNotFound = errors.New("not found")

// Client sends requests to a docstore server.
type Client struct {
	BaseURL string       // Base URL of the server, eg "http://localhost:5000"
	APIKey  string       // APIKey, if non-empty, is sent in Header
	Header  string       // Header carrying the API key
	HTTP    *http.Client // HTTP client used for requests
}

// New returns a Client of |baseURL| with a default timeout.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Header:  "x-api-key",
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// ListOptions are the control parameters of a List request.
type ListOptions struct {
	Filters map[string]string
	Sort    string
	Desc    bool
	Limit   int
}

// Resources returns the resources served under /api.
func (c *Client) Resources() ([]string, error) {
	var out struct {
		Resources []string `json:"resources"`
	}
	if err := c.do(http.MethodGet, "/api", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

// List returns records of |resource| selected by |opts|.
func (c *Client) List(resource string, opts ListOptions) ([]store.Record, error) {
	var q = url.Values{}
	for k, v := range opts.Filters {
		q.Set(k, v)
	}
	if opts.Sort != "" {
		q.Set("_sort", opts.Sort)
		if opts.Desc {
			q.Set("_order", "desc")
		} else {
			q.Set("_order", "asc")
		}
	}
	if opts.Limit > 0 {
		q.Set("_limit", strconv.Itoa(opts.Limit))
	}

	var out []store.Record
	if err := c.do(http.MethodGet, "/api/"+url.PathEscape(resource), q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the record of |resource| with |id|.
func (c *Client) Get(resource, id string) (store.Record, error) {
	var out store.Record
	return out, c.do(http.MethodGet, recordPath(resource, id), nil, nil, &out)
}

// Create adds a record to |resource|, returning it with its assigned id.
func (c *Client) Create(resource string, fields store.Record) (store.Record, error) {
	var out store.Record
	return out, c.do(http.MethodPost, "/api/"+url.PathEscape(resource), nil, fields, &out)
}

// Update merges |fields| into the record of |resource| with |id|.
func (c *Client) Update(resource, id string, fields store.Record) (store.Record, error) {
	var out store.Record
	return out, c.do(http.MethodPut, recordPath(resource, id), nil, fields, &out)
}

// Delete removes the record of |resource| with |id|, if it exists.
func (c *Client) Delete(resource, id string) error {
	return c.do(http.MethodDelete, recordPath(resource, id), nil, nil, nil)
}

func recordPath(resource, id string) string {
	return "/api/" + url.PathEscape(resource) + "/" + url.PathEscape(id)
}

// do sends a single request and decodes a JSON response into |out|.
func (c *Client) do(method, path string, query url.Values, body interface{}, out interface{}) error {
	var u = c.BaseURL + path
	if len(query) != 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		var b, err = json.Marshal(body)
		if err != nil {
			return errors.WithMessage(err, "failed to marshal request")
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, u, rdr)
	if err != nil {
		return errors.WithMessage(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set(c.Header, c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		// Network errors (eg, connection refused).
		return errors.WithMessagef(err, "%s %s failed", method, u)
	}
	// Always close the response body to prevent resource leaks.
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode/100 != 2:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return errors.Errorf("%s %s: %s: %s", method, u, resp.Status, e.Error)
	case out == nil || resp.StatusCode == http.StatusNoContent:
		return nil
	}

	var dec = json.NewDecoder(resp.Body)
	dec.UseNumber()
	return errors.WithMessage(dec.Decode(out), "decoding response")
}
