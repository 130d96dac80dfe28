// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package propublica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/donorfinder/core"
	"github.com/sethvargo/go-retry"
)

// DefaultBaseURL is the Nonprofit Explorer API v2 endpoint.
const DefaultBaseURL = "https://projects.propublica.org/nonprofits/api/v2"

var (
	// ErrNotFound is returned when the API has no such organization.
	ErrNotFound = errors.New("organization not found")

	// ErrUnexpectedStatus is returned for non-retryable HTTP failures.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// SearchParams selects organizations in a search. Zero values are omitted.
type SearchParams struct {
	Query string
	State string
	// NTEE is the major group number (1-10) used by the API.
	NTEE int
	// Subsection is the 501(c) subsection code, e.g. 3.
	Subsection int
	Page       int
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	TotalResults  int            `json:"total_results"`
	NumPages      int            `json:"num_pages"`
	CurPage       int            `json:"cur_page"`
	Organizations []Organization `json:"organizations"`
}

// OrganizationResponse is the body of an organization lookup.
type OrganizationResponse struct {
	Organization *Organization `json:"organization"`
}

// Client calls the Nonprofit Explorer API.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetry sets how often and how patiently transient failures are retried.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max(maxRetries, 0)
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "propublica")
	return c
}

// Search returns one page of organizations matching params. A search
// without results yields an empty page rather than an error.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(params.Page))
	if params.Query != "" {
		q.Set("q", params.Query)
	}
	if params.State != "" {
		q.Set("state[id]", strings.ToUpper(params.State))
	}
	if params.NTEE > 0 {
		q.Set("ntee[id]", strconv.Itoa(params.NTEE))
	}
	if params.Subsection > 0 {
		q.Set("c_code[id]", strconv.Itoa(params.Subsection))
	}

	var resp SearchResponse
	err := c.get(ctx, "/search.json", q, &resp)
	if errors.Is(err, ErrNotFound) {
		return &SearchResponse{CurPage: params.Page, Organizations: []Organization{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Organization looks up one organization by EIN.
func (c *Client) Organization(ctx context.Context, ein core.ID) (*Organization, error) {
	var resp OrganizationResponse
	if err := c.get(ctx, fmt.Sprintf("/organizations/%d.json", uint64(ein)), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Organization == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ein)
	}
	return resp.Organization, nil
}

// Collect pages through search results until maxOrgs organizations have
// been gathered or the results run out. Each hit is refreshed from its
// detail record when that lookup succeeds.
func (c *Client) Collect(ctx context.Context, params SearchParams, maxOrgs int) ([]*core.Organization, error) {
	var orgs []*core.Organization
	seen := make(map[core.ID]bool)

	for page := params.Page; maxOrgs <= 0 || len(orgs) < maxOrgs; page++ {
		params.Page = page
		resp, err := c.Search(ctx, params)
		if err != nil {
			return orgs, err
		}
		for i := range resp.Organizations {
			hit := &resp.Organizations[i]
			if hit.EIN == 0 || seen[core.ID(hit.EIN)] {
				continue
			}
			seen[core.ID(hit.EIN)] = true

			record := hit
			details, err := c.Organization(ctx, core.ID(hit.EIN))
			switch {
			case err == nil:
				record = details
			case ctx.Err() != nil:
				return orgs, ctx.Err()
			default:
				c.logger.Warn("error fetching organization details, using search record", "ein", hit.EIN, "err", err)
			}
			orgs = append(orgs, record.ToCore())
			if maxOrgs > 0 && len(orgs) >= maxOrgs {
				return orgs, nil
			}
		}
		if len(resp.Organizations) == 0 || page+1 >= resp.NumPages {
			break
		}
	}
	return orgs, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.WithJitterPercent(20, retry.NewExponential(c.retryDelay)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug("request failed, will retry", "url", target, "err", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decoding %s: %w", path, err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			c.logger.Debug("transient response, will retry", "url", target, "status", resp.StatusCode)
			return retry.RetryableError(fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status))
		default:
			return fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
		}
	})
}
