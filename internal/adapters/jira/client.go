// Package jira reads issues from a Jira-compatible REST API.
//
// The client is read-only: the migration never writes back to the source.
// All requests are plain GETs, which makes them safe to retry through
// [transport.Caller].
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/deskbridge/deskbridge/internal/domain"
	"github.com/deskbridge/deskbridge/internal/ports"
	"github.com/deskbridge/deskbridge/internal/transport"
)

const apiPath = "/rest/api/2"

// Config carries the connection settings and the custom field IDs the
// client extracts from each issue. Empty field IDs are skipped.
type Config struct {
	BaseURL             string
	Token               string
	RequestTypeField    string
	ClassificationField string
	ParticipantsField   string
}

// Client implements ports.Source against a Jira REST endpoint.
type Client struct {
	baseURL             string
	token               string
	requestTypeField    string
	classificationField string
	participantsField   string

	http ports.HTTPClient
	call *transport.Caller
	log  zerolog.Logger
}

// NewClient builds a source client. The HTTP client owns TLS and timeout
// policy; caller owns the retry policy.
func NewClient(cfg Config, httpClient ports.HTTPClient, caller *transport.Caller, log zerolog.Logger) *Client {
	return &Client{
		baseURL:             cfg.BaseURL,
		token:               cfg.Token,
		requestTypeField:    cfg.RequestTypeField,
		classificationField: cfg.ClassificationField,
		participantsField:   cfg.ParticipantsField,
		http:                httpClient,
		call:                caller,
		log:                 log.With().Str("component", "jira").Logger(),
	}
}

// Search runs a JQL query and returns one page of issues plus the total
// match count. offset and limit map to startAt and maxResults.
func (c *Client) Search(ctx context.Context, query string, offset, limit int) ([]domain.Issue, int, error) {
	params := url.Values{}
	params.Set("jql", query)
	params.Set("startAt", strconv.Itoa(offset))
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("fields", "*all")
	params.Set("expand", "changelog")

	body, err := c.get(ctx, "search", c.baseURL+apiPath+"/search?"+params.Encode())
	if err != nil {
		return nil, 0, fmt.Errorf("search issues: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	issues := make([]domain.Issue, 0, len(resp.Issues))
	for _, ij := range resp.Issues {
		issue, err := c.toDomain(ij)
		if err != nil {
			return nil, 0, fmt.Errorf("decode issue %s: %w", ij.Key, err)
		}
		issues = append(issues, issue)
	}

	c.log.Debug().
		Int("offset", offset).
		Int("fetched", len(issues)).
		Int("total", resp.Total).
		Msg("search page fetched")
	return issues, resp.Total, nil
}

// Count returns the total number of issues matching the query without
// fetching any of them.
func (c *Client) Count(ctx context.Context, query string) (int, error) {
	params := url.Values{}
	params.Set("jql", query)
	params.Set("maxResults", "0")

	body, err := c.get(ctx, "count", c.baseURL+apiPath+"/search?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return resp.Total, nil
}

// AttachmentContent downloads one attachment. contentURL is the absolute
// URL reported by the issue payload.
func (c *Client) AttachmentContent(ctx context.Context, contentURL string) ([]byte, error) {
	body, err := c.get(ctx, "attachment", contentURL)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	return body, nil
}

// ProjectStatuses returns the distinct workflow status names of a project,
// in the order the API reports them across issue types.
func (c *Client) ProjectStatuses(ctx context.Context, projectKey string) ([]string, error) {
	body, err := c.get(ctx, "project statuses", c.baseURL+apiPath+"/project/"+url.PathEscape(projectKey)+"/statuses")
	if err != nil {
		return nil, fmt.Errorf("fetch project statuses: %w", err)
	}

	var types []projectStatusesJSON
	if err := json.Unmarshal(body, &types); err != nil {
		return nil, fmt.Errorf("decode project statuses: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, t := range types {
		for _, s := range t.Statuses {
			if s.Name == "" || seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			names = append(names, s.Name)
		}
	}
	return names, nil
}

// SecurityLevels returns the names of the security levels configured on a
// project. Projects without a security scheme yield an empty list.
func (c *Client) SecurityLevels(ctx context.Context, projectKey string) ([]string, error) {
	body, err := c.get(ctx, "security levels", c.baseURL+apiPath+"/project/"+url.PathEscape(projectKey)+"/securitylevel")
	if err != nil {
		return nil, fmt.Errorf("fetch security levels: %w", err)
	}

	var resp securityLevelsJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode security levels: %w", err)
	}

	names := make([]string, 0, len(resp.Levels))
	for _, l := range resp.Levels {
		names = append(names, l.Name)
	}
	return names, nil
}

// get performs an authenticated GET under the retry policy and returns the
// response body.
func (c *Client) get(ctx context.Context, op, rawurl string) ([]byte, error) {
	var body []byte
	err := c.call.Call(ctx, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			return transport.NewStatusError(op, resp)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		body = b
		return nil
	})
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		}
		return nil, err
	}
	return body, nil
}
