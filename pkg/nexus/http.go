package nexus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/logging"
)

const (
	graphqlURL  = "https://api.nexusmods.com/v2/graphql"
	restBaseURL = "https://api.nexusmods.com/v1"
	userAgent   = "modstage/0.1.0"

	// The API allows roughly 2 requests per second; space requests so a
	// full sync never trips the limiter on its own.
	minRequestInterval = 500 * time.Millisecond
)

// HTTPClient implements Client against the production API.
type HTTPClient struct {
	apiKey          string
	httpClient      *http.Client
	graphqlEndpoint string
	restBase        string

	mu       sync.Mutex
	lastCall time.Time
}

// NewHTTPClient returns a Client authenticated with apiKey.
func NewHTTPClient(apiKey string) *HTTPClient {
	return &HTTPClient{
		apiKey:          apiKey,
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		graphqlEndpoint: graphqlURL,
		restBase:        restBaseURL,
	}
}

// throttle enforces the minimum spacing between API calls.
func (c *HTTPClient) throttle(ctx context.Context) error {
	c.mu.Lock()
	wait := minRequestInterval - time.Since(c.lastCall)
	c.lastCall = time.Now().Add(wait)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do issues a request and decodes the body after mapping HTTP status
// codes onto the error taxonomy.
func (c *HTTPClient) do(ctx context.Context, method, rawURL string, body []byte, out interface{}) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to build API request")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, errors.ErrRemote, "API request failed: %s", rawURL)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, errors.ErrRemote, "failed to read API response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 60
		if v := resp.Header.Get("Retry-After"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				retryAfter = n
			}
		}
		return errors.New(errors.ErrRateLimited, "rate limited by the API").
			WithDetail("retry_after", retryAfter)
	case resp.StatusCode == http.StatusForbidden:
		if strings.Contains(strings.ToLower(string(payload)), "premium") {
			return errors.New(errors.ErrEntitlement, "premium membership required for direct download links")
		}
		return errors.Newf(errors.ErrRemote, "access forbidden: %s", rawURL)
	case resp.StatusCode == http.StatusNotFound:
		return errors.Newf(errors.ErrNotFound, "resource not found: %s", rawURL)
	case resp.StatusCode >= 400:
		return errors.Newf(errors.ErrRemote, "API returned %d for %s", resp.StatusCode, rawURL)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Wrapf(err, errors.ErrRemote, "invalid API response from %s", rawURL)
	}
	return nil
}

// graphql executes one GraphQL query and decodes its data object.
func (c *HTTPClient) graphql(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode GraphQL request")
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := c.do(ctx, http.MethodPost, c.graphqlEndpoint, body, &envelope); err != nil {
		return err
	}
	if len(envelope.Errors) > 0 {
		return errors.Newf(errors.ErrRemote, "GraphQL error: %s", envelope.Errors[0].Message)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return errors.Wrap(err, errors.ErrRemote, "invalid GraphQL response")
	}
	return nil
}

// Validate implements Client.
func (c *HTTPClient) Validate(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, c.restBase+"/users/validate.json", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

const collectionRevisionQuery = `
query CollectionRevision($slug: String!) {
    collection(slug: $slug) {
        slug
        name
        game {
            domainName
        }
        latestPublishedRevision {
            revisionNumber
            downloadLink
        }
    }
}
`

// CollectionRevision implements Client. Only the latest published
// revision is addressable through the public schema; asking for an older
// revision fails with ErrNotFound when it is no longer the latest.
func (c *HTTPClient) CollectionRevision(ctx context.Context, gameDomain, slug string, revision int) (*RevisionInfo, error) {
	logger := logging.GetLogger("nexus")

	var data struct {
		Collection *struct {
			Slug string `json:"slug"`
			Name string `json:"name"`
			Game struct {
				DomainName string `json:"domainName"`
			} `json:"game"`
			LatestPublishedRevision *struct {
				RevisionNumber int    `json:"revisionNumber"`
				DownloadLink   string `json:"downloadLink"`
			} `json:"latestPublishedRevision"`
		} `json:"collection"`
	}
	if err := c.graphql(ctx, collectionRevisionQuery, map[string]interface{}{"slug": slug}, &data); err != nil {
		return nil, err
	}
	if data.Collection == nil || data.Collection.LatestPublishedRevision == nil {
		return nil, errors.Newf(errors.ErrNotFound, "collection not found: %s", slug)
	}

	col := data.Collection
	if gameDomain != "" && !strings.EqualFold(col.Game.DomainName, gameDomain) {
		return nil, errors.Newf(errors.ErrNotFound,
			"collection %s belongs to game %s, not %s", slug, col.Game.DomainName, gameDomain)
	}

	latest := col.LatestPublishedRevision
	if revision > 0 && revision != latest.RevisionNumber {
		return nil, errors.Newf(errors.ErrNotFound,
			"revision %d of collection %s is not the latest published revision (%d)",
			revision, slug, latest.RevisionNumber)
	}

	logger.Debug().Str("slug", slug).Int("revision", latest.RevisionNumber).Msg("Collection revision fetched")
	return &RevisionInfo{
		Slug:         col.Slug,
		Name:         col.Name,
		GameDomain:   col.Game.DomainName,
		Revision:     latest.RevisionNumber,
		DownloadLink: latest.DownloadLink,
	}, nil
}

// ModFiles implements Client.
func (c *HTTPClient) ModFiles(ctx context.Context, gameDomain string, modID int64) ([]FileInfo, error) {
	var out struct {
		Files []FileInfo `json:"files"`
	}
	endpoint := fmt.Sprintf("%s/games/%s/mods/%d/files.json", c.restBase, gameDomain, modID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// DownloadLink implements Client. The endpoint returns a list of CDN
// mirrors; the first is used.
func (c *HTTPClient) DownloadLink(ctx context.Context, gameDomain string, modID, fileID int64) (string, error) {
	var mirrors []struct {
		Name string `json:"name"`
		URI  string `json:"URI"`
	}
	endpoint := fmt.Sprintf("%s/games/%s/mods/%d/files/%d/download_link.json", c.restBase, gameDomain, modID, fileID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &mirrors); err != nil {
		return "", err
	}
	if len(mirrors) == 0 || mirrors[0].URI == "" {
		return "", errors.Newf(errors.ErrLinkUnavailable, "no download link for mod %d file %d", modID, fileID)
	}
	return mirrors[0].URI, nil
}

// TrackedMods implements Client.
func (c *HTTPClient) TrackedMods(ctx context.Context, gameDomain string) ([]TrackedMod, error) {
	var all []TrackedMod
	if err := c.do(ctx, http.MethodGet, c.restBase+"/user/tracked_mods.json", nil, &all); err != nil {
		return nil, err
	}
	var filtered []TrackedMod
	for _, tm := range all {
		if strings.EqualFold(tm.GameDomain, gameDomain) {
			filtered = append(filtered, tm)
		}
	}
	return filtered, nil
}

// TrackMod implements Client.
func (c *HTTPClient) TrackMod(ctx context.Context, gameDomain string, modID int64) error {
	endpoint := fmt.Sprintf("%s/user/tracked_mods.json?domain_name=%s&mod_id=%d",
		c.restBase, url.QueryEscape(gameDomain), modID)
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}
