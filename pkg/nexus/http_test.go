package nexus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modstage/modstage/pkg/errors"
)

// testClient points a real HTTPClient at a local test server.
func testClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewHTTPClient("test-key")
	c.graphqlEndpoint = srv.URL + "/v2/graphql"
	c.restBase = srv.URL + "/v1"
	return c
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		header   http.Header
		wantCode errors.ErrorCode
	}{
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			header:   http.Header{"Retry-After": []string{"17"}},
			wantCode: errors.ErrRateLimited,
		},
		{
			name:     "premium required",
			status:   http.StatusForbidden,
			body:     `{"message": "You require a Premium membership"}`,
			wantCode: errors.ErrEntitlement,
		},
		{
			name:     "plain forbidden",
			status:   http.StatusForbidden,
			body:     `{"message": "nope"}`,
			wantCode: errors.ErrRemote,
		},
		{
			name:     "not found",
			status:   http.StatusNotFound,
			wantCode: errors.ErrNotFound,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			wantCode: errors.ErrRemote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for key, values := range tt.header {
					w.Header()[key] = values
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := c.Validate(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetErrorCode(err))
		})
	}
}

func TestHTTPClient_RateLimitCarriesRetryAfter(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.Validate(context.Background())
	require.Error(t, err)

	var msErr *errors.ModstageError
	require.ErrorAs(t, err, &msErr)
	assert.Equal(t, 17, msErr.Details["retry_after"])
}

func TestHTTPClient_SendsAuthHeaders(t *testing.T) {
	var gotKey, gotAgent string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"name": "tester", "is_premium": true}`))
	}))

	user, err := c.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, userAgent, gotAgent)
	assert.Equal(t, "tester", user.Name)
	assert.True(t, user.IsPremium)
}

func collectionResponse(slug, domain string, revision int, link string) string {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"collection": map[string]interface{}{
				"slug": slug,
				"name": "Test Collection",
				"game": map[string]string{"domainName": domain},
				"latestPublishedRevision": map[string]interface{}{
					"revisionNumber": revision,
					"downloadLink":   link,
				},
			},
		},
	}
	out, _ := json.Marshal(payload)
	return string(out)
}

func TestHTTPClient_CollectionRevision(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req struct {
			Variables map[string]interface{} `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "abc123", req.Variables["slug"])
		_, _ = w.Write([]byte(collectionResponse("abc123", "starfield", 9, "/v1/collections/abc123/revisions/9/download")))
	})

	t.Run("latest revision", func(t *testing.T) {
		c := testClient(t, handler)
		info, err := c.CollectionRevision(context.Background(), "starfield", "abc123", 0)
		require.NoError(t, err)
		assert.Equal(t, "abc123", info.Slug)
		assert.Equal(t, "starfield", info.GameDomain)
		assert.Equal(t, 9, info.Revision)
		assert.NotEmpty(t, info.DownloadLink)
	})

	t.Run("stale revision is not addressable", func(t *testing.T) {
		c := testClient(t, handler)
		_, err := c.CollectionRevision(context.Background(), "starfield", "abc123", 7)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
	})

	t.Run("wrong game domain", func(t *testing.T) {
		c := testClient(t, handler)
		_, err := c.CollectionRevision(context.Background(), "fallout4", "abc123", 0)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
	})
}

func TestHTTPClient_CollectionRevision_Missing(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"collection": null}}`))
	}))

	_, err := c.CollectionRevision(context.Background(), "starfield", "nope", 0)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}

func TestHTTPClient_DownloadLink(t *testing.T) {
	t.Run("first mirror wins", func(t *testing.T) {
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/games/starfield/mods/100/files/1001/download_link.json", r.URL.Path)
			_, _ = w.Write([]byte(`[{"name": "CDN A", "URI": "https://cdn-a/file.zip"}, {"name": "CDN B", "URI": "https://cdn-b/file.zip"}]`))
		}))

		link, err := c.DownloadLink(context.Background(), "starfield", 100, 1001)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn-a/file.zip", link)
	})

	t.Run("no mirrors", func(t *testing.T) {
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		}))

		_, err := c.DownloadLink(context.Background(), "starfield", 100, 1001)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrLinkUnavailable))
	})
}

func TestHTTPClient_TrackedMods_FiltersByGame(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"mod_id": 1, "domain_name": "starfield"},
			{"mod_id": 2, "domain_name": "fallout4"},
			{"mod_id": 3, "domain_name": "Starfield"}
		]`))
	}))

	tracked, err := c.TrackedMods(context.Background(), "starfield")
	require.NoError(t, err)
	require.Len(t, tracked, 2)
	assert.EqualValues(t, 1, tracked[0].ModID)
	assert.EqualValues(t, 3, tracked[1].ModID)
}

func TestHTTPClient_TrackMod(t *testing.T) {
	var gotQuery string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusCreated)
	}))

	err := c.TrackMod(context.Background(), "starfield", 4183)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "domain_name=starfield")
	assert.Contains(t, gotQuery, "mod_id=4183")
}
