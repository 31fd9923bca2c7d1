package manifest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modstage/modstage/pkg/download"
	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/extract"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/types"
)

const apiBase = "https://api.nexusmods.com"

// Fetcher downloads and parses collection bundles.
type Fetcher struct {
	apiKey     string
	downloader *download.Downloader
	httpClient *http.Client
}

// NewFetcher returns a Fetcher authenticated with apiKey. The key is
// needed when the bundle link is a relative API path rather than a
// direct CDN URL.
func NewFetcher(apiKey string, d *download.Downloader) *Fetcher {
	return &Fetcher{
		apiKey:     apiKey,
		downloader: d,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads the manifest bundle behind downloadLink, extracts it,
// and parses its collection.json. Work happens in a throwaway temp
// directory that is removed before returning.
func (f *Fetcher) Fetch(ctx context.Context, downloadLink, slug string, revision int) (*types.Manifest, error) {
	logger := logging.GetLogger("manifest")

	if downloadLink == "" {
		return nil, errors.Newf(errors.ErrManifestMissing, "collection %s has no bundle download link", slug)
	}

	cdnURL, err := f.resolveLink(ctx, downloadLink)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "modstage-manifest-")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrLocalIO, "failed to create temp directory")
	}
	defer os.RemoveAll(tmpDir)

	bundlePath := filepath.Join(tmpDir, "bundle.7z")
	if err := f.downloader.Fetch(ctx, cdnURL, bundlePath, nil); err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestMissing, "failed to download bundle for %s", slug)
	}

	extractDir := filepath.Join(tmpDir, "extracted")
	files, err := extract.Extract(ctx, bundlePath, extractDir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestInvalid, "failed to extract bundle for %s", slug)
	}

	jsonPath := findCollectionJSON(extractDir, files)
	if jsonPath == "" {
		return nil, errors.Newf(errors.ErrManifestInvalid, "bundle for %s contains no collection.json", slug)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrLocalIO, "failed to read %s", jsonPath)
	}

	m, err := Parse(data, slug, revision)
	if err != nil {
		return nil, err
	}
	m.DownloadLink = downloadLink

	logger.Debug().
		Str("slug", slug).
		Int("mods", len(m.Mods)).
		Int("rules", len(m.Rules)).
		Msg("Manifest parsed")
	return m, nil
}

// resolveLink turns the bundle link into a fetchable CDN URL. A relative
// API path points at a download_link endpoint that returns mirrors.
func (f *Fetcher) resolveLink(ctx context.Context, link string) (string, error) {
	if !strings.HasPrefix(link, "/") {
		return link, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+link, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "failed to build bundle link request")
	}
	req.Header.Set("apikey", f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrRemote, "failed to resolve bundle link")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrRemote, "bundle link endpoint returned %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrRemote, "failed to read bundle link response")
	}

	var body struct {
		DownloadLinks []struct {
			URI string `json:"URI"`
		} `json:"download_links"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", errors.Wrap(err, errors.ErrRemote, "invalid bundle link response")
	}
	if len(body.DownloadLinks) == 0 || body.DownloadLinks[0].URI == "" {
		return "", errors.New(errors.ErrLinkUnavailable, "no download links returned for bundle")
	}
	return body.DownloadLinks[0].URI, nil
}

// findCollectionJSON locates collection.json among extracted files,
// nested directories included.
func findCollectionJSON(root string, files []string) string {
	for _, rel := range files {
		if filepath.Base(rel) == "collection.json" {
			return filepath.Join(root, rel)
		}
	}
	return ""
}
