package nexus

import (
	"net/url"
	"regexp"
	"strconv"

	"github.com/modstage/modstage/pkg/errors"
)

// CollectionRef identifies a collection from its site URL.
type CollectionRef struct {
	GameDomain string
	Slug       string
	// URL is the normalized canonical form with query params stripped.
	URL string
}

// ModRef identifies a mod page from its site URL.
type ModRef struct {
	GameDomain string
	ModID      int64
	URL        string
}

var (
	collectionPathRe = regexp.MustCompile(`^/(?:games/)?([^/]+)/collections/([^/?]+)`)
	modPathRe        = regexp.MustCompile(`^/([^/]+)/mods/(\d+)`)
)

func validHost(host string) bool {
	switch host {
	case "next.nexusmods.com", "www.nexusmods.com", "nexusmods.com":
		return true
	}
	return false
}

// ParseCollectionURL parses a collection page URL in either site layout:
//
//	https://next.nexusmods.com/{game}/collections/{slug}
//	https://www.nexusmods.com/games/{game}/collections/{slug}
//
// Query params such as ?tab= are ignored.
func ParseCollectionURL(raw string) (*CollectionRef, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "invalid collection URL %q", raw)
	}
	if !validHost(parsed.Host) {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"invalid domain %q, expected next.nexusmods.com", parsed.Host)
	}

	m := collectionPathRe.FindStringSubmatch(parsed.Path)
	if m == nil {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"invalid collection URL %q, expected https://next.nexusmods.com/{game}/collections/{slug}", raw)
	}

	return &CollectionRef{
		GameDomain: m[1],
		Slug:       m[2],
		URL:        "https://next.nexusmods.com/" + m[1] + "/collections/" + m[2],
	}, nil
}

// ParseModURL parses a mod page URL:
//
//	https://www.nexusmods.com/{game}/mods/{id}
func ParseModURL(raw string) (*ModRef, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "invalid mod URL %q", raw)
	}
	if !validHost(parsed.Host) {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"invalid domain %q, expected nexusmods.com", parsed.Host)
	}

	m := modPathRe.FindStringSubmatch(parsed.Path)
	if m == nil {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"invalid mod URL %q, expected https://www.nexusmods.com/{game}/mods/{id}", raw)
	}

	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "invalid mod id in URL %q", raw)
	}

	return &ModRef{
		GameDomain: m[1],
		ModID:      id,
		URL:        "https://www.nexusmods.com/" + m[1] + "/mods/" + m[2],
	}, nil
}
