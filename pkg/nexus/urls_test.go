package nexus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modstage/modstage/pkg/errors"
)

func TestParseCollectionURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		domain  string
		slug    string
		wantErr bool
	}{
		{
			name:   "next site layout",
			url:    "https://next.nexusmods.com/starfield/collections/abc123",
			domain: "starfield",
			slug:   "abc123",
		},
		{
			name:   "classic site layout with games prefix",
			url:    "https://www.nexusmods.com/games/skyrimspecialedition/collections/xyz789",
			domain: "skyrimspecialedition",
			slug:   "xyz789",
		},
		{
			name:   "query params ignored",
			url:    "https://next.nexusmods.com/starfield/collections/abc123?tab=mods",
			domain: "starfield",
			slug:   "abc123",
		},
		{
			name:    "wrong host",
			url:     "https://example.com/starfield/collections/abc123",
			wantErr: true,
		},
		{
			name:    "mod url is not a collection",
			url:     "https://www.nexusmods.com/starfield/mods/123",
			wantErr: true,
		},
		{
			name:    "garbage",
			url:     "not a url at all",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseCollectionURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.domain, ref.GameDomain)
			assert.Equal(t, tt.slug, ref.Slug)
			assert.Equal(t, "https://next.nexusmods.com/"+tt.domain+"/collections/"+tt.slug, ref.URL)
		})
	}
}

func TestParseModURL(t *testing.T) {
	ref, err := ParseModURL("https://www.nexusmods.com/starfield/mods/4183?tab=files")
	require.NoError(t, err)
	assert.Equal(t, "starfield", ref.GameDomain)
	assert.EqualValues(t, 4183, ref.ModID)
	assert.Equal(t, "https://www.nexusmods.com/starfield/mods/4183", ref.URL)

	_, err = ParseModURL("https://www.nexusmods.com/starfield/collections/abc")
	require.Error(t, err)

	_, err = ParseModURL("https://evil.example/starfield/mods/1")
	require.Error(t, err)
}
