// Package nexus talks to the remote content API: collection metadata,
// per-file download links, and account state. All failures carry a
// structured error code so callers can map them onto the diagnostic
// taxonomy without string matching.
package nexus

import (
	"context"
)

// FileInfo describes one downloadable file of a mod.
type FileInfo struct {
	FileID      int64  `json:"file_id"`
	Name        string `json:"name"`
	FileName    string `json:"file_name"`
	Version     string `json:"version"`
	CategoryID  int    `json:"category_id"`
	Category    string `json:"category_name"`
	SizeBytes   int64  `json:"size_in_bytes"`
	UploadedAt  int64  `json:"uploaded_timestamp"`
	Description string `json:"description"`
}

// RevisionInfo is the metadata of one collection revision, including the
// link to its manifest bundle.
type RevisionInfo struct {
	Slug         string
	Name         string
	GameDomain   string
	Revision     int
	DownloadLink string
}

// TrackedMod is one entry in the account's tracking centre.
type TrackedMod struct {
	ModID      int64  `json:"mod_id"`
	GameDomain string `json:"domain_name"`
}

// User is the validated account behind the API key.
type User struct {
	Name      string `json:"name"`
	IsPremium bool   `json:"is_premium"`
}

// Client is the surface the rest of the engine needs from the remote
// API. Implementations return errors coded ErrRateLimited (retryable,
// with a retry-after detail when the server provided one),
// ErrEntitlement (the account cannot generate this link), ErrNotFound,
// or ErrRemote for everything else.
type Client interface {
	// Validate checks the API key and returns the account.
	Validate(ctx context.Context) (*User, error)

	// CollectionRevision fetches metadata for a collection revision.
	// revision <= 0 means the latest published revision.
	CollectionRevision(ctx context.Context, gameDomain, slug string, revision int) (*RevisionInfo, error)

	// ModFiles lists the downloadable files of a mod.
	ModFiles(ctx context.Context, gameDomain string, modID int64) ([]FileInfo, error)

	// DownloadLink generates a download URL for one file.
	DownloadLink(ctx context.Context, gameDomain string, modID, fileID int64) (string, error)

	// TrackedMods lists the mods the account tracks for the given game.
	TrackedMods(ctx context.Context, gameDomain string) ([]TrackedMod, error)

	// TrackMod adds a mod to the account's tracking centre.
	TrackMod(ctx context.Context, gameDomain string, modID int64) error
}
