package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modstage/modstage/pkg/config"
	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/filesystem"
	"github.com/modstage/modstage/pkg/nexus"
	"github.com/modstage/modstage/pkg/paths"
	"github.com/modstage/modstage/pkg/state"
	"github.com/modstage/modstage/pkg/types"
)

// fakeClient satisfies nexus.Client for status tests; only
// CollectionRevision is exercised here.
type fakeClient struct {
	latest    *nexus.RevisionInfo
	latestErr error
}

func (f *fakeClient) Validate(ctx context.Context) (*nexus.User, error) {
	return &nexus.User{Name: "tester"}, nil
}

func (f *fakeClient) CollectionRevision(ctx context.Context, gameDomain, slug string, revision int) (*nexus.RevisionInfo, error) {
	return f.latest, f.latestErr
}

func (f *fakeClient) ModFiles(ctx context.Context, gameDomain string, modID int64) ([]nexus.FileInfo, error) {
	return nil, nil
}

func (f *fakeClient) DownloadLink(ctx context.Context, gameDomain string, modID, fileID int64) (string, error) {
	return "", errors.New(errors.ErrLinkUnavailable, "not in this test")
}

func (f *fakeClient) TrackedMods(ctx context.Context, gameDomain string) ([]nexus.TrackedMod, error) {
	return nil, nil
}

func (f *fakeClient) TrackMod(ctx context.Context, gameDomain string, modID int64) error {
	return nil
}

var _ nexus.Client = (*fakeClient)(nil)

func statusFixture(t *testing.T, client nexus.Client) (*Service, string) {
	t.Helper()
	stagingDir := t.TempDir()

	cs := state.NewCollectionState()
	cs.SetCollectionInfo("https://example.test/collections/abc123", "abc123", "Essential Overhaul", "starfield", 5)
	cs.Manifest = &types.Manifest{
		Slug:       "abc123",
		GameDomain: "starfield",
		Revision:   5,
		Mods: []types.ManifestMod{
			{ModID: 100, Name: "Framework"},
		},
	}
	cs.AddMod(&types.Mod{ID: 100, Name: "Framework"})
	cs.AddMod(&types.Mod{ID: 55, Name: "Left Behind"})
	cs.AddMod(&types.Mod{ID: -1, Name: "Handmade Patch", Manual: true})

	store := state.NewStore(filesystem.NewOS(), paths.New(), stagingDir)
	require.NoError(t, store.Save(cs))

	cfg := &config.Config{Concurrency: 1, DeployMode: "link"}
	svc := New(cfg, paths.New(), filesystem.NewOS()).WithClient(client)
	return svc, stagingDir
}

func TestGetStatus_UpdateAvailable(t *testing.T) {
	svc, dir := statusFixture(t, &fakeClient{
		latest: &nexus.RevisionInfo{Slug: "abc123", GameDomain: "starfield", Revision: 9},
	})

	st, err := svc.GetStatus(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "Essential Overhaul", st.CollectionName)
	assert.Equal(t, 5, st.Revision)
	assert.Equal(t, 9, st.LatestRevision)
	assert.True(t, st.UpdateAvailable)
	assert.Equal(t, 3, st.Mods)
	assert.Equal(t, 1, st.ManualMods)

	// The collection mod and the manual mod are fine; only the one that
	// fell out of the manifest is flagged.
	require.Len(t, st.Diagnostics, 1)
	assert.Equal(t, types.DiagOrphaned, st.Diagnostics[0].Kind)
	assert.EqualValues(t, 55, st.Diagnostics[0].ModID)
}

func TestGetStatus_UpToDate(t *testing.T) {
	svc, dir := statusFixture(t, &fakeClient{
		latest: &nexus.RevisionInfo{Slug: "abc123", GameDomain: "starfield", Revision: 5},
	})

	st, err := svc.GetStatus(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 5, st.LatestRevision)
	assert.False(t, st.UpdateAvailable)
}

func TestGetStatus_OfflineDegradesToLocal(t *testing.T) {
	svc, dir := statusFixture(t, &fakeClient{
		latestErr: errors.New(errors.ErrRemote, "api unreachable"),
	})

	st, err := svc.GetStatus(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, st.LatestRevision)
	assert.False(t, st.UpdateAvailable)
	assert.Equal(t, 5, st.Revision)
}

func TestGetStatus_NeverSynced(t *testing.T) {
	svc := New(&config.Config{Concurrency: 1, DeployMode: "link"}, paths.New(), filesystem.NewOS()).
		WithClient(&fakeClient{})

	_, err := svc.GetStatus(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrStateNotFound))
}
