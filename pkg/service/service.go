// Package service is the operations layer: every user-facing verb
// (sync, update, deploy, undeploy, load-order, status, add, track-sync)
// lives here, and both the CLI and the web dashboard are thin wrappers
// over it. Operations take a staging directory plus an options struct,
// report progress through a callback, and return a structured result
// with diagnostics for per-mod problems. Only state persistence
// failures and context cancellation are fatal.
package service

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/modstage/modstage/pkg/config"
	"github.com/modstage/modstage/pkg/download"
	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/manifest"
	"github.com/modstage/modstage/pkg/nexus"
	"github.com/modstage/modstage/pkg/paths"
	"github.com/modstage/modstage/pkg/reconcile"
	"github.com/modstage/modstage/pkg/state"
	"github.com/modstage/modstage/pkg/types"
)

// Service wires the engine's subsystems behind the operation surface.
type Service struct {
	cfg        *config.Config
	paths      paths.Paths
	fs         types.FS
	client     nexus.Client
	downloader *download.Downloader
	bundles    *manifest.Fetcher
}

// New builds a Service from configuration. The remote client can be
// replaced in tests via WithClient.
func New(cfg *config.Config, p paths.Paths, fs types.FS) *Service {
	dl := download.New()
	return &Service{
		cfg:        cfg,
		paths:      p,
		fs:         fs,
		client:     nexus.NewHTTPClient(cfg.APIKey),
		downloader: dl,
		bundles:    manifest.NewFetcher(cfg.APIKey, dl),
	}
}

// WithClient swaps the remote client; returns the Service for chaining.
func (s *Service) WithClient(c nexus.Client) *Service {
	s.client = c
	return s
}

func (s *Service) retryPolicy() nexus.RetryPolicy {
	return nexus.RetryPolicy{
		MaxRetries: s.cfg.MaxRetries,
		BaseDelay:  time.Duration(s.cfg.RetryDelayMS) * time.Millisecond,
	}
}

// loadState loads the state document for a staging directory, failing
// with ErrStateNotFound when the directory has never been synced.
func (s *Service) loadState(stagingDir string) (*state.CollectionState, *state.Store, error) {
	store := state.NewStore(s.fs, s.paths, stagingDir)
	if !store.Exists() {
		return nil, nil, errors.Newf(errors.ErrStateNotFound,
			"%s has no collection state; run sync first", stagingDir)
	}
	cs, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	return cs, store, nil
}

// resolverInput assembles the resolver's mod list: the manifest's mods
// in declaration order, then manual mods in the order they were added.
// Manual mods carry the manual phase so they sort last.
func resolverInput(m *types.Manifest, cs *state.CollectionState) []types.ManifestMod {
	mods := append([]types.ManifestMod{}, m.Mods...)

	var manual []*types.Mod
	for _, id := range cs.ModIDs() {
		mod := cs.Mod(id)
		if mod.Manual {
			manual = append(manual, mod)
		}
	}
	// Local ids count down from -1, so descending id equals insertion
	// order.
	sort.Slice(manual, func(i, j int) bool { return manual[i].ID > manual[j].ID })

	for _, mod := range manual {
		mods = append(mods, types.ManifestMod{
			ModID:    mod.ID,
			Name:     mod.Name,
			FileID:   mod.FileID,
			Filename: mod.Filename,
			Version:  mod.Version,
			Phase:    types.PhaseManual,
		})
	}
	return mods
}

// archiveFetcher adapts the remote client and downloader to the
// reconciler's fetch interface. Retries cover link acquisition only;
// the payload transfer itself runs once per attempt.
type archiveFetcher struct {
	client      nexus.Client
	downloader  *download.Downloader
	policy      nexus.RetryPolicy
	gameDomain  string
	downloadDir string
}

func (f *archiveFetcher) Fetch(ctx context.Context, mm types.ManifestMod, progress types.ProgressFunc) (string, error) {
	var link string
	err := nexus.WithRetry(ctx, f.policy, func() error {
		var err error
		link, err = f.client.DownloadLink(ctx, f.gameDomain, mm.ModID, mm.FileID)
		return err
	})
	if err != nil {
		return "", err
	}

	name := mm.Filename
	if name == "" {
		name = filepath.Base(link)
	}
	dest := filepath.Join(f.downloadDir, name)
	if err := f.downloader.Fetch(ctx, link, dest, progress); err != nil {
		return "", err
	}
	return dest, nil
}

var _ reconcile.ModFetcher = (*archiveFetcher)(nil)
