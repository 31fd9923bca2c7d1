package service

import (
	"context"
	"path/filepath"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/nexus"
	"github.com/modstage/modstage/pkg/reconcile"
	"github.com/modstage/modstage/pkg/state"
	"github.com/modstage/modstage/pkg/types"
)

// SyncOptions tune a sync or update run.
type SyncOptions struct {
	SkipOptional bool
	NoExtract    bool
	DryRun       bool
	NoLoadOrder  bool
}

// SyncResult reports what a sync or update did.
type SyncResult struct {
	CollectionName string             `json:"collection_name"`
	Revision       int                `json:"revision"`
	Installed      int                `json:"installed"`
	Updated        int                `json:"updated"`
	Skipped        int                `json:"skipped"`
	Failed         int                `json:"failed"`
	LoadOrderFiles []string           `json:"load_order_files,omitempty"`
	Diagnostics    []types.Diagnostic `json:"diagnostics,omitempty"`
}

// Sync installs a collection into stagingDir from its site URL: fetch
// the manifest bundle, reconcile every mod, and regenerate load-order
// files. Re-running against an already-synced directory is incremental.
func (s *Service) Sync(ctx context.Context, stagingDir, collectionURL string, opts SyncOptions, progress types.ProgressFunc) (*SyncResult, error) {
	if progress == nil {
		progress = types.NoopProgress
	}

	ref, err := nexus.ParseCollectionURL(collectionURL)
	if err != nil {
		return nil, err
	}

	progress(0.0, "fetching collection metadata")
	var rev *nexus.RevisionInfo
	err = nexus.WithRetry(ctx, s.retryPolicy(), func() error {
		var err error
		rev, err = s.client.CollectionRevision(ctx, ref.GameDomain, ref.Slug, 0)
		return err
	})
	if err != nil {
		return nil, err
	}

	progress(0.05, "fetching manifest bundle")
	m, err := s.bundles.Fetch(ctx, rev.DownloadLink, rev.Slug, rev.Revision)
	if err != nil {
		return nil, err
	}
	m.Name = rev.Name
	m.GameDomain = rev.GameDomain

	store := state.NewStore(s.fs, s.paths, stagingDir)
	cs := state.NewCollectionState()
	if store.Exists() {
		cs, err = store.Load()
		if err != nil {
			return nil, err
		}
	}
	cs.SetCollectionInfo(ref.URL, rev.Slug, rev.Name, rev.GameDomain, rev.Revision)
	cs.Manifest = m
	cs.Rules = m.Rules

	return s.reconcileAndFinish(ctx, stagingDir, cs, store, m, opts, progress)
}

// Update re-reconciles an already-synced staging directory against the
// latest published revision of its collection.
func (s *Service) Update(ctx context.Context, stagingDir string, opts SyncOptions, progress types.ProgressFunc) (*SyncResult, error) {
	if progress == nil {
		progress = types.NoopProgress
	}

	cs, store, err := s.loadState(stagingDir)
	if err != nil {
		return nil, err
	}
	if cs.CollectionURL == "" {
		return nil, errors.New(errors.ErrStateInvalid, "state has no collection URL; re-run sync with the collection URL")
	}

	ref, err := nexus.ParseCollectionURL(cs.CollectionURL)
	if err != nil {
		return nil, err
	}

	progress(0.0, "checking for a new revision")
	var rev *nexus.RevisionInfo
	err = nexus.WithRetry(ctx, s.retryPolicy(), func() error {
		var err error
		rev, err = s.client.CollectionRevision(ctx, ref.GameDomain, ref.Slug, 0)
		return err
	})
	if err != nil {
		return nil, err
	}

	m := cs.Manifest
	if m == nil || rev.Revision != cs.Revision {
		progress(0.05, "fetching manifest bundle")
		m, err = s.bundles.Fetch(ctx, rev.DownloadLink, rev.Slug, rev.Revision)
		if err != nil {
			return nil, err
		}
		m.Name = rev.Name
		m.GameDomain = rev.GameDomain
		cs.SetCollectionInfo(cs.CollectionURL, rev.Slug, rev.Name, rev.GameDomain, rev.Revision)
		cs.Manifest = m
		cs.Rules = m.Rules
	}

	return s.reconcileAndFinish(ctx, stagingDir, cs, store, m, opts, progress)
}

// reconcileAndFinish runs the shared tail of sync and update: plan,
// execute, persist, and regenerate load-order files.
func (s *Service) reconcileAndFinish(ctx context.Context, stagingDir string, cs *state.CollectionState, store *state.Store, m *types.Manifest, opts SyncOptions, progress types.ProgressFunc) (*SyncResult, error) {
	logger := logging.GetLogger("service")

	ropts := reconcile.Options{
		SkipOptional:    opts.SkipOptional,
		ExtractArchives: !opts.NoExtract,
		DryRun:          opts.DryRun,
		Concurrency:     s.cfg.Concurrency,
	}
	actions, diags := reconcile.Plan(m, cs, ropts)

	fetcher := &archiveFetcher{
		client:      s.client,
		downloader:  s.downloader,
		policy:      s.retryPolicy(),
		gameDomain:  m.GameDomain,
		downloadDir: filepath.Join(stagingDir, "downloads"),
	}
	runner := reconcile.NewRunner(fetcher, store, stagingDir, ropts)

	runProgress := func(pct float64, msg string) {
		progress(0.1+0.75*pct, msg)
	}
	res, err := runner.Run(ctx, cs, actions, runProgress)
	if err != nil {
		return nil, err
	}

	if !opts.DryRun {
		if err := store.Save(cs); err != nil {
			return nil, err
		}
	}

	result := &SyncResult{
		CollectionName: cs.CollectionName,
		Revision:       cs.Revision,
		Installed:      res.Installed,
		Updated:        res.Updated,
		Skipped:        res.Skipped,
		Failed:         res.Failed,
		Diagnostics:    append(diags, res.Diagnostics...),
	}

	if !opts.NoLoadOrder && !opts.DryRun {
		progress(0.9, "generating load order")
		lo, err := s.LoadOrder(stagingDir)
		if err != nil {
			logger.Warn().Err(err).Msg("Load order generation failed")
			result.Diagnostics = append(result.Diagnostics, types.Diagnostic{
				Kind:    types.DiagLocalIO,
				Message: "load order generation failed: " + err.Error(),
			})
		} else {
			result.LoadOrderFiles = lo.Files
			result.Diagnostics = append(result.Diagnostics, lo.Diagnostics...)
		}
	}

	progress(1.0, "done")
	return result, nil
}
