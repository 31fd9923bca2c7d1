package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/extract"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/state"
	"github.com/modstage/modstage/pkg/types"
)

// ModFetcher acquires one mod archive into the downloads area and
// returns its local path. Implementations handle link acquisition and
// its retry policy; the reconciler never retries the bulk transfer.
type ModFetcher interface {
	Fetch(ctx context.Context, mod types.ManifestMod, progress types.ProgressFunc) (string, error)
}

// Result summarizes a reconciliation run.
type Result struct {
	Installed   int
	Updated     int
	Skipped     int
	Failed      int
	Diagnostics []types.Diagnostic
}

// Runner executes a reconciliation plan against one staging directory.
type Runner struct {
	fetcher    ModFetcher
	store      *state.Store
	stagingDir string
	opts       Options

	// mu guards the shared state document and its persistence; each
	// completed mod is persisted immediately so an interrupt loses at
	// most the in-flight mods.
	mu sync.Mutex
}

// NewRunner returns a Runner.
func NewRunner(fetcher ModFetcher, store *state.Store, stagingDir string, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{
		fetcher:    fetcher,
		store:      store,
		stagingDir: stagingDir,
		opts:       opts,
	}
}

// Run executes the actions with a bounded worker pool. Per-mod failures
// become diagnostics; only context cancellation and state persistence
// failures abort the run. Progress counts completed mods over total.
func (r *Runner) Run(ctx context.Context, cs *state.CollectionState, actions []Action, progress types.ProgressFunc) (*Result, error) {
	logger := logging.GetLogger("reconcile")
	if progress == nil {
		progress = types.NoopProgress
	}

	result := &Result{}

	var work []Action
	for _, action := range actions {
		if action.Kind == ActionSkip {
			result.Skipped++
			continue
		}
		work = append(work, action)
	}

	if r.opts.DryRun || len(work) == 0 {
		for _, action := range work {
			logger.Info().
				Str("action", string(action.Kind)).
				Int64("mod", action.Manifest.ModID).
				Str("name", action.Manifest.Name).
				Msg("Planned (dry run)")
		}
		return result, nil
	}

	sem := make(chan struct{}, r.opts.Concurrency)
	var wg sync.WaitGroup
	var completed int
	var persistErr error

	for _, action := range work {
		select {
		case <-ctx.Done():
			wg.Wait()
			return result, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(action Action) {
			defer wg.Done()
			defer func() { <-sem }()

			diag := r.runOne(ctx, cs, action)

			r.mu.Lock()
			defer r.mu.Unlock()
			if diag != nil {
				result.Failed++
				result.Diagnostics = append(result.Diagnostics, *diag)
			} else {
				switch action.Kind {
				case ActionInstall:
					result.Installed++
				case ActionUpdate:
					result.Updated++
				}
				if err := r.store.Save(cs); err != nil && persistErr == nil {
					persistErr = err
				}
			}
			completed++
			progress(float64(completed)/float64(len(work)),
				fmt.Sprintf("%d/%d mods reconciled", completed, len(work)))
		}(action)
	}

	wg.Wait()
	if persistErr != nil {
		return result, persistErr
	}
	return result, nil
}

// runOne fetches and stages a single mod. A nil return means success
// and the state entry has been updated (but not yet persisted).
func (r *Runner) runOne(ctx context.Context, cs *state.CollectionState, action Action) *types.Diagnostic {
	logger := logging.GetLogger("reconcile")
	mm := action.Manifest

	archive, err := r.fetcher.Fetch(ctx, mm, nil)
	if err != nil {
		return diagnoseFetch(mm, err)
	}

	var staged, plugins []string
	if r.opts.ExtractArchives {
		staged, err = r.stageArchive(ctx, mm, archive)
		if errors.IsErrorCode(err, errors.ErrCorruptArchive) {
			// One automatic re-fetch for a damaged payload, then give up.
			logger.Warn().Int64("mod", mm.ModID).Msg("Corrupt archive, re-fetching once")
			os.Remove(archive)
			archive, err = r.fetcher.Fetch(ctx, mm, nil)
			if err != nil {
				return diagnoseFetch(mm, err)
			}
			staged, err = r.stageArchive(ctx, mm, archive)
		}
		if err != nil {
			return diagnoseStage(mm, err)
		}
		os.Remove(archive)
		plugins = PluginFiles(staged)
	} else {
		rel, relErr := filepath.Rel(r.stagingDir, archive)
		if relErr != nil {
			rel = filepath.Base(archive)
		}
		staged = []string{rel}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if action.Kind == ActionUpdate && action.Current != nil {
		r.removeStaged(action.Current)
	}
	cs.AddMod(&types.Mod{
		ID:           mm.ModID,
		Name:         mm.Name,
		FileID:       mm.FileID,
		Version:      mm.Version,
		Filename:     mm.Filename,
		Optional:     mm.Optional,
		Phase:        mm.Phase,
		Requirements: mm.Requirements,
		StagedFiles:  staged,
		PluginFiles:  plugins,
	})

	logger.Info().
		Str("action", string(action.Kind)).
		Int64("mod", mm.ModID).
		Str("name", mm.Name).
		Int("files", len(staged)).
		Msg("Mod reconciled")
	return nil
}

// stageArchive extracts an archive into the mod's staging subdirectory
// and returns the staged paths relative to the staging root.
func (r *Runner) stageArchive(ctx context.Context, mm types.ManifestMod, archive string) ([]string, error) {
	modDir := ModDirName(mm.ModID, mm.Name)
	target := filepath.Join(r.stagingDir, modDir)

	// A fresh extraction replaces whatever a previous partial run left.
	if err := os.RemoveAll(target); err != nil {
		return nil, errors.Wrapf(err, errors.ErrLocalIO, "failed to clear %s", target)
	}

	files, err := extract.Extract(ctx, archive, target)
	if err != nil {
		return nil, err
	}

	staged := make([]string, len(files))
	for i, f := range files {
		staged[i] = filepath.Join(modDir, f)
	}
	return staged, nil
}

// removeStaged deletes a mod's previously staged files. Caller holds mu.
func (r *Runner) removeStaged(mod *types.Mod) {
	logger := logging.GetLogger("reconcile")
	dirs := make(map[string]bool)
	for _, rel := range mod.StagedFiles {
		top := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
		if top != "" && top != "." {
			dirs[top] = true
		}
	}
	for dir := range dirs {
		if err := os.RemoveAll(filepath.Join(r.stagingDir, dir)); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove superseded files")
		}
	}
}

func diagnoseFetch(mm types.ManifestMod, err error) *types.Diagnostic {
	kind := types.DiagFetchFailed
	switch errors.GetErrorCode(err) {
	case errors.ErrRateLimited:
		kind = types.DiagRateLimited
	case errors.ErrEntitlement:
		kind = types.DiagEntitlement
	case errors.ErrNotFound:
		kind = types.DiagNotFound
	case errors.ErrLocalIO:
		kind = types.DiagLocalIO
	}
	return &types.Diagnostic{
		Kind:    kind,
		ModID:   mm.ModID,
		Message: fmt.Sprintf("failed to fetch %s: %v", mm.Name, err),
	}
}

func diagnoseStage(mm types.ManifestMod, err error) *types.Diagnostic {
	kind := types.DiagLocalIO
	if errors.IsErrorCode(err, errors.ErrCorruptArchive) {
		kind = types.DiagCorrupt
	}
	return &types.Diagnostic{
		Kind:    kind,
		ModID:   mm.ModID,
		Message: fmt.Sprintf("failed to stage %s: %v", mm.Name, err),
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ModDirName is the staging subdirectory for a mod: the numeric id
// keeps it unique, the sanitized name keeps it recognizable.
func ModDirName(id int64, name string) string {
	safe := unsafeNameChars.ReplaceAllString(name, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("%d-%s", id, safe)
}

// PluginFiles filters staged paths down to unique plugin basenames,
// preserving encounter order. Extension matching is case-insensitive.
func PluginFiles(staged []string) []string {
	var plugins []string
	seen := make(map[string]bool)
	for _, rel := range staged {
		base := filepath.Base(rel)
		switch strings.ToLower(filepath.Ext(base)) {
		case ".esp", ".esm", ".esl":
			if !seen[base] {
				seen[base] = true
				plugins = append(plugins, base)
			}
		}
	}
	return plugins
}
