package service

import (
	"context"
	"path/filepath"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/extract"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/nexus"
	"github.com/modstage/modstage/pkg/reconcile"
	"github.com/modstage/modstage/pkg/types"
)

// File categories in the remote API's files listing.
const (
	fileCategoryMain     = 1
	fileCategoryArchived = 6
)

// AddResult reports a single-mod addition.
type AddResult struct {
	ModID    int64  `json:"mod_id"`
	Name     string `json:"name"`
	FileName string `json:"file_name"`
	Version  string `json:"version"`
	Files    int    `json:"files"`
}

// Add fetches a single mod outside the collection and registers it as a
// manual mod: it loads after everything, and neither sync nor update
// will ever touch it. fileID zero selects the newest main file.
func (s *Service) Add(ctx context.Context, stagingDir, modURL string, fileID int64, progress types.ProgressFunc) (*AddResult, error) {
	logger := logging.GetLogger("service")
	if progress == nil {
		progress = types.NoopProgress
	}

	ref, err := nexus.ParseModURL(modURL)
	if err != nil {
		return nil, err
	}

	cs, store, err := s.loadState(stagingDir)
	if err != nil {
		return nil, err
	}

	progress(0.0, "listing mod files")
	var files []nexus.FileInfo
	err = nexus.WithRetry(ctx, s.retryPolicy(), func() error {
		var err error
		files, err = s.client.ModFiles(ctx, ref.GameDomain, ref.ModID)
		return err
	})
	if err != nil {
		return nil, err
	}

	selected := selectFile(files, fileID)
	if selected == nil {
		return nil, errors.Newf(errors.ErrNotFound,
			"no suitable file for mod %d; pass an explicit file id", ref.ModID)
	}

	fetcher := &archiveFetcher{
		client:      s.client,
		downloader:  s.downloader,
		policy:      s.retryPolicy(),
		gameDomain:  ref.GameDomain,
		downloadDir: filepath.Join(stagingDir, "downloads"),
	}
	mm := types.ManifestMod{
		ModID:    ref.ModID,
		Name:     selected.Name,
		FileID:   selected.FileID,
		Filename: selected.FileName,
		Version:  selected.Version,
		Phase:    types.PhaseManual,
	}

	progress(0.2, "downloading "+selected.FileName)
	archive, err := fetcher.Fetch(ctx, mm, func(pct float64, msg string) {
		progress(0.2+0.6*pct, msg)
	})
	if err != nil {
		return nil, err
	}

	progress(0.85, "extracting")
	modDir := reconcile.ModDirName(ref.ModID, selected.Name)
	extracted, err := extract.Extract(ctx, archive, filepath.Join(stagingDir, modDir))
	if err != nil {
		return nil, err
	}
	staged := make([]string, len(extracted))
	for i, f := range extracted {
		staged[i] = filepath.Join(modDir, f)
	}

	cs.AddMod(&types.Mod{
		ID:          ref.ModID,
		Name:        selected.Name,
		FileID:      selected.FileID,
		Version:     selected.Version,
		Filename:    selected.FileName,
		Phase:       types.PhaseManual,
		Manual:      true,
		StagedFiles: staged,
		PluginFiles: reconcile.PluginFiles(staged),
	})
	if err := store.Save(cs); err != nil {
		return nil, err
	}

	progress(1.0, "done")
	logger.Info().Int64("mod", ref.ModID).Str("file", selected.FileName).Msg("Manual mod added")
	return &AddResult{
		ModID:    ref.ModID,
		Name:     selected.Name,
		FileName: selected.FileName,
		Version:  selected.Version,
		Files:    len(staged),
	}, nil
}

// AddLocal registers a mod the user staged by hand. The entry gets a
// synthetic negative id and the manual phase. The files must already be
// in place under stagingDir/<dir>.
func (s *Service) AddLocal(stagingDir, name, dir string) (int64, error) {
	cs, store, err := s.loadState(stagingDir)
	if err != nil {
		return 0, err
	}

	id := cs.NextLocalID()

	var staged []string
	if dir != "" {
		root := filepath.Join(stagingDir, dir)
		entries, err := listFiles(s, root)
		if err != nil {
			return 0, errors.Wrapf(err, errors.ErrLocalIO, "failed to inventory %s", root)
		}
		for _, rel := range entries {
			staged = append(staged, filepath.Join(dir, rel))
		}
	}

	cs.AddMod(&types.Mod{
		ID:          id,
		Name:        name,
		Phase:       types.PhaseManual,
		Manual:      true,
		StagedFiles: staged,
		PluginFiles: reconcile.PluginFiles(staged),
	})
	if err := store.Save(cs); err != nil {
		return 0, err
	}
	return id, nil
}

// ModFiles lists a mod's downloadable files so the user can pick one
// for Add.
func (s *Service) ModFiles(ctx context.Context, modURL string) ([]nexus.FileInfo, error) {
	ref, err := nexus.ParseModURL(modURL)
	if err != nil {
		return nil, err
	}
	var files []nexus.FileInfo
	err = nexus.WithRetry(ctx, s.retryPolicy(), func() error {
		var err error
		files, err = s.client.ModFiles(ctx, ref.GameDomain, ref.ModID)
		return err
	})
	return files, err
}

// selectFile picks the file to download: an explicit id wins, otherwise
// the newest main-category file, otherwise the newest non-archived one.
func selectFile(files []nexus.FileInfo, fileID int64) *nexus.FileInfo {
	if len(files) == 0 {
		return nil
	}
	if fileID != 0 {
		for i := range files {
			if files[i].FileID == fileID {
				return &files[i]
			}
		}
		return nil
	}

	var best *nexus.FileInfo
	for i := range files {
		if files[i].CategoryID != fileCategoryMain {
			continue
		}
		if best == nil || files[i].FileID > best.FileID {
			best = &files[i]
		}
	}
	if best != nil {
		return best
	}
	for i := range files {
		if files[i].CategoryID == fileCategoryArchived {
			continue
		}
		if best == nil || files[i].FileID > best.FileID {
			best = &files[i]
		}
	}
	return best
}

// listFiles walks root via the filesystem abstraction, returning
// regular-file paths relative to root.
func listFiles(s *Service, root string) ([]string, error) {
	var out []string
	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		entries, err := s.fs.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			childRel := filepath.Join(rel, entry.Name())
			if entry.IsDir() {
				if err := walk(filepath.Join(dir, entry.Name()), childRel); err != nil {
					return err
				}
				continue
			}
			out = append(out, childRel)
		}
		return nil
	}
	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return out, nil
}
