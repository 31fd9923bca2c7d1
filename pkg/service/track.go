package service

import (
	"context"

	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/nexus"
)

// TrackSyncResult reports a tracking-centre sync.
type TrackSyncResult struct {
	Enabled   bool `json:"enabled"`
	Tracked   int  `json:"tracked"`
	AlreadyOK int  `json:"already_tracked"`
}

// TrackSyncEnable turns on tracking-centre sync for the staging
// directory and pushes the current mod set immediately.
func (s *Service) TrackSyncEnable(ctx context.Context, stagingDir string) (*TrackSyncResult, error) {
	cs, store, err := s.loadState(stagingDir)
	if err != nil {
		return nil, err
	}
	cs.TrackSyncEnabled = true
	if err := store.Save(cs); err != nil {
		return nil, err
	}
	res, err := s.pushTracked(ctx, stagingDir)
	if err != nil {
		return nil, err
	}
	res.Enabled = true
	return res, nil
}

// TrackSyncDisable turns tracking-centre sync off. Nothing is untracked
// remotely; the account keeps whatever it has.
func (s *Service) TrackSyncDisable(stagingDir string) error {
	cs, store, err := s.loadState(stagingDir)
	if err != nil {
		return err
	}
	cs.TrackSyncEnabled = false
	return store.Save(cs)
}

// TrackSyncPush tracks every installed collection mod in the account's
// tracking centre, regardless of the enable flag.
func (s *Service) TrackSyncPush(ctx context.Context, stagingDir string) (*TrackSyncResult, error) {
	return s.pushTracked(ctx, stagingDir)
}

func (s *Service) pushTracked(ctx context.Context, stagingDir string) (*TrackSyncResult, error) {
	logger := logging.GetLogger("service")

	cs, _, err := s.loadState(stagingDir)
	if err != nil {
		return nil, err
	}

	var tracked []nexus.TrackedMod
	err = nexus.WithRetry(ctx, s.retryPolicy(), func() error {
		var err error
		tracked, err = s.client.TrackedMods(ctx, cs.GameDomain)
		return err
	})
	if err != nil {
		return nil, err
	}
	already := make(map[int64]bool, len(tracked))
	for _, tm := range tracked {
		already[tm.ModID] = true
	}

	result := &TrackSyncResult{Enabled: cs.TrackSyncEnabled}
	for _, id := range cs.ModIDs() {
		mod := cs.Mod(id)
		// Local manual mods have no remote page to track.
		if mod.ID <= 0 {
			continue
		}
		if already[mod.ID] {
			result.AlreadyOK++
			continue
		}
		err := nexus.WithRetry(ctx, s.retryPolicy(), func() error {
			return s.client.TrackMod(ctx, cs.GameDomain, mod.ID)
		})
		if err != nil {
			logger.Warn().Err(err).Int64("mod", mod.ID).Msg("Failed to track mod")
			continue
		}
		result.Tracked++
	}

	return result, nil
}
