package state

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/logging"
	"github.com/modstage/modstage/pkg/paths"
	"github.com/modstage/modstage/pkg/types"
)

// Store reads and writes the state document for one staging directory.
type Store struct {
	fs   types.FS
	path string
}

// NewStore creates a Store for the given staging directory.
func NewStore(fs types.FS, p paths.Paths, stagingDir string) *Store {
	return &Store{
		fs:   fs,
		path: p.StateFilePath(stagingDir),
	}
}

// Exists reports whether a state document is present.
func (s *Store) Exists() bool {
	_, err := s.fs.Stat(s.path)
	return err == nil
}

// Load reads and decodes the state document. Unknown fields, at the top
// level and per mod, are retained so a later Save carries them through.
func (s *Store) Load() (*CollectionState, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrStateNotFound, "no state document at %s", s.path)
		}
		return nil, errors.Wrapf(err, errors.ErrLocalIO, "failed to read state document %s", s.path)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, errors.ErrStateInvalid, "invalid state document %s", s.path)
	}

	cs := NewCollectionState()
	cs.extra = make(map[string]json.RawMessage)
	cs.modExtra = make(map[int64]map[string]json.RawMessage)

	for key, raw := range doc {
		switch key {
		case "collection_url":
			err = json.Unmarshal(raw, &cs.CollectionURL)
		case "collection_slug":
			err = json.Unmarshal(raw, &cs.CollectionSlug)
		case "collection_name":
			err = json.Unmarshal(raw, &cs.CollectionName)
		case "revision":
			err = json.Unmarshal(raw, &cs.Revision)
		case "game_domain":
			err = json.Unmarshal(raw, &cs.GameDomain)
		case "rules":
			err = json.Unmarshal(raw, &cs.Rules)
		case "manifest":
			err = json.Unmarshal(raw, &cs.Manifest)
		case "deployment":
			err = json.Unmarshal(raw, &cs.Deployment)
		case "game_dir":
			err = json.Unmarshal(raw, &cs.GameDir)
		case "compat_prefix":
			err = json.Unmarshal(raw, &cs.CompatPrefix)
		case "track_sync_enabled":
			err = json.Unmarshal(raw, &cs.TrackSyncEnabled)
		case "mods":
			err = s.decodeMods(raw, cs)
		default:
			cs.extra[key] = raw
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrStateInvalid, "invalid field %q in %s", key, s.path)
		}
	}

	return cs, nil
}

// Save persists the whole state atomically: write to a temp file in the
// same directory, then rename over the document. A crash mid-save never
// leaves a truncated document behind.
func (s *Store) Save(cs *CollectionState) error {
	logger := logging.GetLogger("state")

	doc := make(map[string]json.RawMessage, len(cs.extra)+12)
	for key, raw := range cs.extra {
		doc[key] = raw
	}

	put := func(key string, v interface{}) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to encode state field %q", key)
		}
		doc[key] = raw
		return nil
	}

	if err := put("collection_url", cs.CollectionURL); err != nil {
		return err
	}
	if err := put("collection_slug", cs.CollectionSlug); err != nil {
		return err
	}
	if err := put("collection_name", cs.CollectionName); err != nil {
		return err
	}
	if err := put("revision", cs.Revision); err != nil {
		return err
	}
	if err := put("game_domain", cs.GameDomain); err != nil {
		return err
	}
	if err := put("track_sync_enabled", cs.TrackSyncEnabled); err != nil {
		return err
	}
	if cs.Rules != nil {
		if err := put("rules", cs.Rules); err != nil {
			return err
		}
	}
	if cs.Manifest != nil {
		if err := put("manifest", cs.Manifest); err != nil {
			return err
		}
	}
	if cs.Deployment != nil {
		if err := put("deployment", cs.Deployment); err != nil {
			return err
		}
	}
	if cs.GameDir != "" {
		if err := put("game_dir", cs.GameDir); err != nil {
			return err
		}
	}
	if cs.CompatPrefix != "" {
		if err := put("compat_prefix", cs.CompatPrefix); err != nil {
			return err
		}
	}

	mods, err := s.encodeMods(cs)
	if err != nil {
		return err
	}
	doc["mods"] = mods

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode state document")
	}

	tmp := s.path + ".tmp"
	if err := s.fs.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrStatePersist, "failed to write state document %s", tmp)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, errors.ErrStatePersist, "failed to replace state document %s", s.path)
	}

	logger.Debug().Str("path", s.path).Int("mods", len(cs.Mods)).Msg("State persisted")
	return nil
}

// decodeMods decodes the "mods" object, which maps mod id strings to mod
// documents, retaining unknown per-mod fields.
func (s *Store) decodeMods(raw json.RawMessage, cs *CollectionState) error {
	var entries map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}

	for idStr, fields := range entries {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return errors.Wrapf(err, errors.ErrStateInvalid, "invalid mod id %q", idStr)
		}

		// Round-trip the known fields through the Mod struct and keep
		// the remainder verbatim.
		known, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		mod := &types.Mod{}
		if err := json.Unmarshal(known, mod); err != nil {
			return err
		}
		mod.ID = id
		cs.Mods[id] = mod

		knownKeys := modFieldKeys(mod)
		for key, value := range fields {
			if _, ok := knownKeys[key]; ok {
				continue
			}
			if cs.modExtra[id] == nil {
				cs.modExtra[id] = make(map[string]json.RawMessage)
			}
			cs.modExtra[id][key] = value
		}
	}
	return nil
}

func (s *Store) encodeMods(cs *CollectionState) (json.RawMessage, error) {
	entries := make(map[string]json.RawMessage, len(cs.Mods))
	for id, mod := range cs.Mods {
		encoded, err := json.Marshal(mod)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrInternal, "failed to encode mod %d", id)
		}

		if extra := cs.modExtra[id]; len(extra) > 0 {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(encoded, &fields); err != nil {
				return nil, errors.Wrapf(err, errors.ErrInternal, "failed to re-encode mod %d", id)
			}
			for key, value := range extra {
				if _, taken := fields[key]; !taken {
					fields[key] = value
				}
			}
			encoded, err = json.Marshal(fields)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrInternal, "failed to re-encode mod %d", id)
			}
		}
		entries[strconv.FormatInt(id, 10)] = encoded
	}
	return json.Marshal(entries)
}

// modFieldKeys returns the JSON keys the Mod struct itself owns.
func modFieldKeys(mod *types.Mod) map[string]struct{} {
	encoded, err := json.Marshal(mod)
	if err != nil {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil
	}
	keys := make(map[string]struct{}, len(fields)+4)
	for key := range fields {
		keys[key] = struct{}{}
	}
	// omitempty fields are owned even when currently empty.
	for _, key := range []string{"requirements", "staged_files", "plugin_files"} {
		keys[key] = struct{}{}
	}
	return keys
}
