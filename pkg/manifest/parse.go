// Package manifest fetches and parses collection bundles. A bundle is a
// small archive whose collection.json carries the authoritative mod
// list, ordering rules, phases, and the author's plugin load order.
package manifest

import (
	"encoding/json"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/types"
)

// collectionDoc mirrors the subset of collection.json the engine reads.
type collectionDoc struct {
	Info struct {
		Name       string `json:"name"`
		DomainName string `json:"domainName"`
	} `json:"info"`
	Mods []struct {
		Name     string `json:"name"`
		Version  string `json:"version"`
		Optional bool   `json:"optional"`
		Phase    int    `json:"phase"`
		Source   struct {
			ModID           int64  `json:"modId"`
			FileID          int64  `json:"fileId"`
			LogicalFilename string `json:"logicalFilename"`
			FileSize        int64  `json:"fileSize"`
		} `json:"source"`
	} `json:"mods"`
	ModRules []struct {
		Type   string  `json:"type"`
		Source ruleRef `json:"source"`
		Target ruleRef `json:"target"`
	} `json:"modRules"`
	LoadOrder []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Enabled *bool  `json:"enabled"`
	} `json:"loadOrder"`
	Plugins []struct {
		Filename string `json:"filename"`
		Enabled  *bool  `json:"enabled"`
	} `json:"plugins"`
}

// ruleRef identifies a rule endpoint either by mod id or by the mod's
// logical filename in the bundle.
type ruleRef struct {
	ModID           int64  `json:"modId"`
	LogicalFilename string `json:"logicalFileName"`
}

// Parse decodes a collection.json payload into the engine's manifest
// representation. Declaration order of mods and rules is preserved; it
// is load-bearing for the resolver's tie-breaking.
func Parse(data []byte, slug string, revision int) (*types.Manifest, error) {
	var doc collectionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrManifestInvalid, "failed to parse collection.json")
	}
	if len(doc.Mods) == 0 {
		return nil, errors.New(errors.ErrManifestInvalid, "collection.json lists no mods")
	}

	m := &types.Manifest{
		Slug:       slug,
		Name:       doc.Info.Name,
		GameDomain: doc.Info.DomainName,
		Revision:   revision,
	}

	logicalToID := make(map[string]int64)
	for _, entry := range doc.Mods {
		m.Mods = append(m.Mods, types.ManifestMod{
			ModID:     entry.Source.ModID,
			Name:      entry.Name,
			FileID:    entry.Source.FileID,
			Filename:  entry.Source.LogicalFilename,
			Version:   entry.Version,
			SizeBytes: entry.Source.FileSize,
			Optional:  entry.Optional,
			Phase:     entry.Phase,
		})
		if entry.Source.LogicalFilename != "" {
			logicalToID[entry.Source.LogicalFilename] = entry.Source.ModID
		}
	}

	for _, rule := range doc.ModRules {
		kind, ok := ruleKind(rule.Type)
		if !ok {
			continue
		}
		source := resolveRef(rule.Source, logicalToID)
		target := resolveRef(rule.Target, logicalToID)
		if source == 0 || target == 0 {
			continue
		}
		m.Rules = append(m.Rules, types.Rule{Kind: kind, Source: source, Target: target})
	}

	// loadOrder carries the real plugin entries with enabled state; the
	// plugins array is a sparse legacy fallback.
	if len(doc.LoadOrder) > 0 {
		for _, entry := range doc.LoadOrder {
			name := entry.Name
			if name == "" {
				name = entry.ID
			}
			if name == "" {
				continue
			}
			m.Plugins = append(m.Plugins, types.ManifestPlugin{
				Filename: name,
				Enabled:  entry.Enabled == nil || *entry.Enabled,
			})
		}
	} else {
		for _, entry := range doc.Plugins {
			if entry.Filename == "" {
				continue
			}
			m.Plugins = append(m.Plugins, types.ManifestPlugin{
				Filename: entry.Filename,
				Enabled:  entry.Enabled == nil || *entry.Enabled,
			})
		}
	}

	return m, nil
}

func ruleKind(raw string) (types.RuleKind, bool) {
	switch raw {
	case "before":
		return types.RuleBefore, true
	case "after":
		return types.RuleAfter, true
	case "requires":
		return types.RuleRequires, true
	}
	return "", false
}

func resolveRef(ref ruleRef, logicalToID map[string]int64) int64 {
	if ref.ModID != 0 {
		return ref.ModID
	}
	return logicalToID[ref.LogicalFilename]
}
