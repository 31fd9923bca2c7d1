package deploy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/modstage/modstage/pkg/errors"
)

// gameNames maps game domains to the display names used inside a Proton
// prefix's Documents and AppData trees.
var gameNames = map[string]string{
	"starfield":            "Starfield",
	"skyrimspecialedition": "Skyrim Special Edition",
	"fallout4":             "Fallout4",
}

// iniOverlay is the config the engine must guarantee for loose-file
// mod loading to work at all.
type iniOverlay struct {
	filename string
	settings []iniSetting
}

type iniSetting struct {
	section, key, value string
}

var archiveInvalidation = []iniSetting{
	{"Archive", "bInvalidateOlderFiles", "1"},
	{"Archive", "sResourceDataDirsFinal", ""},
}

var iniOverlays = map[string]iniOverlay{
	"starfield":            {filename: "StarfieldCustom.ini", settings: archiveInvalidation},
	"skyrimspecialedition": {filename: "SkyrimCustom.ini", settings: archiveInvalidation},
	"fallout4":             {filename: "Fallout4Custom.ini", settings: archiveInvalidation},
}

// PluginsDest returns where the game reads plugins.txt inside a Proton
// prefix, or "" for games without a plugin list.
func PluginsDest(prefix, gameDomain string) string {
	name, ok := gameNames[gameDomain]
	if !ok {
		return ""
	}
	return filepath.Join(prefix, "drive_c", "users", "steamuser",
		"AppData", "Local", name, "plugins.txt")
}

// GameINIPath returns the custom INI path inside a Proton prefix, or ""
// for games that need no overlay.
func GameINIPath(prefix, gameDomain string) string {
	name, ok := gameNames[gameDomain]
	if !ok {
		return ""
	}
	overlay, ok := iniOverlays[gameDomain]
	if !ok {
		return ""
	}
	return filepath.Join(prefix, "drive_c", "users", "steamuser",
		"Documents", "My Games", name, overlay.filename)
}

// iniDoc is an order-preserving INI document.
type iniDoc struct {
	sections []*iniSectionData
}

type iniSectionData struct {
	name   string
	keys   []string
	values map[string]string
}

func (d *iniDoc) section(name string) *iniSectionData {
	for _, s := range d.sections {
		if s.name == name {
			return s
		}
	}
	s := &iniSectionData{name: name, values: map[string]string{}}
	d.sections = append(d.sections, s)
	return s
}

func (s *iniSectionData) set(key, value string) {
	if _, present := s.values[key]; !present {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func (d *iniDoc) render() string {
	var b strings.Builder
	for _, s := range d.sections {
		b.WriteString("[" + s.name + "]\n")
		for _, key := range s.keys {
			b.WriteString(key + "=" + s.values[key] + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ApplyGameINI merges the required mod-support settings into the game's
// custom INI, preserving every setting the user already has. Returns
// false when the game needs no overlay.
func ApplyGameINI(iniPath, gameDomain string) (bool, error) {
	overlay, ok := iniOverlays[gameDomain]
	if !ok {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(iniPath), 0755); err != nil {
		return false, errors.Wrapf(err, errors.ErrLocalIO, "failed to create directory for %s", iniPath)
	}

	doc := parseINI(iniPath)
	for _, s := range overlay.settings {
		doc.section(s.section).set(s.key, s.value)
	}

	if err := os.WriteFile(iniPath, []byte(doc.render()), 0644); err != nil {
		return false, errors.Wrapf(err, errors.ErrLocalIO, "failed to write %s", iniPath)
	}
	return true, nil
}

// parseINI reads an existing INI preserving section and key order. A
// missing file yields an empty document.
func parseINI(path string) *iniDoc {
	doc := &iniDoc{}

	data, err := os.ReadFile(path)
	if err != nil {
		return doc
	}

	var current *iniSectionData
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			current = doc.section(trimmed[1 : len(trimmed)-1])
			continue
		}
		if current == nil || !strings.Contains(trimmed, "=") {
			continue
		}
		key, value, _ := strings.Cut(trimmed, "=")
		current.set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return doc
}
