package pluginsort

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/logging"
)

// masterlistDoc is the subset of the community masterlist format the
// sorter consumes: per-plugin "load after" relations.
type masterlistDoc struct {
	Plugins []masterlistPlugin `yaml:"plugins"`
}

type masterlistPlugin struct {
	Name  string   `yaml:"name"`
	After []string `yaml:"after,omitempty"`
	Req   []string `yaml:"req,omitempty"`
}

// MasterlistStrategy sorts plugins using a fetched community masterlist.
// Plugin name matching is case-insensitive, as game engines treat plugin
// filenames case-insensitively.
type MasterlistStrategy struct {
	path string
}

// NewMasterlistStrategy returns a strategy backed by the masterlist file
// at path. The file is read lazily on each Sort so a freshly fetched
// masterlist takes effect without restarting.
func NewMasterlistStrategy(path string) *MasterlistStrategy {
	return &MasterlistStrategy{path: path}
}

// Sort reorders plugins so that masterlist "after" and "req" relations
// hold, keeping the baseline order for unrelated plugins. Returns
// ErrUnavailable when no masterlist is present; on a relation cycle the
// baseline is returned unchanged rather than guessing.
func (m *MasterlistStrategy) Sort(plugins []string) ([]string, error) {
	logger := logging.GetLogger("pluginsort")

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUnavailable
		}
		return nil, errors.Wrapf(err, errors.ErrLocalIO, "failed to read masterlist %s", m.path)
	}

	var doc masterlistDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "invalid masterlist %s", m.path)
	}

	index := make(map[string]int, len(plugins))
	for i, p := range plugins {
		index[strings.ToLower(p)] = i
	}

	// after/req both mean "this plugin loads after that one": an edge
	// from the prerequisite to the dependent. Relations naming plugins
	// outside the input are ignored.
	successors := make(map[int][]int)
	indegree := make([]int, len(plugins))
	addEdge := func(fromName, toIdx int) {
		successors[fromName] = append(successors[fromName], toIdx)
		indegree[toIdx]++
	}
	for _, entry := range doc.Plugins {
		to, ok := index[strings.ToLower(entry.Name)]
		if !ok {
			continue
		}
		for _, prereq := range append(append([]string{}, entry.After...), entry.Req...) {
			if from, ok := index[strings.ToLower(prereq)]; ok && from != to {
				addEdge(from, to)
			}
		}
	}

	ready := make([]int, 0, len(plugins))
	for i := range plugins {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	sort.Ints(ready)

	ordered := make([]string, 0, len(plugins))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		ordered = append(ordered, plugins[i])

		released := false
		for _, next := range successors[i] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				released = true
			}
		}
		if released {
			sort.Ints(ready)
		}
	}

	if len(ordered) != len(plugins) {
		logger.Warn().Str("masterlist", m.path).Msg("Masterlist relations form a cycle; keeping baseline order")
		return plugins, nil
	}
	return ordered, nil
}
