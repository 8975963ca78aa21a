package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arcreliability/engine/opserr"
	"github.com/arcreliability/engine/trace"
	"gopkg.in/yaml.v3"
)

// bundleKey identifies a cached bundle by domain and version.
type bundleKey struct {
	domain  string
	version string
}

// Store holds loaded scenario bundles, keyed by (domain, version). Bundles
// are cached for the process lifetime; invalidation happens only on
// restart.
type Store struct {
	dir string

	mu      sync.RWMutex
	bundles map[bundleKey]*Bundle
}

// NewStore creates a Store that loads bundle files from dir. Bundle files
// are named "<domain>-<version>.yaml" or "<domain>-<version>.yml".
func NewStore(dir string) *Store {
	return &Store{dir: dir, bundles: make(map[bundleKey]*Bundle)}
}

// Load reads, validates, and caches the bundle for (domain, version). A
// second call with the same key returns the cached bundle without
// touching disk.
func (s *Store) Load(domain, version string) (*Bundle, error) {
	key := bundleKey{domain, version}

	s.mu.RLock()
	if b, ok := s.bundles[key]; ok {
		s.mu.RUnlock()
		return b, nil
	}
	s.mu.RUnlock()

	b, err := s.loadFromDisk(domain, version)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.bundles[key] = b
	s.mu.Unlock()

	return b, nil
}

func (s *Store) loadFromDisk(domain, version string) (*Bundle, error) {
	var data []byte
	var readErr error
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(s.dir, fmt.Sprintf("%s-%s%s", domain, version, ext))
		data, readErr = os.ReadFile(path)
		if readErr == nil {
			break
		}
	}
	if readErr != nil {
		return nil, opserr.New("scenario", "load", opserr.CodeInputUnparsable,
			fmt.Sprintf("no bundle found for domain=%s version=%s", domain, version)).WithCause(readErr)
	}

	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, opserr.New("scenario", "load", opserr.CodeInputUnparsable,
			"bundle is not valid yaml").WithCause(err)
	}
	if b.Domain == "" {
		b.Domain = domain
	}
	if b.Version == "" {
		b.Version = version
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Get returns the scenario with the given id from an already-loaded
// bundle, or false if not found.
func (b *Bundle) Get(id string) (Scenario, bool) {
	for _, s := range b.Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// Filter returns scenarios matching the given optional predicates. A nil
// or empty slice for any predicate means "no restriction" on that axis.
func (b *Bundle) Filter(categories, severities []string, ids []string) []Scenario {
	catSet := toSet(categories)
	sevSet := toSet(severities)
	idSet := toSet(ids)

	out := make([]Scenario, 0, len(b.Scenarios))
	for _, s := range b.Scenarios {
		if len(catSet) > 0 && !catSet[s.Category] {
			continue
		}
		if len(sevSet) > 0 && !sevSet[string(s.Severity)] {
			continue
		}
		if len(idSet) > 0 && !idSet[s.ID] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Targeted returns only the scenarios referenced by the ScenarioAffinity
// tag of at least one of the given outputs. Outputs without an affinity
// tag do not narrow the result.
func (b *Bundle) Targeted(outputs []trace.Output) []Scenario {
	wanted := make(map[string]bool)
	for _, o := range outputs {
		if o.ScenarioAffinity != "" {
			wanted[o.ScenarioAffinity] = true
		}
	}
	if len(wanted) == 0 {
		return append([]Scenario{}, b.Scenarios...)
	}

	out := make([]Scenario, 0, len(wanted))
	for _, s := range b.Scenarios {
		if wanted[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
