package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arcreliability/engine/curriculum"
	"github.com/arcreliability/engine/opserr"
)

// FileCheckpointer writes curriculum checkpoints to
// checkpoints/iter_NNNN.json, one file per iteration, and loads the most
// recent one on restart. It implements curriculum.Checkpointer.
type FileCheckpointer struct {
	mu  sync.Mutex
	dir string
}

// NewFileCheckpointer ensures the checkpoint directory exists.
func NewFileCheckpointer(dir string) (*FileCheckpointer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, opserr.New("store", "new_checkpointer", opserr.CodePersistenceWrite,
			fmt.Sprintf("failed to create checkpoint dir %s", dir)).WithCause(err)
	}
	return &FileCheckpointer{dir: dir}, nil
}

// SaveCheckpoint writes the current state to a new iter_NNNN.json file.
// Writing a fresh file per iteration (rather than overwriting in place)
// means a crash mid-write never corrupts the previously durable
// checkpoint: LoadCheckpoint only ever reads a file whose write already
// completed.
func (c *FileCheckpointer) SaveCheckpoint(ctx context.Context, state *curriculum.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return opserr.New("store", "save_checkpoint", opserr.CodePersistenceWrite,
			"failed to marshal curriculum state").WithCause(err)
	}

	name := fmt.Sprintf("iter_%04d.json", state.Iteration)
	tmp := filepath.Join(c.dir, name+".tmp")
	final := filepath.Join(c.dir, name)

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return opserr.New("store", "save_checkpoint", opserr.CodePersistenceWrite,
			"failed to write checkpoint").WithCause(err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return opserr.New("store", "save_checkpoint", opserr.CodePersistenceWrite,
			"failed to finalise checkpoint").WithCause(err)
	}
	return nil
}

// LoadCheckpoint returns the highest-numbered checkpoint file's state,
// or (nil, nil) if no checkpoint exists yet.
func (c *FileCheckpointer) LoadCheckpoint(ctx context.Context, domain string) (*curriculum.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, opserr.New("store", "load_checkpoint", opserr.CodePersistenceWrite,
			"failed to list checkpoint dir").WithCause(err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "iter_") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	latest := names[len(names)-1]

	data, err := os.ReadFile(filepath.Join(c.dir, latest))
	if err != nil {
		return nil, opserr.New("store", "load_checkpoint", opserr.CodePersistenceWrite,
			"failed to read latest checkpoint").WithCause(err)
	}

	var state curriculum.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, opserr.New("store", "load_checkpoint", opserr.CodePersistenceWrite,
			"failed to parse latest checkpoint").WithCause(err)
	}
	return &state, nil
}
