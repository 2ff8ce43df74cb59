// Package file provides a JSON-file-per-checkpoint store.CheckpointStore.
//
// It trades the speed of store/memory for durability across restarts without
// requiring an external database, useful for small single-node deployments
// and local development.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/smallnest/agentgraph/store"
)

// fileRecord is the on-disk shape of a Checkpoint: State is carried through
// store.TypeRegistry so a registered state type (e.g. agent.CheckpointState)
// round-trips as its concrete type instead of a generic map on Load.
type fileRecord struct {
	ID        string                `json:"id"`
	NodeName  string                `json:"node_name"`
	State     *store.CheckpointData `json:"state"`
	Metadata  map[string]any        `json:"metadata"`
	Timestamp time.Time             `json:"timestamp"`
	Version   int                   `json:"version"`
}

func toRecord(cp *store.Checkpoint) (*fileRecord, error) {
	cd, err := store.NewCheckpointData(cp.State)
	if err != nil {
		return nil, fmt.Errorf("file: encode checkpoint state: %w", err)
	}
	return &fileRecord{
		ID:        cp.ID,
		NodeName:  cp.NodeName,
		State:     cd,
		Metadata:  cp.Metadata,
		Timestamp: cp.Timestamp,
		Version:   cp.Version,
	}, nil
}

func fromRecord(r *fileRecord) (*store.Checkpoint, error) {
	var state any
	if r.State != nil {
		v, err := r.State.ToValue()
		if err != nil {
			return nil, fmt.Errorf("file: decode checkpoint state: %w", err)
		}
		state = v
	}
	return &store.Checkpoint{
		ID:        r.ID,
		NodeName:  r.NodeName,
		State:     state,
		Metadata:  r.Metadata,
		Timestamp: r.Timestamp,
		Version:   r.Version,
	}, nil
}

// FileCheckpointStore persists each checkpoint as "<path>/<id>.json".
type FileCheckpointStore struct {
	mu   sync.Mutex
	path string
}

var _ store.CheckpointStore = (*FileCheckpointStore)(nil)

// NewFileCheckpointStore creates (if needed) path and returns a store backed
// by it.
func NewFileCheckpointStore(path string) (store.CheckpointStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("file: create checkpoint dir: %w", err)
	}
	return &FileCheckpointStore{path: path}, nil
}

func (s *FileCheckpointStore) filename(id string) string {
	return filepath.Join(s.path, id+".json")
}

// Save writes checkpoint to its own JSON file, overwriting any existing one.
func (s *FileCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("file: checkpoint must have an ID")
	}
	record, err := toRecord(checkpoint)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.filename(checkpoint.ID), data, 0o600)
}

// Load reads and decodes the checkpoint with the given ID.
func (s *FileCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filename(checkpointID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file: checkpoint %q not found", checkpointID)
		}
		return nil, fmt.Errorf("file: read checkpoint %q: %w", checkpointID, err)
	}

	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("file: decode checkpoint %q: %w", checkpointID, err)
	}
	return fromRecord(&record)
}

// List scans the directory and returns every checkpoint tied to executionID,
// ordered by Version ascending.
func (s *FileCheckpointStore) List(_ context.Context, executionID string) ([]*store.Checkpoint, error) {
	s.mu.Lock()
	entries, err := os.ReadDir(s.path)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("file: read checkpoint dir: %w", err)
	}

	var out []*store.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		s.mu.Lock()
		data, readErr := os.ReadFile(filepath.Join(s.path, entry.Name()))
		s.mu.Unlock()
		if readErr != nil {
			continue
		}
		var record fileRecord
		if json.Unmarshal(data, &record) != nil {
			continue
		}
		cp, err := fromRecord(&record)
		if err != nil {
			continue
		}
		if matchesExecution(cp, executionID) {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Delete removes the checkpoint's file. Deleting a missing ID is a no-op.
func (s *FileCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.filename(checkpointID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file: delete checkpoint %q: %w", checkpointID, err)
	}
	return nil
}

// Clear removes every checkpoint tied to executionID.
func (s *FileCheckpointStore) Clear(ctx context.Context, executionID string) error {
	matches, err := s.List(ctx, executionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cp := range matches {
		if err := os.Remove(s.filename(cp.ID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("file: clear checkpoint %q: %w", cp.ID, err)
		}
	}
	return nil
}

func matchesExecution(cp *store.Checkpoint, executionID string) bool {
	if cp.Metadata == nil {
		return false
	}
	if v, ok := cp.Metadata["session_id"].(string); ok && v == executionID {
		return true
	}
	if v, ok := cp.Metadata["thread_id"].(string); ok && v == executionID {
		return true
	}
	if v, ok := cp.Metadata["workflow_id"].(string); ok && v == executionID {
		return true
	}
	return false
}
