package objectstream

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/thorstenb/ceph/pkg/journal"
	"gopkg.in/yaml.v3"
)

// PointerStore persists a JournalPointer as a single small YAML file per
// (pool, mds id) — the local stand-in for the well-known pointer object
// named in spec.md §6.
type PointerStore struct {
	BaseDir string
}

func (p PointerStore) path(poolName string, mdsID int) string {
	return filepath.Join(p.BaseDir, fmt.Sprintf("pointer-%s-%d.yaml", poolName, mdsID))
}

func (p PointerStore) Load(poolName string, mdsID int) (*journal.JournalPointer, error) {
	data, err := os.ReadFile(p.path(poolName, mdsID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, journal.ErrPointerNotFound
		}
		return nil, err
	}
	var ptr journal.JournalPointer
	if err := yaml.Unmarshal(data, &ptr); err != nil {
		return nil, err
	}
	return &ptr, nil
}

// Save writes through a uniquely-named staging file before renaming it into
// place, so a retried reformat attempt after a crash never races its own
// prior partial write to the same pointer object.
func (p PointerStore) Save(poolName string, mdsID int, ptr *journal.JournalPointer) error {
	if err := os.MkdirAll(p.BaseDir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(ptr)
	if err != nil {
		return err
	}
	path := p.path(poolName, mdsID)
	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
