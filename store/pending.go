package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/tobyv/warbler/domain"
)

// PendingFollows persists Follow requests awaiting a manual decision when
// auto-accept is disabled. Approving or rejecting them is external
// workflow; the store only records them.
type PendingFollows struct {
	dir string
}

func NewPendingFollows(dir string) (*PendingFollows, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pending directory: %w", err)
	}
	return &PendingFollows{dir: dir}, nil
}

// Add records a Follow request for later review.
func (p *PendingFollows) Add(act *domain.Activity) error {
	buf, err := json.MarshalIndent(act, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pending follow: %w", err)
	}

	name := fmt.Sprintf("follow-%s.json", uuid.New().String())
	tmp := filepath.Join(p.dir, name+".tmp")
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("failed to write pending follow: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(p.dir, name)); err != nil {
		return fmt.Errorf("failed to record pending follow: %w", err)
	}
	return nil
}

// List returns the recorded Follow requests, oldest filename first.
func (p *PendingFollows) List() ([]*domain.Activity, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	follows := make([]*domain.Activity, 0, len(names))
	for _, name := range names {
		buf, err := os.ReadFile(filepath.Join(p.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read pending follow: %w", err)
		}
		act, err := domain.ParseActivity(buf)
		if err != nil {
			continue
		}
		follows = append(follows, act)
	}
	return follows, nil
}
