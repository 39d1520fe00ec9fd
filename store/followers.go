package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FollowerStore is the durable set of follower actor URIs. Membership is
// keyed on the identifier, so duplicate Follow activities collapse to one
// entry. All mutations serialize on the store's lock and persist before
// returning.
type FollowerStore struct {
	mu        sync.Mutex
	path      string
	followers map[string]struct{}
}

type followerFile struct {
	Followers []string `json:"followers"`
}

// NewFollowerStore loads the follower set from path, starting empty if the
// file does not exist yet.
func NewFollowerStore(path string) (*FollowerStore, error) {
	s := &FollowerStore{
		path:      path,
		followers: make(map[string]struct{}),
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read follower file: %w", err)
	}

	var f followerFile
	if err := json.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("failed to parse follower file: %w", err)
	}
	for _, uri := range f.Followers {
		s.followers[uri] = struct{}{}
	}

	return s, nil
}

// Add inserts an actor URI into the set. Adding an existing follower is a
// no-op; the bool reports whether the set changed.
func (s *FollowerStore) Add(actorURI string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.followers[actorURI]; ok {
		return false, nil
	}
	s.followers[actorURI] = struct{}{}
	if err := s.persistLocked(); err != nil {
		delete(s.followers, actorURI)
		return false, err
	}
	return true, nil
}

// Remove deletes an actor URI from the set. Removing an absent follower is
// a no-op; the bool reports whether the set changed.
func (s *FollowerStore) Remove(actorURI string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.followers[actorURI]; !ok {
		return false, nil
	}
	delete(s.followers, actorURI)
	if err := s.persistLocked(); err != nil {
		s.followers[actorURI] = struct{}{}
		return false, err
	}
	return true, nil
}

func (s *FollowerStore) Contains(actorURI string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.followers[actorURI]
	return ok
}

// List returns a sorted snapshot of the follower set.
func (s *FollowerStore) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]string, 0, len(s.followers))
	for uri := range s.followers {
		list = append(list, uri)
	}
	sort.Strings(list)
	return list
}

func (s *FollowerStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.followers)
}

// persistLocked writes the set to disk via a temp file and rename, so a
// crash mid-write never truncates the existing file. Caller holds the lock.
func (s *FollowerStore) persistLocked() error {
	list := make([]string, 0, len(s.followers))
	for uri := range s.followers {
		list = append(list, uri)
	}
	sort.Strings(list)

	buf, err := json.MarshalIndent(followerFile{Followers: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal followers: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return fmt.Errorf("failed to write follower file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace follower file: %w", err)
	}
	return nil
}
