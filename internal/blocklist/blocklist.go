package blocklist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mskumargvd/arushi-cloud/pkg/utils"
)

// Store is the set of application names currently blocked, persisted as
// a JSON array. Every mutation is written to disk before it returns.
type Store struct {
	mu   sync.Mutex
	path string
	apps map[string]struct{}
}

// Load reads the set from path. A missing file yields an empty set; an
// unreadable or corrupt file is an error.
func Load(path string) (*Store, error) {
	s := &Store{
		path: path,
		apps: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read block list: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return s, nil
	}

	var apps []string
	if err := json.Unmarshal(data, &apps); err != nil {
		return nil, fmt.Errorf("failed to parse block list %s: %w", path, err)
	}
	for _, app := range apps {
		if app != "" {
			s.apps[app] = struct{}{}
		}
	}
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Add records app as blocked
func (s *Store) Add(app string) error {
	if app == "" {
		return errors.New("app name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[app]; ok {
		return nil
	}
	s.apps[app] = struct{}{}
	return s.saveLocked()
}

// Remove forgets app. Removing an app that is not blocked is not an error.
func (s *Store) Remove(app string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[app]; !ok {
		return nil
	}
	delete(s.apps, app)
	return s.saveLocked()
}

// Contains reports whether app is blocked
func (s *Store) Contains(app string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.apps[app]
	return ok
}

// List returns the blocked apps sorted by name
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// Len returns the number of blocked apps
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.apps)
}

// Replace overwrites the whole set, used when reconciling against the
// enforcement point.
func (s *Store) Replace(apps []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apps = make(map[string]struct{}, len(apps))
	for _, app := range apps {
		if app != "" {
			s.apps[app] = struct{}{}
		}
	}
	return s.saveLocked()
}

func (s *Store) listLocked() []string {
	apps := make([]string, 0, len(s.apps))
	for app := range s.apps {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

func (s *Store) saveLocked() error {
	data, err := json.Marshal(s.listLocked())
	if err != nil {
		return fmt.Errorf("failed to encode block list: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save block list: %w", err)
	}
	return nil
}
