// Package items provides persistent storage for the bulletin's lost and
// found items.
package items

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNameRequired is returned when an item is added without a name.
var ErrNameRequired = errors.New("item name required")

// Item statuses.
const (
	Lost  = "lost"
	Found = "found"
)

// Sort orders accepted by Filter.
const (
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortName     = "name"
	SortLocation = "location"
)

// Item is a single bulletin entry.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Desc     string `json:"desc"`
	Location string `json:"location"`
	Date     string `json:"date"` // YYYY-MM-DD, may be empty
	Contact  string `json:"contact"`
	Image    string `json:"image"`
	Status   string `json:"status"`
}

// Counts summarises the store.
type Counts struct {
	Total int
	Lost  int
	Found int
}

// LocationCount is one row of the location ranking.
type LocationCount struct {
	Location string
	Count    int
}

// Store manages the items collection. Newest items come first.
type Store struct {
	mu    sync.Mutex
	path  string
	Items []Item `json:"items"`
}

// Path returns the default store path.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "findit", "items.json"), nil
}

// Load reads items from path, or from Path() when path is empty. A missing or
// empty store is seeded with demo items.
func Load(path string) (*Store, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	store := &Store{path: path}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, store); err != nil {
			return nil, err
		}
	}

	if len(store.Items) == 0 {
		store.Items = seed()
		if err := store.Save(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// NewMemory returns a seeded store that is never written to disk.
func NewMemory() *Store {
	return &Store{Items: seed()}
}

func seed() []Item {
	return []Item{
		{ID: uuid.NewString(), Name: "Black Backpack", Desc: "Leather with a red ribbon on the strap", Location: "Science Block - 2nd floor", Date: "2025-11-21", Contact: "student@campus.edu", Status: Lost},
		{ID: uuid.NewString(), Name: "Silver MacBook", Desc: "13 inch, sticker on lid", Location: "Library", Date: "2025-11-24", Contact: "owner@uni.edu", Status: Lost},
	}
}

// Save writes items to disk. Memory stores are not saved.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

// Add stores a new item at the front and saves. The status defaults to lost.
func (s *Store) Add(it Item) (Item, error) {
	it.Name = strings.TrimSpace(it.Name)
	if it.Name == "" {
		return Item{}, ErrNameRequired
	}
	it.ID = uuid.NewString()
	if it.Status != Found {
		it.Status = Lost
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Items = append([]Item{it}, s.Items...)
	return it, s.save()
}

// Update replaces the editable fields of an item, keeping its status.
func (s *Store) Update(id string, it Item) (bool, error) {
	it.Name = strings.TrimSpace(it.Name)
	if it.Name == "" {
		return false, ErrNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return false, nil
	}
	it.ID = id
	it.Status = s.Items[i].Status
	s.Items[i] = it
	return true, s.save()
}

// Toggle flips an item between lost and found.
func (s *Store) Toggle(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return false, nil
	}
	if s.Items[i].Status == Lost {
		s.Items[i].Status = Found
	} else {
		s.Items[i].Status = Lost
	}
	return true, s.save()
}

// Remove deletes an item.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return false, nil
	}
	s.Items = append(s.Items[:i], s.Items[i+1:]...)
	return true, s.save()
}

// Get returns the item with id.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.Items[i], true
	}
	return Item{}, false
}

// All returns a copy of every item, newest first.
func (s *Store) All() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.Items...)
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Items)
}

// Filter returns the items whose name, location or description contains
// query (case-insensitive) and whose status is state ("all" or "" for any),
// ordered by sortBy.
func (s *Store) Filter(query, state, sortBy string) []Item {
	q := strings.ToLower(strings.TrimSpace(query))

	var out []Item
	for _, it := range s.All() {
		if state != "" && state != "all" && it.Status != state {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(it.Name), q) &&
			!strings.Contains(strings.ToLower(it.Location), q) &&
			!strings.Contains(strings.ToLower(it.Desc), q) {
			continue
		}
		out = append(out, it)
	}

	switch sortBy {
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	case SortName:
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	case SortLocation:
		sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Location) < strings.ToLower(out[j].Location) })
	case SortNewest, "":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	}
	return out
}

// Counts tallies items by status.
func (s *Store) Counts() Counts {
	var c Counts
	for _, it := range s.All() {
		c.Total++
		switch it.Status {
		case Lost:
			c.Lost++
		case Found:
			c.Found++
		}
	}
	return c
}

// Recent returns up to n items in storage order.
func (s *Store) Recent(n int) []Item {
	all := s.All()
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// TopLocations ranks locations by item count, most frequent first, and
// returns at most n. Items without a location count as "Unknown".
func (s *Store) TopLocations(n int) []LocationCount {
	counts := make(map[string]int)
	var order []string
	for _, it := range s.All() {
		loc := it.Location
		if loc == "" {
			loc = "Unknown"
		}
		if counts[loc] == 0 {
			order = append(order, loc)
		}
		counts[loc]++
	}

	out := make([]LocationCount, 0, len(order))
	for _, loc := range order {
		out = append(out, LocationCount{Location: loc, Count: counts[loc]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *Store) index(id string) int {
	for i, it := range s.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
