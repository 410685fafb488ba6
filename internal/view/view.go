// Package view projects the cached groups into the list a client shows.
package view

import (
	"fmt"
	"sort"

	"github.com/matheus3301/huddle/internal/store"
)

// Store is the part of the cache the view reads. It never writes anything
// but read markers.
type Store interface {
	ListGroups() ([]store.Group, error)
	ListPreviews() ([]store.Preview, error)
	ListReadMarkers() ([]store.ReadMarker, error)
	GetPreview(groupPub string) (*store.Preview, error)
	SetReadMarker(groupPub string, ts int64) error
}

// Entry is one row of the group list.
type Entry struct {
	GroupID      string
	Name         string
	LastActivity int64
	Preview      string
	Unread       bool
}

// Project combines groups with their previews and read markers. Entries are
// ordered by last activity, newest first; a group without messages counts
// its join time as activity. Ties are broken by name.
func Project(groups []store.Group, previews []store.Preview, markers []store.ReadMarker) []Entry {
	byGroup := make(map[string]store.Preview, len(previews))
	for _, p := range previews {
		byGroup[p.GroupPub] = p
	}
	read := make(map[string]int64, len(markers))
	for _, m := range markers {
		read[m.GroupPub] = m.LastReadTimestamp
	}

	entries := make([]Entry, 0, len(groups))
	for _, g := range groups {
		e := Entry{GroupID: g.Pub, Name: g.Name, LastActivity: g.JoinedAt}
		if p, ok := byGroup[g.Pub]; ok {
			e.LastActivity = p.LastTimestamp
			e.Preview = p.Summary
			e.Unread = p.LastTimestamp > read[g.Pub]
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].LastActivity != entries[j].LastActivity {
			return entries[i].LastActivity > entries[j].LastActivity
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].GroupID < entries[j].GroupID
	})
	return entries
}

// MarkRead moves the read marker of group up to its latest preview.
func MarkRead(db Store, group string) error {
	p, err := db.GetPreview(group)
	if err != nil {
		return fmt.Errorf("get preview: %w", err)
	}
	if p == nil {
		return nil
	}
	if err := db.SetReadMarker(group, p.LastTimestamp); err != nil {
		return fmt.Errorf("set read marker: %w", err)
	}
	return nil
}

// Service serves the group list from the cache.
type Service struct {
	db Store
}

// NewService creates a new view service.
func NewService(db Store) *Service {
	return &Service{db: db}
}

// List returns the projected group list.
func (s *Service) List() ([]Entry, error) {
	groups, err := s.db.ListGroups()
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	previews, err := s.db.ListPreviews()
	if err != nil {
		return nil, fmt.Errorf("list previews: %w", err)
	}
	markers, err := s.db.ListReadMarkers()
	if err != nil {
		return nil, fmt.Errorf("list read markers: %w", err)
	}
	return Project(groups, previews, markers), nil
}

// MarkRead marks every message of group as read.
func (s *Service) MarkRead(group string) error {
	return MarkRead(s.db, group)
}
