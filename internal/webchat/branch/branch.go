// Package branch resolves a branching message history into the single
// visible conversation path.
//
// Editing a message creates a sibling under the same parent instead of
// mutating history, so a chat's messages form a DAG. The resolver walks that
// DAG from its roots, picking one child at every branch point, and annotates
// branch points with navigation metadata for the UI.
package branch

import (
	"sort"

	"github.com/louisbranch/webchat/internal/webchat"
)

// Direction selects a neighboring sibling during navigation.
type Direction int

const (
	// Prev moves to the previous (older) sibling.
	Prev Direction = iota
	// Next moves to the next (newer) sibling.
	Next
)

// Selection maps a parent message id to the index of the child the user is
// currently viewing. Absent entries default to the last sibling, so the
// newest edit wins until the user navigates explicitly.
type Selection map[string]int

// Nav describes a message's position within its sibling group. It is only
// attached to messages whose parent has two or more children.
type Nav struct {
	// Current is the 1-based index of this message among its siblings.
	Current int
	Total   int
	CanPrev bool
	CanNext bool
	// GroupID is the shared parent message id keying the sibling group.
	GroupID string
}

// Entry is one message on the visible path. Nav is nil off branch points.
type Entry struct {
	Message webchat.Message
	Nav     *Nav
}

// Resolve computes the visible path through messages for the given branch
// selection. It is a pure function: identical inputs yield identical output,
// and neither messages nor selection is mutated.
//
// Messages whose parent id references nothing in the set are orphans; no walk
// reaches them and they are silently excluded. A malformed reply chain that
// loops is bounded by a visited check rather than trusted to be acyclic.
func Resolve(messages []webchat.Message, selection Selection) []Entry {
	children, roots := index(messages)

	visited := make(map[string]bool, len(messages))
	var path []webchat.Message
	for _, root := range roots {
		current := root
		for {
			if visited[current.ID] {
				break
			}
			visited[current.ID] = true
			path = append(path, current)

			siblings := children[current.ID]
			if len(siblings) == 0 {
				break
			}
			current = siblings[selectedIndex(selection, current.ID, len(siblings))]
		}
	}

	webchat.SortMessages(path)

	entries := make([]Entry, len(path))
	for i, msg := range path {
		entries[i] = Entry{Message: msg, Nav: navFor(msg, children)}
	}
	return entries
}

// Navigate moves the selection for groupID one sibling in the given
// direction, clamped to the valid range. It reports whether the selection
// changed; at either boundary it is a no-op. Callers re-resolve the full path
// afterwards, since changing one selection can change the entire downstream
// subtree.
func Navigate(messages []webchat.Message, selection Selection, groupID string, dir Direction) bool {
	children, _ := index(messages)
	siblings := children[groupID]
	if len(siblings) < 2 {
		return false
	}

	current := selectedIndex(selection, groupID, len(siblings))
	next := current
	switch dir {
	case Prev:
		next = current - 1
	case Next:
		next = current + 1
	}
	if next < 0 || next >= len(siblings) || next == current {
		return false
	}
	selection[groupID] = next
	return true
}

// index builds the adjacency map (parent id -> children sorted by
// (timestamp, id)) and the sorted root list.
func index(messages []webchat.Message) (map[string][]webchat.Message, []webchat.Message) {
	children := make(map[string][]webchat.Message)
	var roots []webchat.Message
	for _, msg := range messages {
		if msg.IsRoot() {
			roots = append(roots, msg)
			continue
		}
		children[msg.ReplyToMessageID] = append(children[msg.ReplyToMessageID], msg)
	}
	for parent := range children {
		webchat.SortMessages(children[parent])
	}
	webchat.SortMessages(roots)
	return children, roots
}

// selectedIndex resolves the effective sibling index for a parent, defaulting
// to the last sibling and clamping stale selections into range.
func selectedIndex(selection Selection, parentID string, count int) int {
	idx, ok := selection[parentID]
	if !ok {
		return count - 1
	}
	if idx < 0 {
		return 0
	}
	if idx >= count {
		return count - 1
	}
	return idx
}

func navFor(msg webchat.Message, children map[string][]webchat.Message) *Nav {
	if msg.IsRoot() {
		return nil
	}
	siblings := children[msg.ReplyToMessageID]
	if len(siblings) < 2 {
		return nil
	}
	idx := sort.Search(len(siblings), func(i int) bool {
		return !webchat.Less(siblings[i], msg)
	})
	return &Nav{
		Current: idx + 1,
		Total:   len(siblings),
		CanPrev: idx > 0,
		CanNext: idx < len(siblings)-1,
		GroupID: msg.ReplyToMessageID,
	}
}
