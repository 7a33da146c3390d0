// Package citation assigns stable display markers to the citations of a
// thread.
package citation

import (
	"fmt"
	"sync"
)

// Citation is one citation_metadata payload as delivered by the stream.
type Citation struct {
	CitationID string `json:"citation_id"`
	LibraryID  int    `json:"library_id,omitempty"`
	ItemKey    string `json:"zotero_key,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	Page       string `json:"page,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
}

// Key deduplicates repeated citations of the same underlying work.
func (c Citation) Key() string {
	switch {
	case c.LibraryID > 0 && c.ItemKey != "":
		return fmt.Sprintf("lib:%d:%s", c.LibraryID, c.ItemKey)
	case c.SourceID != "":
		return "src:" + c.SourceID
	default:
		return "cit:" + c.CitationID
	}
}

// Metadata is what the UI shows next to a marker.
type Metadata struct {
	Title    string `json:"title"`
	Authors  string `json:"authors,omitempty"`
	Year     string `json:"year,omitempty"`
	Resolved bool   `json:"resolved"`
}

// MetadataResolver looks up display metadata for a newly seen citation.
type MetadataResolver func(Citation) Metadata

type Entry struct {
	Citation
	Marker   int      `json:"marker"`
	Metadata Metadata `json:"metadata"`
}

type Numberer struct {
	resolve MetadataResolver

	mu      sync.Mutex
	markers map[string]int
	entries map[string]Entry // by citation id
	next    int
}

func NewNumberer(resolve MetadataResolver) *Numberer {
	if resolve == nil {
		resolve = func(c Citation) Metadata { return Metadata{Title: c.Key()} }
	}
	n := &Numberer{resolve: resolve}
	n.Reset()
	return n
}

// Update walks the whole accumulated citation list and returns one display
// entry per citation. Markers are assigned in first-seen key order and never
// change; metadata is only resolved for citation ids not seen before.
func (n *Numberer) Update(citations []Citation) []Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Entry, 0, len(citations))
	for _, c := range citations {
		key := c.Key()
		marker, ok := n.markers[key]
		if !ok {
			n.next++
			marker = n.next
			n.markers[key] = marker
		}

		e, known := n.entries[c.CitationID]
		if !known || e.Citation != c {
			e = Entry{Citation: c, Metadata: n.resolve(c)}
		}
		e.Marker = marker
		n.entries[c.CitationID] = e
		out = append(out, e)
	}
	return out
}

// Marker returns the marker of a citation key, or 0 when the key is unseen.
func (n *Numberer) Marker(key string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.markers[key]
}

func (n *Numberer) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.markers = make(map[string]int)
	n.entries = make(map[string]Entry)
	n.next = 0
}
