package index

import (
	"sort"
)

// MemoryIndex is the mutable segment a Builder writes into. Documents must
// be added in increasing DocID order, which keeps every postings slice
// sorted without extra work. It is not safe for concurrent use.
type MemoryIndex struct {
	index    map[string]map[string][]Posting
	docCount int
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[string][]Posting),
	}
}

// AddDocument appends the document's term frequencies, keyed by field then
// term.
func (m *MemoryIndex) AddDocument(docID DocID, fieldTerms map[string]map[string]uint32) {
	for field, terms := range fieldTerms {
		byTerm, exists := m.index[field]
		if !exists {
			byTerm = make(map[string][]Posting)
			m.index[field] = byTerm
		}
		for term, freq := range terms {
			if _, seen := byTerm[term]; !seen {
				m.size += int64(len(term) + len(field) + 48)
			}
			byTerm[term] = append(byTerm[term], Posting{DocID: docID, Frequency: freq})
			m.size += 8
		}
	}
	m.docCount++
}

// Size is a rough estimate of the bytes held by the index.
func (m *MemoryIndex) Size() int64 {
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	return m.docCount
}

// Seal converts the contents into an immutable Segment and resets the
// index. It returns nil when the index is empty.
func (m *MemoryIndex) Seal() *Segment {
	if m.docCount == 0 {
		return nil
	}
	seg := &Segment{
		postings: make(map[string]map[string]*PostingList, len(m.index)),
		docCount: m.docCount,
	}
	for field, byTerm := range m.index {
		lists := make(map[string]*PostingList, len(byTerm))
		for term, postings := range byTerm {
			lists[term] = NewPostingList(postings)
		}
		seg.postings[field] = lists
	}
	m.Reset()
	return seg
}

func (m *MemoryIndex) Reset() {
	m.index = make(map[string]map[string][]Posting)
	m.docCount = 0
	m.size = 0
}

// Segment is an immutable run of postings covering a contiguous DocID
// range.
type Segment struct {
	postings map[string]map[string]*PostingList
	docCount int
}

// Lookup returns the postings for (field, term), or nil.
func (s *Segment) Lookup(field, term string) *PostingList {
	byTerm, ok := s.postings[field]
	if !ok {
		return nil
	}
	return byTerm[term]
}

func (s *Segment) DocCount() int { return s.docCount }

// Terms counts the (field, term) pairs in the segment.
func (s *Segment) Terms() int {
	n := 0
	for _, byTerm := range s.postings {
		n += len(byTerm)
	}
	return n
}

// Entries lists the segment's postings sorted by field, then term.
func (s *Segment) Entries() []TermEntry {
	entries := make([]TermEntry, 0, s.Terms())
	for field, byTerm := range s.postings {
		for term, pl := range byTerm {
			entries = append(entries, TermEntry{Field: field, Term: term, Postings: pl.Postings})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Field != entries[j].Field {
			return entries[i].Field < entries[j].Field
		}
		return entries[i].Term < entries[j].Term
	})
	return entries
}
