package index

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// DocID is the dense identifier assigned to a document at index time.
type DocID = uint32

// Posting records how often a term occurs in one field of one document.
type Posting struct {
	DocID     DocID  `json:"d"`
	Frequency uint32 `json:"f"`
}

// PostingList is the postings of one (field, term) pair within a segment,
// sorted by DocID, with the doc set kept as a bitmap for boolean filtering.
type PostingList struct {
	Postings      []Posting
	TotalTermFreq int64
	docs          *roaring.Bitmap
}

// NewPostingList builds a list from postings already sorted by DocID.
func NewPostingList(postings []Posting) *PostingList {
	pl := &PostingList{
		Postings: postings,
		docs:     roaring.New(),
	}
	for _, p := range postings {
		pl.TotalTermFreq += int64(p.Frequency)
		pl.docs.Add(p.DocID)
	}
	pl.docs.RunOptimize()
	return pl
}

// DocFreq is the number of documents in the list.
func (pl *PostingList) DocFreq() int {
	return len(pl.Postings)
}

// Docs returns the document set. Callers must not modify it.
func (pl *PostingList) Docs() *roaring.Bitmap {
	return pl.docs
}

// TermEntry is one (field, term) pair with its postings; it is the unit
// written to and read from segment files.
type TermEntry struct {
	Field    string
	Term     string
	Postings []Posting
}

// TermStats aggregates a (field, term) pair across all segments.
type TermStats struct {
	DocFreq       int
	TotalTermFreq int64
}
