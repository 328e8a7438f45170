// Package segment persists a finalized index.Store as a single .spdx file.
//
// Layout: a 64-byte header, three snappy-compressed blocks (metadata,
// postings, term dictionary) and a 32-byte footer. The footer carries a
// CRC32 over everything between header and footer.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// Header is the fixed-size header written at the start of every file.
type Header struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	MetaOffset int64
	MetaSize   int64
	PostOffset int64
	PostSize   int64
	DictOffset int64
	DictSize   int64
}

// DictEntry locates the postings of one (field, term) pair inside the
// postings block.
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

type meta struct {
	index.Snapshot
	CreatedAt int64 `json:"created_at"`
}

// Write atomically persists store at path. It writes to a .tmp file first
// and renames on success.
func Write(path string, store *index.Store) (Header, error) {
	if !store.Ready() {
		return Header{}, fmt.Errorf("cannot persist an index that is not finalized")
	}
	snap := store.Snapshot()

	metaData, err := json.Marshal(meta{Snapshot: snap, CreatedAt: time.Now().Unix()})
	if err != nil {
		return Header{}, fmt.Errorf("marshaling index metadata: %w", err)
	}
	metaBlock := snappy.Encode(nil, metaData)

	var postBlock []byte
	dict := make([]DictEntry, 0, len(snap.Entries))
	for _, entry := range snap.Entries {
		encoded := snappy.Encode(nil, encodePostings(entry.Postings))
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Term:       entry.Term,
			PostOffset: int64(len(postBlock)),
			PostLen:    len(encoded),
			DocFreq:    len(entry.Postings),
		})
		postBlock = append(postBlock, encoded...)
	}
	dictData, err := json.Marshal(dict)
	if err != nil {
		return Header{}, fmt.Errorf("marshaling dictionary: %w", err)
	}
	dictBlock := snappy.Encode(nil, dictData)

	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(dict)),
		DocCount:   uint32(store.NumDocs()),
		MetaOffset: int64(HeaderSize),
		MetaSize:   int64(len(metaBlock)),
	}
	header.PostOffset = header.MetaOffset + header.MetaSize
	header.PostSize = int64(len(postBlock))
	header.DictOffset = header.PostOffset + header.PostSize
	header.DictSize = int64(len(dictBlock))

	checksum := crc32.NewIEEE()
	checksum.Write(metaBlock)
	checksum.Write(postBlock)
	checksum.Write(dictBlock)

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], header.DocCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.DictOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.DictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(header.PostSize))

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Header{}, fmt.Errorf("creating index directory: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return Header{}, fmt.Errorf("creating temp index file: %w", err)
	}
	defer f.Close()

	for _, chunk := range [][]byte{encodeHeader(header), metaBlock, postBlock, dictBlock, footer} {
		if _, err := f.Write(chunk); err != nil {
			os.Remove(tmpPath)
			return Header{}, fmt.Errorf("writing index file: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return Header{}, fmt.Errorf("syncing index file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return Header{}, fmt.Errorf("renaming index file: %w", err)
	}
	return header, nil
}

func encodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.MetaOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.MetaSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.DictSize))
	return b
}

// encodePostings writes doc id deltas and frequencies as uvarints.
func encodePostings(postings []index.Posting) []byte {
	buf := make([]byte, 0, len(postings)*2)
	var prev index.DocID
	for _, p := range postings {
		buf = binary.AppendUvarint(buf, uint64(p.DocID-prev))
		buf = binary.AppendUvarint(buf, uint64(p.Frequency))
		prev = p.DocID
	}
	return buf
}
