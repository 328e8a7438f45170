package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/golang/snappy"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// Load reads a file written by Write and rebuilds a ready Store. Any
// structural damage is reported as ErrCorruptIndex.
func Load(path string) (*index.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", apperrors.ErrCorruptIndex, len(data))
	}
	header, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	end := header.DictOffset + header.DictSize
	if header.MetaOffset != int64(HeaderSize) ||
		header.PostOffset != header.MetaOffset+header.MetaSize ||
		header.DictOffset != header.PostOffset+header.PostSize ||
		end+int64(FooterSize) != int64(len(data)) {
		return nil, fmt.Errorf("%w: block offsets do not match file size %d", apperrors.ErrCorruptIndex, len(data))
	}

	footer := data[end:]
	want := binary.LittleEndian.Uint32(footer[0:4])
	if got := crc32.ChecksumIEEE(data[HeaderSize:end]); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch (got %08x, want %08x)", apperrors.ErrCorruptIndex, got, want)
	}

	metaData, err := snappy.Decode(nil, data[header.MetaOffset:header.PostOffset])
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing metadata: %v", apperrors.ErrCorruptIndex, err)
	}
	var m meta
	if err := json.Unmarshal(metaData, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing metadata: %v", apperrors.ErrCorruptIndex, err)
	}

	dictData, err := snappy.Decode(nil, data[header.DictOffset:end])
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing dictionary: %v", apperrors.ErrCorruptIndex, err)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictData, &dict); err != nil {
		return nil, fmt.Errorf("%w: parsing dictionary: %v", apperrors.ErrCorruptIndex, err)
	}
	if len(dict) != int(header.TermCount) {
		return nil, fmt.Errorf("%w: header lists %d terms, dictionary has %d", apperrors.ErrCorruptIndex, header.TermCount, len(dict))
	}

	postBlock := data[header.PostOffset:header.DictOffset]
	entries := make([]index.TermEntry, 0, len(dict))
	for _, d := range dict {
		if d.PostOffset < 0 || d.PostLen < 0 || d.DocFreq < 0 || d.PostOffset+int64(d.PostLen) > int64(len(postBlock)) {
			return nil, fmt.Errorf("%w: postings for %s:%q out of range", apperrors.ErrCorruptIndex, d.Field, d.Term)
		}
		raw, err := snappy.Decode(nil, postBlock[d.PostOffset:d.PostOffset+int64(d.PostLen)])
		if err != nil {
			return nil, fmt.Errorf("%w: decompressing postings for %s:%q: %v", apperrors.ErrCorruptIndex, d.Field, d.Term, err)
		}
		postings, err := decodePostings(raw, d.DocFreq)
		if err != nil {
			return nil, fmt.Errorf("%w: postings for %s:%q: %v", apperrors.ErrCorruptIndex, d.Field, d.Term, err)
		}
		entries = append(entries, index.TermEntry{Field: d.Field, Term: d.Term, Postings: postings})
	}

	snap := m.Snapshot
	snap.Entries = entries
	store, err := index.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("restoring index from %s: %w", path, err)
	}
	if store.NumDocs() != int(header.DocCount) {
		return nil, fmt.Errorf("%w: header lists %d documents, metadata has %d", apperrors.ErrCorruptIndex, header.DocCount, store.NumDocs())
	}
	return store, nil
}

// ReadHeader returns the header of the file at path without loading it.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("%w: reading header: %v", apperrors.ErrCorruptIndex, err)
	}
	return parseHeader(buf)
}

func parseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: file too short (%d bytes)", apperrors.ErrCorruptIndex, len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicBytes {
		return Header{}, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrCorruptIndex, magic)
	}
	h := Header{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(data[4:8]),
		TermCount:  binary.LittleEndian.Uint32(data[8:12]),
		DocCount:   binary.LittleEndian.Uint32(data[12:16]),
		MetaOffset: int64(binary.LittleEndian.Uint64(data[16:24])),
		MetaSize:   int64(binary.LittleEndian.Uint64(data[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(data[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(data[40:48])),
		DictOffset: int64(binary.LittleEndian.Uint64(data[48:56])),
		DictSize:   int64(binary.LittleEndian.Uint64(data[56:64])),
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("%w: unsupported format version %d", apperrors.ErrCorruptIndex, h.Version)
	}
	if h.MetaSize < 0 || h.PostSize < 0 || h.DictSize < 0 {
		return Header{}, fmt.Errorf("%w: negative block size", apperrors.ErrCorruptIndex)
	}
	return h, nil
}

func decodePostings(buf []byte, docFreq int) ([]index.Posting, error) {
	postings := make([]index.Posting, 0, docFreq)
	var prev uint64
	for len(buf) > 0 {
		delta, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, fmt.Errorf("bad doc id varint")
		}
		buf = buf[n:]
		freq, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, fmt.Errorf("bad frequency varint")
		}
		buf = buf[n:]
		doc := prev + delta
		if doc > uint64(^index.DocID(0)) || freq > uint64(^uint32(0)) {
			return nil, fmt.Errorf("value overflows 32 bits")
		}
		postings = append(postings, index.Posting{DocID: index.DocID(doc), Frequency: uint32(freq)})
		prev = doc
	}
	if len(postings) != docFreq {
		return nil, fmt.Errorf("decoded %d postings, dictionary says %d", len(postings), docFreq)
	}
	return postings, nil
}
