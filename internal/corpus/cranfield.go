package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Cranfield section markers and the document fields they fill.
var cranfieldFields = map[string]string{
	".T": "title",
	".A": "author",
	".B": "bibliography",
	".W": "contentSubstance",
}

// recordScanner splits a Cranfield-style file into records. A record
// starts at a ".I <id>" line; each following ".X" marker line opens a
// section whose text is its lines joined by single spaces.
type recordScanner struct {
	sc      *bufio.Scanner
	line    int
	pending string
	hasNext bool
	logger  *slog.Logger
}

type rawRecord struct {
	id       string
	line     int
	sections map[string]string
}

func newRecordScanner(r io.Reader, component string) *recordScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &recordScanner{sc: sc, logger: slog.Default().With("component", component)}
}

func (s *recordScanner) readLine() (string, bool) {
	if s.hasNext {
		s.hasNext = false
		return s.pending, true
	}
	if !s.sc.Scan() {
		return "", false
	}
	s.line++
	return strings.TrimRight(s.sc.Text(), "\r"), true
}

func (s *recordScanner) unread(line string) {
	s.pending, s.hasNext = line, true
}

// marker reports the section marker a line opens, if any.
func marker(line string) (string, string, bool) {
	if len(line) < 2 || line[0] != '.' {
		return "", "", false
	}
	c := line[1]
	if c < 'A' || c > 'Z' || (len(line) > 2 && line[2] != ' ' && line[2] != '\t') {
		return "", "", false
	}
	return line[:2], strings.TrimSpace(line[2:]), true
}

func (s *recordScanner) next(ctx context.Context) (rawRecord, error) {
	if err := ctx.Err(); err != nil {
		return rawRecord{}, err
	}
	// Skip to the next .I line.
	for {
		line, ok := s.readLine()
		if !ok {
			if err := s.sc.Err(); err != nil {
				return rawRecord{}, fmt.Errorf("line %d: %w", s.line, err)
			}
			return rawRecord{}, io.EOF
		}
		if m, _, ok := marker(line); ok && m == ".I" {
			s.unread(line)
			break
		}
		if strings.TrimSpace(line) != "" {
			s.logger.Warn("text outside a record ignored", "line", s.line)
		}
	}

	header, _ := s.readLine()
	_, id, _ := marker(header)
	rec := rawRecord{id: id, line: s.line, sections: make(map[string]string)}
	var (
		section string
		text    []string
	)
	flush := func() {
		if section == "" {
			return
		}
		joined := strings.Join(text, " ")
		if prev, ok := rec.sections[section]; ok {
			joined = prev + " " + joined
		}
		rec.sections[section] = strings.TrimSpace(joined)
		section, text = "", nil
	}
	for {
		line, ok := s.readLine()
		if !ok {
			break
		}
		if m, rest, ok := marker(line); ok {
			if m == ".I" {
				s.unread(line)
				break
			}
			flush()
			section = m
			if rest != "" {
				text = append(text, rest)
			}
			continue
		}
		if section != "" {
			text = append(text, strings.TrimSpace(line))
		}
	}
	flush()
	if err := s.sc.Err(); err != nil {
		return rawRecord{}, fmt.Errorf("line %d: %w", s.line, err)
	}
	return rec, nil
}

// CranfieldReader is a Source over a cran.all.1400 style document file.
type CranfieldReader struct {
	scan   *recordScanner
	closer io.Closer
}

func NewCranfieldReader(r io.Reader) *CranfieldReader {
	return &CranfieldReader{scan: newRecordScanner(r, "cranfield-reader")}
}

// OpenCranfield opens a document file for reading.
func OpenCranfield(path string) (*CranfieldReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	cr := NewCranfieldReader(f)
	cr.closer = f
	return cr, nil
}

// Next returns the next document. Records without an id are skipped with
// a warning. Sections a record lacks are absent from its fields.
func (c *CranfieldReader) Next(ctx context.Context) (Record, error) {
	for {
		raw, err := c.scan.next(ctx)
		if err != nil {
			return Record{}, err
		}
		if raw.id == "" {
			c.scan.logger.Warn("record without id skipped", "line", raw.line)
			continue
		}
		fields := map[string]string{IDField: raw.id}
		for m, text := range raw.sections {
			if name, ok := cranfieldFields[m]; ok {
				fields[name] = text
			}
		}
		return Record{Fields: fields}, nil
	}
}

func (c *CranfieldReader) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// QueryOptions controls how query ids are assigned.
type QueryOptions struct {
	// Sequential numbers queries 1..n in file order instead of using their
	// .I values. The Cranfield relevance judgements use this numbering.
	Sequential bool
}

// ReadQueries parses a cran.qry style file: .I id followed by a .W body.
// Queries without text are skipped with a warning.
func ReadQueries(ctx context.Context, r io.Reader, opts QueryOptions) ([]Query, error) {
	scan := newRecordScanner(r, "query-reader")
	var out []Query
	n := 0
	for {
		raw, err := scan.next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading queries: %w", err)
		}
		n++
		id := raw.id
		if opts.Sequential {
			id = strconv.Itoa(n)
		}
		text := raw.sections[".W"]
		if id == "" || text == "" {
			scan.logger.Warn("query skipped", "line", raw.line, "query_id", id)
			continue
		}
		out = append(out, Query{ID: id, Text: text})
	}
}

// LoadQueries reads a query file from disk.
func LoadQueries(ctx context.Context, path string, opts QueryOptions) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening queries %s: %w", path, err)
	}
	defer f.Close()
	return ReadQueries(ctx, f, opts)
}
