// Package interchange reads and writes the JSON document that carries a
// library across a relationship reshape.
//
// The document is written by streaming so that large libraries never need
// to be held in memory:
//
//	{"format":"1","source_version":"2.0.0","run_id":"...","movies":[
//	{"title":"Heat","favorite":true,"actors":["Al Pacino","Robert De Niro"]},
//	...
//	]}
//
// Movie identity is carried in "id" only when it survives the boundary the
// document is written for.
package interchange

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Format is the document format this package writes and accepts.
const Format = "1"

var (
	// ErrUnsupportedFormat is returned when a document declares a format
	// other than Format.
	ErrUnsupportedFormat = errors.New("interchange: unsupported format")

	// ErrMalformed is returned when a document is not shaped as expected.
	ErrMalformed = errors.New("interchange: malformed document")
)

// Header describes where a document came from.
type Header struct {
	Format        string `json:"format"`
	SourceVersion string `json:"source_version"`
	RunID         string `json:"run_id,omitempty"`
}

// Record is one movie with its cast in billing order.
type Record struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Favorite bool     `json:"favorite"`
	Actors   []string `json:"actors"`
}

// Document is a fully decoded export.
type Document struct {
	Header
	Movies []Record `json:"movies"`
}

// Encoder streams records into a document.
type Encoder struct {
	w     io.Writer
	count int
	done  bool
}

// NewEncoder writes the document header to w and returns an encoder for its
// records. Close must be called to terminate the document.
func NewEncoder(w io.Writer, h Header) (*Encoder, error) {
	if h.Format == "" {
		h.Format = Format
	}
	head, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("interchange: encode header: %w", err)
	}
	// Reopen the header object to append the movies array.
	head = append(head[:len(head)-1], []byte(`,"movies":[`)...)
	if _, err := w.Write(head); err != nil {
		return nil, fmt.Errorf("interchange: write header: %w", err)
	}
	return &Encoder{w: w}, nil
}

// Encode appends one record.
func (e *Encoder) Encode(r Record) error {
	if e.done {
		return fmt.Errorf("interchange: encode after close")
	}
	if r.Actors == nil {
		r.Actors = []string{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("interchange: encode record: %w", err)
	}
	sep := ",\n"
	if e.count == 0 {
		sep = "\n"
	}
	if _, err := io.WriteString(e.w, sep); err != nil {
		return fmt.Errorf("interchange: write separator: %w", err)
	}
	if _, err := e.w.Write(b); err != nil {
		return fmt.Errorf("interchange: write record: %w", err)
	}
	e.count++
	return nil
}

// Count returns the number of records encoded so far.
func (e *Encoder) Count() int { return e.count }

// Close terminates the document. It does not close the underlying writer.
func (e *Encoder) Close() error {
	if e.done {
		return nil
	}
	e.done = true
	footer := "]}\n"
	if e.count > 0 {
		footer = "\n]}\n"
	}
	if _, err := io.WriteString(e.w, footer); err != nil {
		return fmt.Errorf("interchange: write footer: %w", err)
	}
	return nil
}

// Write atomically replaces the file at path with doc. The document is
// written to a temporary file in the same directory, synced and renamed
// over path, so a reader never observes a partial document. An existing
// file at path is overwritten.
func Write(path string, doc Document) error {
	return WriteFunc(path, doc.Header, func(enc *Encoder) error {
		for _, r := range doc.Movies {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteFunc is Write for callers that produce records incrementally.
func WriteFunc(path string, h Header, fill func(*Encoder) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("interchange: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("interchange: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	enc, err := NewEncoder(bw, h)
	if err != nil {
		return err
	}
	if err := fill(enc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("interchange: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("interchange: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("interchange: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("interchange: rename: %w", err)
	}
	return nil
}

// Read decodes the whole document at path.
func Read(ctx context.Context, path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("interchange: open: %w", err)
	}
	defer f.Close()

	var doc Document
	h, err := Decode(ctx, bufio.NewReader(f), func(r Record) error {
		doc.Movies = append(doc.Movies, r)
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	doc.Header = h
	return doc, nil
}

// Remove deletes the document at path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("interchange: remove: %w", err)
	}
	return nil
}

// Exists reports whether a document is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Decode reads a document from r token by token, calling fn for each
// record in order. The format field must precede the movies array.
// Unknown top-level fields are skipped.
func Decode(ctx context.Context, r io.Reader, fn func(Record) error) (Header, error) {
	dec := json.NewDecoder(r)
	var h Header

	if err := expectDelim(dec, '{'); err != nil {
		return h, err
	}
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return h, err
		}
		tok, err := dec.Token()
		if err != nil {
			return h, fmt.Errorf("%w: read field name: %v", ErrMalformed, err)
		}
		field, ok := tok.(string)
		if !ok {
			return h, fmt.Errorf("%w: expected field name, got %v", ErrMalformed, tok)
		}

		switch field {
		case "format":
			if err := dec.Decode(&h.Format); err != nil {
				return h, fmt.Errorf("%w: decode format: %v", ErrMalformed, err)
			}
			if h.Format != Format {
				return h, fmt.Errorf("%w %q (expected %q)", ErrUnsupportedFormat, h.Format, Format)
			}
		case "source_version":
			if err := dec.Decode(&h.SourceVersion); err != nil {
				return h, fmt.Errorf("%w: decode source_version: %v", ErrMalformed, err)
			}
		case "run_id":
			if err := dec.Decode(&h.RunID); err != nil {
				return h, fmt.Errorf("%w: decode run_id: %v", ErrMalformed, err)
			}
		case "movies":
			if h.Format == "" {
				return h, fmt.Errorf("%w: movies before format", ErrMalformed)
			}
			if err := decodeMovies(ctx, dec, fn); err != nil {
				return h, err
			}
		default:
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return h, fmt.Errorf("%w: skip %s: %v", ErrMalformed, field, err)
			}
		}
	}
	if h.Format == "" {
		return h, fmt.Errorf("%w: missing format field", ErrMalformed)
	}
	return h, nil
}

func decodeMovies(ctx context.Context, dec *json.Decoder, fn func(Record) error) error {
	if err := expectDelim(dec, '['); err != nil {
		return err
	}
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("%w: decode record: %v", ErrMalformed, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return expectDelim(dec, ']')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: expected %v: %v", ErrMalformed, want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %v, got %v", ErrMalformed, want, tok)
	}
	return nil
}
