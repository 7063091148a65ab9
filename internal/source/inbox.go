// Package source feeds records to the engine from a directory inbox.
//
// Each *.yaml, *.yml or *.json file holds one record. Files are taken in
// name order. A reconciled file moves to done/; a file that cannot be
// parsed moves to failed/ so it does not block the ones behind it.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recon/internal/ir"
)

const (
	DoneDir   = "done"
	FailedDir = "failed"
)

// ErrEmpty is returned by Next when no record is waiting.
var ErrEmpty = errors.New("inbox empty")

// Item is a record read from the inbox together with its file.
type Item struct {
	Path   string
	Record ir.Record
}

// Inbox is a directory of pending record files.
type Inbox struct {
	dir string
}

// NewInbox returns an inbox rooted at dir. The directory is created on
// first use.
func NewInbox(dir string) *Inbox {
	return &Inbox{dir: dir}
}

// Dir returns the inbox directory.
func (b *Inbox) Dir() string {
	return b.dir
}

// Pending lists waiting record files in processing order.
func (b *Inbox) Pending() ([]string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isRecordFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(b.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Next reads the first pending record. Unparsable files are moved to
// failed/ and skipped. It returns ErrEmpty when nothing is waiting.
func (b *Inbox) Next(ctx context.Context) (Item, error) {
	paths, err := b.Pending()
	if err != nil {
		return Item{}, err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return Item{}, err
		}
		rec, err := ReadRecord(p)
		if err != nil {
			if moveErr := b.move(p, FailedDir); moveErr != nil {
				return Item{}, errors.Join(err, moveErr)
			}
			continue
		}
		return Item{Path: p, Record: rec}, nil
	}
	return Item{}, ErrEmpty
}

// Done moves a reconciled record file to done/.
func (b *Inbox) Done(it Item) error {
	return b.move(it.Path, DoneDir)
}

func (b *Inbox) move(path, sub string) error {
	dst := filepath.Join(b.dir, sub)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", sub, err)
	}
	if err := os.Rename(path, filepath.Join(dst, filepath.Base(path))); err != nil {
		return fmt.Errorf("move %s to %s: %w", filepath.Base(path), sub, err)
	}
	return nil
}

func isRecordFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// ReadRecord parses one record file. JSON is read as YAML. A record
// without an id takes the file name.
func ReadRecord(path string) (ir.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ir.Record{}, fmt.Errorf("read record: %w", err)
	}
	rec, err := ParseRecord(data)
	if err != nil {
		return ir.Record{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if rec.ID == "" {
		rec.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return rec, nil
}

// ParseRecord decodes a YAML or JSON record and checks its signals.
func ParseRecord(data []byte) (ir.Record, error) {
	var rec ir.Record
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rec); err != nil {
		return ir.Record{}, fmt.Errorf("parse record: %w", err)
	}
	rec.ID = strings.TrimSpace(rec.ID)
	for _, s := range rec.Signals {
		if !s.Valid() {
			return ir.Record{}, fmt.Errorf("parse record: unknown signal %q", s)
		}
	}
	return rec, nil
}
