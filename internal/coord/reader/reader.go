// Package reader implements the Version Snapshot Reader.
//
// A Reader asks every descriptor's VersionSource for its current version
// and builds a schema.Snapshot. Components that are not installed, or whose
// version cannot be read, are omitted: partial information beats blocking
// the whole pass. Read never fails.
package reader

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// Reader captures version snapshots.
type Reader struct {
	logger *log.Logger
	now    func() time.Time
}

// New creates a Reader. If logger is nil, a default logger writing to
// stderr is used.
func New(logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.New(os.Stderr, "[reader] ", log.LstdFlags)
	}
	return &Reader{logger: logger, now: time.Now}
}

// WithClock overrides the capture clock. Used by tests.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// Read produces a snapshot holding a version for every present component.
func (r *Reader) Read(ctx context.Context, descriptors []schema.Descriptor) schema.Snapshot {
	versions := make(map[string]string, len(descriptors))

	for _, d := range descriptors {
		v, err := r.readOne(ctx, d)
		if err != nil {
			switch {
			case schema.IsAbsent(err) && d.Required:
				r.logger.Printf("WARNING: required component %s not present (%s)", d.ID, d.Source.Describe())
			case !schema.IsAbsent(err):
				r.logger.Printf("WARNING: cannot read version of %s: %v", d.ID, err)
			}
			continue
		}
		versions[d.ID] = v
	}

	return schema.NewSnapshot(versions, r.now())
}

// readOne isolates a single source, including panics.
func (r *Reader) readOne(ctx context.Context, d schema.Descriptor) (v string, err error) {
	if d.Source == nil {
		return "", schema.ErrComponentAbsent
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("version source panicked: %v", p)
		}
	}()

	v, err = d.Source.Version(ctx)
	if err != nil {
		return "", err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", schema.ErrComponentAbsent
	}
	return v, nil
}

// WatchPaths returns the files that back file-based sources.
func WatchPaths(descriptors []schema.Descriptor) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, d := range descriptors {
		ps, ok := d.Source.(schema.PathSource)
		if !ok || ps.Path() == "" || seen[ps.Path()] {
			continue
		}
		seen[ps.Path()] = true
		paths = append(paths, ps.Path())
	}
	return paths
}
