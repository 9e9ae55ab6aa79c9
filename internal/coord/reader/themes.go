package reader

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// ThemeStylesheet is the metadata file every theme directory carries.
const ThemeStylesheet = "style.css"

// DiscoverThemes builds a theme descriptor for every directory under
// themesDir that has a style.css. The directory name is the theme id.
// Native theme ids are marked Native. A missing themesDir yields no themes.
//
// A directory whose name is not a usable component id, or that collides
// with an earlier one after lowercasing, is logged and skipped. If logger
// is nil, a default logger writing to stderr is used.
func DiscoverThemes(themesDir string, nativeIDs []string, logger *log.Logger) ([]schema.Descriptor, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[reader] ", log.LstdFlags)
	}

	entries, err := os.ReadDir(themesDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read themes directory: %w", err)
	}

	native := make(map[string]bool, len(nativeIDs))
	for _, id := range nativeIDs {
		native[id] = true
	}

	var themes []schema.Descriptor
	seen := make(map[string]bool)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := strings.ToLower(entry.Name())
		stylesheet := filepath.Join(themesDir, entry.Name(), ThemeStylesheet)

		headers, err := ReadHeaders(stylesheet)
		if err != nil {
			// Not a theme directory
			continue
		}

		d := schema.Descriptor{
			ID:          id,
			Name:        headers["theme name"],
			Kind:        schema.KindTheme,
			Native:      native[id],
			ParentTheme: strings.ToLower(headers["template"]),
			Source:      Header{File: stylesheet},
		}
		if err := d.Validate(); err != nil {
			logger.Printf("WARNING: skipping theme directory %q: %v", entry.Name(), err)
			continue
		}
		if seen[id] {
			logger.Printf("WARNING: skipping theme directory %q: id %s already discovered", entry.Name(), id)
			continue
		}
		seen[id] = true
		themes = append(themes, d)
	}

	sort.Slice(themes, func(i, j int) bool { return themes[i].ID < themes[j].ID })
	return themes, nil
}
