package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// CacheInvalidator drops cached compatibility and theme data. *compat.Cache implements it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// AssetBumper bumps the cache-busting counter. *assets.Versioner implements it.
type AssetBumper interface {
	Bump(ctx context.Context) (int, error)
}

// Builtins holds what the built-in reactions act on.
type Builtins struct {
	Compat CacheInvalidator
	Assets AssetBumper
	Logger *log.Logger
}

// RegisterBuiltins wires the built-in reactions by component kind:
//   - theme: invalidate cached compatibility state
//   - framework: bump the asset cache-busting counter
//   - builder: clear the builder's own file cache when it has one
func RegisterBuiltins(d *Dispatcher, reg *schema.Registry, b Builtins) {
	logger := b.Logger
	if logger == nil {
		logger = d.logger
	}

	for _, desc := range reg.All() {
		switch desc.Kind {
		case schema.KindTheme:
			if b.Compat != nil {
				d.Register(desc.ID, "theme-cache", ThemeChanged(b.Compat))
			}
		case schema.KindFramework:
			if b.Assets != nil {
				d.Register(desc.ID, "asset-version", FrameworkChanged(b.Assets, logger))
			}
		case schema.KindBuilder:
			d.Register(desc.ID, "builder-cache", BuilderChanged(desc, logger))
		}
	}
}

// ThemeChanged invalidates cached compatibility state.
func ThemeChanged(c CacheInvalidator) Handler {
	return HandlerFunc(func(ctx context.Context, event schema.ChangeEvent) error {
		return c.Invalidate(ctx)
	})
}

// FrameworkChanged bumps the asset counter.
func FrameworkChanged(a AssetBumper, logger *log.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, event schema.ChangeEvent) error {
		n, err := a.Bump(ctx)
		if err != nil {
			return err
		}
		logger.Printf("Asset version bumped to %d after %s", n, event)
		return nil
	})
}

// BuilderChanged clears the page builder's file cache directory. The
// directory itself is kept; only its contents are removed. A builder with
// no cache directory configured, or whose directory does not exist, is
// treated as "cache API unavailable" and skipped.
func BuilderChanged(desc schema.Descriptor, logger *log.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, event schema.ChangeEvent) error {
		if desc.CacheDir == "" {
			logger.Printf("Builder %s has no cache directory, skipping cache clear", desc.ID)
			return nil
		}

		info, err := os.Stat(desc.CacheDir)
		if errors.Is(err, os.ErrNotExist) {
			logger.Printf("Builder %s cache %s not present, skipping cache clear", desc.ID, desc.CacheDir)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to stat builder cache: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("builder cache %s is not a directory", desc.CacheDir)
		}

		removed, err := clearDir(desc.CacheDir)
		if err != nil {
			return err
		}
		logger.Printf("Cleared %d cache entries for %s", removed, desc.ID)
		return nil
	})
}

func clearDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("failed to clear cache directory: %w", errors.Join(errs...))
	}
	return removed, nil
}
