package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cdswerx/cdsync/internal/coord/reader"
	"github.com/cdswerx/cdsync/internal/coord/schema"
)

func event(id string) schema.ChangeEvent {
	v := "1.0.0"
	return schema.ChangeEvent{ComponentID: id, New: &v, Direction: schema.DirectionAdded}
}

func newTestDispatcher() (*Dispatcher, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(log.New(&buf, "", 0)), &buf
}

func TestDispatch_RegistrationOrder(t *testing.T) {
	d, _ := newTestDispatcher()
	var calls []string

	for _, name := range []string{"first", "second", "third"} {
		name := name
		d.Register("theme", name, HandlerFunc(func(ctx context.Context, e schema.ChangeEvent) error {
			calls = append(calls, name)
			return nil
		}))
	}

	if errs := d.Dispatch(context.Background(), event("theme")); len(errs) != 0 {
		t.Fatalf("Dispatch() errors = %v", errs)
	}
	if diff := cmp.Diff([]string{"first", "second", "third"}, calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"first", "second", "third"}, d.Handlers("theme")); diff != "" {
		t.Errorf("Handlers() mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatch_Fallback(t *testing.T) {
	d, buf := newTestDispatcher()

	if errs := d.Dispatch(context.Background(), event("unknown-plugin")); len(errs) != 0 {
		t.Fatalf("fallback returned errors: %v", errs)
	}
	if !strings.Contains(buf.String(), "no reaction: unknown-plugin") {
		t.Errorf("fallback did not log, logs:\n%s", buf.String())
	}

	var got string
	d.SetFallback(HandlerFunc(func(ctx context.Context, e schema.ChangeEvent) error {
		got = e.ComponentID
		return nil
	}))
	d.Dispatch(context.Background(), event("other"))
	if got != "other" {
		t.Errorf("custom fallback saw %q", got)
	}
}

func TestDispatch_IsolatesFailures(t *testing.T) {
	d, buf := newTestDispatcher()
	var ran []string

	d.Register("a", "errors", HandlerFunc(func(ctx context.Context, e schema.ChangeEvent) error {
		ran = append(ran, "a-errors")
		return errors.New("cache backend offline")
	}))
	d.Register("a", "panics", HandlerFunc(func(ctx context.Context, e schema.ChangeEvent) error {
		ran = append(ran, "a-panics")
		panic("nil map")
	}))
	d.Register("a", "after", HandlerFunc(func(ctx context.Context, e schema.ChangeEvent) error {
		ran = append(ran, "a-after")
		return nil
	}))
	d.Register("b", "ok", HandlerFunc(func(ctx context.Context, e schema.ChangeEvent) error {
		ran = append(ran, "b")
		return nil
	}))

	errs := d.DispatchAll(context.Background(), []schema.ChangeEvent{event("a"), event("b")})

	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
	if !errors.Is(errs[1], schema.ErrHandlerPanic) {
		t.Errorf("panic error = %v, want ErrHandlerPanic", errs[1])
	}
	if diff := cmp.Diff([]string{"a-errors", "a-panics", "a-after", "b"}, ran); diff != "" {
		t.Errorf("handlers run mismatch (-want +got):\n%s", diff)
	}
	if strings.Count(buf.String(), "WARNING: handler") != 2 {
		t.Errorf("expected 2 warnings, logs:\n%s", buf.String())
	}
}

func TestRegister_NilPanics(t *testing.T) {
	d, _ := newTestDispatcher()
	defer func() {
		if recover() == nil {
			t.Error("Register(nil) should panic")
		}
	}()
	d.Register("x", "nil", nil)
}

type fakeCache struct{ invalidated int }

func (f *fakeCache) Invalidate(ctx context.Context) error {
	f.invalidated++
	return nil
}

type fakeAssets struct{ n int }

func (f *fakeAssets) Bump(ctx context.Context) (int, error) {
	f.n++
	return f.n, nil
}

func TestRegisterBuiltins(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "elementor", "css")
	if err := os.MkdirAll(filepath.Join(cacheDir, "post-12"), 0755); err != nil {
		t.Fatalf("failed to create cache dir: %v", err)
	}
	for _, f := range []string{"global.css", "post-12/post.css"} {
		if err := os.WriteFile(filepath.Join(cacheDir, f), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to write cache file: %v", err)
		}
	}

	reg, err := schema.NewRegistry(
		schema.Descriptor{ID: "cdswerx-theme", Kind: schema.KindTheme, Source: reader.Constant("1")},
		schema.Descriptor{ID: "uikit", Kind: schema.KindFramework, Source: reader.Constant("1")},
		schema.Descriptor{ID: "elementor", Kind: schema.KindBuilder, CacheDir: cacheDir, Source: reader.Constant("1")},
		schema.Descriptor{ID: "divi", Kind: schema.KindBuilder, Source: reader.Constant("1")},
		schema.Descriptor{ID: "cdswerx", Kind: schema.KindPlugin, Source: reader.Constant("1")},
	)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	d, _ := newTestDispatcher()
	cache, bumper := &fakeCache{}, &fakeAssets{}
	RegisterBuiltins(d, reg, Builtins{Compat: cache, Assets: bumper})

	if d.HasHandler("cdswerx") {
		t.Error("plugin should use the fallback")
	}

	ctx := context.Background()
	for _, id := range []string{"cdswerx-theme", "uikit", "uikit", "elementor", "divi", "cdswerx"} {
		if errs := d.Dispatch(ctx, event(id)); len(errs) != 0 {
			t.Errorf("Dispatch(%s) errors = %v", id, errs)
		}
	}

	if cache.invalidated != 1 {
		t.Errorf("cache invalidated %d times, want 1", cache.invalidated)
	}
	if bumper.n != 2 {
		t.Errorf("asset counter = %d, want 2", bumper.n)
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatalf("cache dir should still exist: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("cache dir has %d entries after clear", len(entries))
	}
}

func TestBuilderChanged_MissingCacheDir(t *testing.T) {
	d, buf := newTestDispatcher()
	desc := schema.Descriptor{ID: "beaver", Kind: schema.KindBuilder, CacheDir: filepath.Join(t.TempDir(), "gone")}
	d.Register(desc.ID, "builder-cache", BuilderChanged(desc, d.logger))

	if errs := d.Dispatch(context.Background(), event("beaver")); len(errs) != 0 {
		t.Errorf("missing cache dir should not fail: %v", errs)
	}
	if !strings.Contains(buf.String(), "not present") {
		t.Errorf("expected skip message, logs:\n%s", buf.String())
	}
}
