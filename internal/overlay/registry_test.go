package overlay

import (
	"errors"
	"sync"
	"testing"

	"face-overlay/internal/logger"

	"gocv.io/x/gocv"
)

type countingLogger struct {
	logger.NoOpLogger
	mu       sync.Mutex
	errors   int
	warnings int
}

func (l *countingLogger) Error(component string, err error, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors++
}

func (l *countingLogger) Warning(component string, message string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings++
}

var errMissingAsset = errors.New("missing asset")

type fakeLoader struct {
	loads map[string]int
}

func (f *fakeLoader) load(path string) (gocv.Mat, error) {
	f.loads[path]++
	if path == "missing.png" {
		return gocv.NewMat(), errMissingAsset
	}
	return newAsset(20, 10, 0, 0, 0, 255), nil
}

func newTestRegistry(t *testing.T, glassesPath string, log logger.Logger) (*Registry, *fakeLoader) {
	t.Helper()
	loader := &fakeLoader{loads: make(map[string]int)}
	r, err := NewRegistry(DefaultDefinitions(glassesPath, "mustache.png"), loader.load, log)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(r.Shutdown)
	return r, loader
}

func filterNames(filters []Filter) []string {
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = f.Name()
	}
	return names
}

func TestRegistryBuildKeepsOrder(t *testing.T) {
	r, loader := newTestRegistry(t, "glasses.png", nil)

	got := filterNames(r.Build([]string{KindMustache, KindGlasses}))
	if len(got) != 2 || got[0] != KindMustache || got[1] != KindGlasses {
		t.Fatalf("got %v", got)
	}

	got = filterNames(r.Build([]string{KindGlasses, KindMustache}))
	if len(got) != 2 || got[0] != KindGlasses || got[1] != KindMustache {
		t.Fatalf("got %v", got)
	}

	if loader.loads["glasses.png"] != 1 || loader.loads["mustache.png"] != 1 {
		t.Fatalf("assets decoded more than once: %v", loader.loads)
	}
}

func TestRegistryEmptySelection(t *testing.T) {
	r, _ := newTestRegistry(t, "glasses.png", nil)

	if filters := r.Build(nil); len(filters) != 0 {
		t.Fatalf("expected no filters, got %v", filterNames(filters))
	}
}

func TestRegistrySkipsFailedAssetOnce(t *testing.T) {
	log := &countingLogger{}
	r, loader := newTestRegistry(t, "missing.png", log)

	failed := r.Preload()
	if !errors.Is(failed[KindGlasses], errMissingAsset) {
		t.Fatalf("preload failures = %v", failed)
	}
	if _, ok := failed[KindMustache]; ok {
		t.Fatal("mustache should have loaded")
	}

	for i := 0; i < 5; i++ {
		got := filterNames(r.Build([]string{KindGlasses, KindMustache}))
		if len(got) != 1 || got[0] != KindMustache {
			t.Fatalf("build %d: got %v", i, got)
		}
	}

	if loader.loads["missing.png"] != 1 {
		t.Fatalf("failed asset retried %d times", loader.loads["missing.png"])
	}
	if log.errors != 1 {
		t.Fatalf("failure logged %d times, want once", log.errors)
	}
	if !errors.Is(r.Err(KindGlasses), errMissingAsset) {
		t.Fatalf("Err = %v", r.Err(KindGlasses))
	}
}

func TestRegistryIgnoresUnknownKinds(t *testing.T) {
	log := &countingLogger{}
	r, _ := newTestRegistry(t, "glasses.png", log)

	for i := 0; i < 3; i++ {
		got := filterNames(r.Build([]string{"hat", KindGlasses}))
		if len(got) != 1 || got[0] != KindGlasses {
			t.Fatalf("got %v", got)
		}
	}
	if log.warnings != 1 {
		t.Fatalf("unknown kind warned %d times, want once", log.warnings)
	}
}

func TestRegistryRejectsDuplicateKinds(t *testing.T) {
	defs := []Definition{
		{Kind: KindGlasses, Geometry: GlassesGeometry, AssetPath: "a.png"},
		{Kind: KindGlasses, Geometry: GlassesGeometry, AssetPath: "b.png"},
	}
	if _, err := NewRegistry(defs, nil, nil); err == nil {
		t.Fatal("expected duplicate kind error")
	}
}

func TestRegistryKinds(t *testing.T) {
	r, _ := newTestRegistry(t, "glasses.png", nil)

	kinds := r.Kinds()
	if len(kinds) != 2 || kinds[0] != KindGlasses || kinds[1] != KindMustache {
		t.Fatalf("kinds = %v", kinds)
	}
}
