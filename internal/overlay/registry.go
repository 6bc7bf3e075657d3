package overlay

import (
	"fmt"
	"sync"

	"face-overlay/internal/logger"

	lru "github.com/hashicorp/golang-lru/v2"
	"gocv.io/x/gocv"
)

// Definition binds a filter kind to its geometry and asset file.
type Definition struct {
	Kind      string
	Geometry  Geometry
	AssetPath string
}

// DefaultDefinitions returns the built-in accessories for the given asset paths.
func DefaultDefinitions(glassesPath, mustachePath string) []Definition {
	return []Definition{
		{Kind: KindGlasses, Geometry: GlassesGeometry, AssetPath: glassesPath},
		{Kind: KindMustache, Geometry: MustacheGeometry, AssetPath: mustachePath},
	}
}

// AssetLoader decodes an asset file into a BGRA Mat.
type AssetLoader func(path string) (gocv.Mat, error)

// Registry rebuilds the active filter list from filter names. Decoded assets
// are cached by kind so toggling a filter never decodes twice, and a kind whose
// asset failed to load is refused from then on.
type Registry struct {
	mu     sync.Mutex
	defs   map[string]Definition
	kinds  []string
	assets *lru.Cache[string, gocv.Mat]
	failed map[string]error
	load   AssetLoader
	logger logger.Logger
}

func NewRegistry(defs []Definition, load AssetLoader, log logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	if load == nil {
		load = LoadAsset
	}

	r := &Registry{
		defs:   make(map[string]Definition, len(defs)),
		failed: make(map[string]error),
		load:   load,
		logger: log,
	}

	for _, def := range defs {
		if _, dup := r.defs[def.Kind]; dup {
			return nil, fmt.Errorf("duplicate filter kind %q", def.Kind)
		}
		r.defs[def.Kind] = def
		r.kinds = append(r.kinds, def.Kind)
	}

	// Sized to hold every kind: an eviction while a filter is in use would
	// close its asset mid-frame.
	size := len(defs)
	if size == 0 {
		size = 1
	}
	cache, err := lru.NewWithEvict[string, gocv.Mat](size, func(_ string, asset gocv.Mat) {
		asset.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("creating asset cache: %w", err)
	}
	r.assets = cache

	return r, nil
}

// Kinds lists the registered filter kinds in registration order.
func (r *Registry) Kinds() []string {
	return append([]string(nil), r.kinds...)
}

// Preload decodes every registered asset and reports the kinds that failed.
func (r *Registry) Preload() map[string]error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, kind := range r.kinds {
		r.assetLocked(kind)
	}
	failed := make(map[string]error, len(r.failed))
	for k, v := range r.failed {
		failed[k] = v
	}
	return failed
}

// Build returns filters for the enabled names in the given order. Unknown or
// failed kinds are skipped; each failure is logged only the first time.
func (r *Registry) Build(enabled []string) []Filter {
	r.mu.Lock()
	defer r.mu.Unlock()

	filters := make([]Filter, 0, len(enabled))
	for _, kind := range enabled {
		def, ok := r.defs[kind]
		if !ok {
			if _, seen := r.failed[kind]; !seen {
				r.failed[kind] = fmt.Errorf("unknown filter kind %q", kind)
				r.logger.Warning("FilterRegistry", "unknown filter kind ignored", map[string]interface{}{
					"kind": kind,
				})
			}
			continue
		}

		asset, ok := r.assetLocked(kind)
		if !ok {
			continue
		}
		filters = append(filters, NewAccessory(kind, def.Geometry, asset))
	}
	return filters
}

// Err returns the load error recorded for kind, if any.
func (r *Registry) Err(kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[kind]
}

func (r *Registry) assetLocked(kind string) (gocv.Mat, bool) {
	if asset, ok := r.assets.Get(kind); ok {
		return asset, true
	}
	if _, failed := r.failed[kind]; failed {
		return gocv.Mat{}, false
	}

	def := r.defs[kind]
	asset, err := r.load(def.AssetPath)
	if err != nil {
		r.failed[kind] = err
		r.logger.Error("FilterRegistry", err, map[string]interface{}{
			"kind": kind,
			"path": def.AssetPath,
		})
		return gocv.Mat{}, false
	}

	r.assets.Add(kind, asset)
	r.logger.Info("FilterRegistry", "asset loaded", map[string]interface{}{
		"kind":   kind,
		"width":  asset.Cols(),
		"height": asset.Rows(),
	})
	return asset, true
}

// Shutdown releases every cached asset.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets.Purge()
}
