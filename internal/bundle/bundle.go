// Package bundle keeps named snippets of environment code that evaluations
// can pull in by name. A request lists the bundles it needs; Compose joins
// them, in order, into the environment script for the engine.
package bundle

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// bundlePattern selects bundle files below a directory
const bundlePattern = "**/*.js"

// Polyfill is the name of the built-in browser globals bundle.
const Polyfill = "polyfill"

//go:embed polyfill.js
var polyfillCode string

var (
	ErrUnknownBundle = errors.New("unknown bundle")
	ErrInvalidName   = errors.New("invalid bundle name")
	ErrNotText       = errors.New("bundle is not a text file")
)

// Registry maps bundle names to source code
type Registry struct {
	mu      sync.RWMutex
	bundles map[string]string
	logger  *zap.Logger
}

// NewRegistry creates a registry holding the built-in bundles
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		bundles: map[string]string{Polyfill: polyfillCode},
		logger:  logger,
	}
}

// Register adds or replaces a bundle
func (r *Registry) Register(name, code string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, ", \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles[name] = code
	return nil
}

// Get returns a bundle's code
func (r *Registry) Get(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.bundles[name]
	return code, ok
}

// Names returns every registered bundle, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.bundles))
	for name := range r.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compose concatenates the named bundles in order. Repeated names are
// included once.
func (r *Registry) Compose(names ...string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		code, ok := r.bundles[name]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownBundle, name)
		}
		if sb.Len() > 0 {
			// Guards against a bundle that ends without a semicolon.
			sb.WriteString("\n;\n")
		}
		sb.WriteString(code)
	}
	return sb.String(), nil
}

// LoadDir registers every *.js file below dir, named by its slash-separated
// path relative to dir without the extension.
func (r *Registry) LoadDir(dir string) (int, error) {
	var (
		mu      sync.Mutex
		matches []string
	)

	// fastwalk calls walkFn from several goroutines
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(bundlePattern, rel); ok {
			mu.Lock()
			matches = append(matches, rel)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan bundles: %w", err)
	}

	return r.loadAll(os.DirFS(dir), matches)
}

// LoadFS registers every *.js file in fsys
func (r *Registry) LoadFS(fsys fs.FS) (int, error) {
	matches, err := doublestar.Glob(fsys, bundlePattern)
	if err != nil {
		return 0, fmt.Errorf("failed to scan bundles: %w", err)
	}
	return r.loadAll(fsys, matches)
}

func (r *Registry) loadAll(fsys fs.FS, matches []string) (int, error) {
	sort.Strings(matches)

	loaded := 0
	for _, match := range matches {
		data, err := fs.ReadFile(fsys, match)
		if err != nil {
			return loaded, fmt.Errorf("failed to read bundle %s: %w", match, err)
		}
		name := strings.TrimSuffix(match, path.Ext(match))
		if err := r.register(name, data); err != nil {
			r.logger.Warn("Skipping bundle", zap.String("file", match), zap.Error(err))
			continue
		}
		r.logger.Debug("Loaded bundle", zap.String("name", name), zap.Int("bytes", len(data)))
		loaded++
	}
	return loaded, nil
}

// register rejects files that sniff as binary before adding them
func (r *Registry) register(name string, data []byte) error {
	if mtype := mimetype.Detect(data); !strings.HasPrefix(mtype.String(), "text/") {
		return fmt.Errorf("%w: detected %s", ErrNotText, mtype.String())
	}
	return r.Register(name, string(data))
}
