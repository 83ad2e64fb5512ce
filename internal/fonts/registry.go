package fonts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Fallback is the family used when a requested family is not registered.
const Fallback = "Go"

// Font is a parsed TrueType face source.
type Font struct {
	Family string
	Bold   bool
	TTF    []byte
	parsed *truetype.Font
}

// Key identifies the face for PDF registration.
func (f *Font) Key() string {
	if f.Bold {
		return f.Family + "-Bold"
	}
	return f.Family
}

type fontKey struct {
	family string
	bold   bool
}

// Registry maps font families to TTF data shared by the raster and PDF renderers.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	fonts map[fontKey]*Font
}

// NewRegistry returns a registry preloaded with the Go fonts as fallback.
func NewRegistry() *Registry {
	r := &Registry{fonts: map[fontKey]*Font{}}
	if err := r.Register(Fallback, false, goregular.TTF); err != nil {
		panic(err)
	}
	if err := r.Register(Fallback, true, gobold.TTF); err != nil {
		panic(err)
	}
	return r
}

// Register parses and stores a TTF for family.
func (r *Registry) Register(family string, bold bool, ttf []byte) error {
	family = strings.TrimSpace(family)
	if family == "" {
		return fmt.Errorf("register font: family is required")
	}
	parsed, err := truetype.Parse(ttf)
	if err != nil {
		return fmt.Errorf("parse font %q: %w", family, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fonts[fontKey{family: strings.ToLower(family), bold: bold}] = &Font{
		Family: family,
		Bold:   bold,
		TTF:    ttf,
		parsed: parsed,
	}
	return nil
}

// LoadDir registers every .ttf in dir. "Inter-Bold.ttf" registers the bold face of "Inter";
// "Inter.ttf" and "Inter-Regular.ttf" register the regular face.
func (r *Registry) LoadDir(dir string, logger *slog.Logger) (int, error) {
	if strings.TrimSpace(dir) == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read font dir %q: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".ttf") {
			continue
		}
		family, bold := parseFontFileName(entry.Name())
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, fmt.Errorf("read font %q: %w", entry.Name(), err)
		}
		if err := r.Register(family, bold, data); err != nil {
			if logger != nil {
				logger.Warn("skip unreadable font", slog.String("file", entry.Name()), slog.Any("error", err))
			}
			continue
		}
		loaded++
	}
	return loaded, nil
}

func parseFontFileName(name string) (family string, bold bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	family = base
	if i := strings.LastIndex(base, "-"); i > 0 {
		suffix := strings.ToLower(base[i+1:])
		switch suffix {
		case "bold":
			return base[:i], true
		case "regular":
			return base[:i], false
		}
	}
	return family, false
}

// Lookup returns the font for family and weight, falling back to the regular face of the
// same family and then to the Go fonts.
func (r *Registry) Lookup(family string, bold bool) *Font {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(family))
	if f, ok := r.fonts[fontKey{family: key, bold: bold}]; ok {
		return f
	}
	if bold {
		if f, ok := r.fonts[fontKey{family: key}]; ok {
			return f
		}
	}
	return r.fonts[fontKey{family: strings.ToLower(Fallback), bold: bold}]
}

// Face builds a font face at size points and 72 dpi, so size equals pixels.
func (r *Registry) Face(family string, bold bool, size float64) font.Face {
	f := r.Lookup(family, bold)
	return truetype.NewFace(f.parsed, &truetype.Options{Size: size, Hinting: font.HintingFull})
}

// Families lists registered families.
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]struct{}{}
	var out []string
	for _, f := range r.fonts {
		if _, ok := seen[f.Family]; ok {
			continue
		}
		seen[f.Family] = struct{}{}
		out = append(out, f.Family)
	}
	sort.Strings(out)
	return out
}
