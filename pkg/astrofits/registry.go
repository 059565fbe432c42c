package astrofits

import (
	"fmt"
	"strings"
	"sync"
)

// SignatureTest reports whether a block header belongs to the registered
// variant.
type SignatureTest func(hdr *BlockHeader) bool

// Constructor builds an HDB from a block header. The payload is loaded
// separately by the orchestrator.
type Constructor func(hdr *BlockHeader) (HDB, error)

// Registry resolves block headers to HDB variants during load. Entries
// are tried in registration order; specific signatures must be registered
// before generic ones.
type Registry struct {
	mu      sync.RWMutex
	entries []registryEntry
}

type registryEntry struct {
	test SignatureTest
	ctor Constructor
}

// Register appends a signature/constructor pair.
func (r *Registry) Register(test SignatureTest, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registryEntry{test: test, ctor: ctor})
}

// Resolve constructs the HDB for a header. A header no registered test
// claims yields ErrUnknownBlockSignature.
func (r *Registry) Resolve(hdr *BlockHeader) (HDB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.test(hdr) {
			return e.ctor(hdr)
		}
	}
	name, _ := hdr.Str("XTENSION")
	return nil, fmt.Errorf("block type %q: %w", name, ErrUnknownBlockSignature)
}

func xtensionIs(hdr *BlockHeader, want string) bool {
	x, ok := hdr.Str("XTENSION")
	return ok && strings.TrimSpace(x) == want
}

func extNameIs(hdr *BlockHeader, want string) bool {
	n, ok := hdr.Str("EXTNAME")
	return ok && strings.EqualFold(strings.TrimSpace(n), want)
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the shared registry pre-loaded with the built-in
// variants: images, the two reserved catalog extensions, and generic
// ascii/binary tables.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := &Registry{}
		r.Register(func(hdr *BlockHeader) bool {
			return hdr.Has("SIMPLE") || xtensionIs(hdr, "IMAGE")
		}, imageHDBFromHeader)
		r.Register(func(hdr *BlockHeader) bool {
			return xtensionIs(hdr, "TABLE") && extNameIs(hdr, ExtNameAstrometry)
		}, astrometryFromHeader)
		r.Register(func(hdr *BlockHeader) bool {
			return xtensionIs(hdr, "BINTABLE") && extNameIs(hdr, ExtNamePhotometry)
		}, photometryFromHeader)
		r.Register(func(hdr *BlockHeader) bool {
			return xtensionIs(hdr, "TABLE")
		}, func(hdr *BlockHeader) (HDB, error) { return asciiTableFromHeader(hdr) })
		r.Register(func(hdr *BlockHeader) bool {
			return xtensionIs(hdr, "BINTABLE")
		}, func(hdr *BlockHeader) (HDB, error) { return binTableFromHeader(hdr) })
		defaultRegistry = r
	})
	return defaultRegistry
}
