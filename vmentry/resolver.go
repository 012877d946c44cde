// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vmentry // import "go.opentelemetry.io/jvmentry/vmentry"

import (
	"fmt"
	"io"
	"sync"

	"github.com/elastic/go-freelru"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/jvmentry/jvmti"
	"go.opentelemetry.io/jvmentry/libpf"
	"go.opentelemetry.io/jvmentry/libpf/pfelf"
	"go.opentelemetry.io/jvmentry/metrics"
	"go.opentelemetry.io/jvmentry/process"
	"go.opentelemetry.io/jvmentry/remotememory"
	"go.opentelemetry.io/jvmentry/successfailurecounter"
)

// Symbols looked up in libjvm.so.
const (
	AsyncGetCallTraceSymbol = "AsyncGetCallTrace"
	GetManagementSymbol     = "JVM_GetManagement"
	// VMMajorVersionSymbol is the demangled name of the static int holding
	// the VM major version.
	VMMajorVersionSymbol = "Abstract_VM_Version::_vm_major_version"
)

// SymbolTable is the symbol access a Library needs. *pfelf.File implements it.
type SymbolTable interface {
	LookupSymbolAddress(symbol libpf.SymbolName) (libpf.SymbolValue, error)
	LookupDemangled(name string) (*libpf.Symbol, error)
}

var _ SymbolTable = &pfelf.File{}

// Library is a shared object mapped into this process.
type Library struct {
	path    string
	bias    libpf.Address
	symbols SymbolTable
	mem     remotememory.RemoteMemory

	// cache holds resolved runtime addresses, 0 for missing symbols
	cache *freelru.SyncedLRU[libpf.SymbolName, libpf.Address]
}

// NewLibrary creates a Library whose symbols are relocated by bias. mem is
// used to read the library's data at runtime.
func NewLibrary(path string, bias libpf.Address, symbols SymbolTable,
	mem remotememory.RemoteMemory, cacheSize int) (*Library, error) {
	cache, err := freelru.NewSynced[libpf.SymbolName, libpf.Address](uint32(cacheSize),
		libpf.SymbolName.Hash32)
	if err != nil {
		return nil, err
	}
	return &Library{
		path:    path,
		bias:    bias,
		symbols: symbols,
		mem:     mem,
		cache:   cache,
	}, nil
}

// Path returns the file name of the library.
func (l *Library) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Bias returns the load bias of the library.
func (l *Library) Bias() libpf.Address {
	if l == nil {
		return 0
	}
	return l.bias
}

func (l *Library) cached(key libpf.SymbolName, lookup func() (libpf.SymbolValue, error)) libpf.Address {
	if l == nil {
		return 0
	}
	if addr, ok := l.cache.Get(key); ok {
		return addr
	}

	sfc := successfailurecounter.New(metrics.IDSymbolResolved, metrics.IDSymbolMissing)
	defer sfc.DefaultToFailure()

	var addr libpf.Address
	value, err := lookup()
	if err != nil {
		log.Debugf("Symbol %s not found in %s: %v", key, l.path, err)
	} else {
		addr = libpf.Address(value) + l.bias
		sfc.ReportSuccess()
	}
	l.cache.Add(key, addr)
	return addr
}

// Lookup returns the runtime address of an exported symbol, or 0.
func (l *Library) Lookup(symbol string) libpf.Address {
	name := libpf.SymbolName(symbol)
	return l.cached(name, func() (libpf.SymbolValue, error) {
		return l.symbols.LookupSymbolAddress(name)
	})
}

// LookupDemangled returns the runtime address of a C++ symbol given by its
// demangled name, or 0.
func (l *Library) LookupDemangled(name string) libpf.Address {
	// Demangled names contain "::" so they never collide with plain symbols.
	return l.cached(libpf.SymbolName(name), func() (libpf.SymbolValue, error) {
		sym, err := l.symbols.LookupDemangled(name)
		if err != nil {
			return libpf.SymbolValueInvalid, err
		}
		return sym.Address, nil
	})
}

// ReadUint32 reads the current value of a 32-bit variable of the library.
func (l *Library) ReadUint32(addr libpf.Address) (uint32, error) {
	if l == nil || !l.mem.Valid() {
		return 0, fmt.Errorf("no memory access for %s", l.Path())
	}
	return l.mem.Uint32Checked(addr)
}

// LibraryResolver finds libraries loaded into the process.
type LibraryResolver interface {
	// LibraryHandle returns the library whose base name starts with name,
	// or nil.
	LibraryHandle(name string) *Library
}

// Resolver resolves libraries from the mappings of the running process.
type Resolver struct {
	cacheSize int
	mappings  func() ([]process.Mapping, uint32, error)
	mem       remotememory.RemoteMemory

	mu    sync.Mutex
	libs  map[string]*Library
	files []io.Closer
}

var _ LibraryResolver = &Resolver{}

// NewResolver returns a Resolver for the calling process.
func NewResolver(cacheSize int) *Resolver {
	return &Resolver{
		cacheSize: cacheSize,
		mappings:  process.SelfMappings,
		mem:       remotememory.Self(),
		libs:      make(map[string]*Library),
	}
}

// OpenLibrary opens the ELF file behind mapping m and computes its load bias.
func OpenLibrary(m process.Mapping, mem remotememory.RemoteMemory,
	cacheSize int) (*Library, *pfelf.File, error) {
	ef, err := pfelf.Open(m.Path)
	if err != nil {
		return nil, nil, err
	}
	bias, err := ef.LoadBias(m.Vaddr, m.FileOffset)
	if err != nil {
		_ = ef.Close()
		return nil, nil, fmt.Errorf("%s: %w", m.Path, err)
	}
	lib, err := NewLibrary(m.Path, bias, ef, mem, cacheSize)
	if err != nil {
		_ = ef.Close()
		return nil, nil, err
	}
	return lib, ef, nil
}

// LibraryHandle implements LibraryResolver. Only found libraries are cached
// so a library loaded later can still be resolved.
func (r *Resolver) LibraryHandle(name string) *Library {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lib, ok := r.libs[name]; ok {
		return lib
	}
	mappings, numParseErrors, err := r.mappings()
	if err != nil {
		log.Warnf("Failed to read process mappings: %v", err)
		return nil
	}
	if numParseErrors > 0 {
		log.Debugf("Skipped %d unparsable mappings", numParseErrors)
	}
	m, ok := process.FindLibrary(mappings, name)
	if !ok {
		log.Debugf("Library %s is not loaded", name)
		return nil
	}
	lib, ef, err := OpenLibrary(m, r.mem, r.cacheSize)
	if err != nil {
		log.Warnf("Failed to open %s: %v", name, err)
		return nil
	}
	log.Debugf("Found %s at %s, bias %#x", name, lib.Path(), lib.Bias())
	r.libs[name] = lib
	r.files = append(r.files, ef)
	return lib
}

// Close releases the ELF files of all resolved libraries. Libraries handed
// out before remain usable for cached lookups only.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.files = nil
	return firstErr
}

// Binder turns resolved entry points into callables. A nil result means the
// entry point cannot be called and the feature stays disabled.
type Binder interface {
	BindCallTrace(addr libpf.Address) jvmti.CallTraceFunc
	BindGetManagement(addr libpf.Address) jvmti.GetManagementFunc
}

// unboundBinder is used when the embedding agent provides no Binder.
type unboundBinder struct{}

func (unboundBinder) BindCallTrace(addr libpf.Address) jvmti.CallTraceFunc {
	log.Infof("No binder for %s at %#x, capture disabled", AsyncGetCallTraceSymbol, addr)
	return nil
}

func (unboundBinder) BindGetManagement(addr libpf.Address) jvmti.GetManagementFunc {
	log.Infof("No binder for %s at %#x", GetManagementSymbol, addr)
	return nil
}
