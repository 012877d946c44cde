// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// package pfelf implements the ELF access needed to resolve entry points of
// shared libraries mapped into this process. It is a thin layer over the
// golang debug/elf standard library adding lazy symbol maps, demangled
// lookups and load bias calculation.
package pfelf // import "go.opentelemetry.io/jvmentry/libpf/pfelf"

import (
	"debug/elf"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ianlancetaylor/demangle"

	"go.opentelemetry.io/jvmentry/libpf"
)

// ErrSymbolNotFound is returned when requested symbol was not found
var ErrSymbolNotFound = errors.New("symbol not found")

var errFileClosed = errors.New("ELF file closed")

// File represents an open ELF file
type File struct {
	elfFile *elf.File

	// symbolsOnce guards the lazy load of symbols
	symbolsOnce sync.Once
	symbols     map[libpf.SymbolName]libpf.Symbol
	symbolsErr  error
}

// Open opens the named file using os.Open and prepares it for use as an ELF binary.
func Open(name string) (*File, error) {
	ef, err := elf.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF %s: %w", name, err)
	}
	return &File{elfFile: ef}, nil
}

// Close closes the File.
func (f *File) Close() error {
	if f.elfFile == nil {
		return nil
	}
	err := f.elfFile.Close()
	f.elfFile = nil
	return err
}

// Type returns the ELF file type (ET_EXEC, ET_DYN, ...).
func (f *File) Type() elf.Type {
	return f.elfFile.Type
}

// loadSymbols reads .dynsym and .symtab. Dynamic symbols take precedence as
// they are the exported entry points; .symtab is usually stripped from
// distribution builds of libjvm.so.
func (f *File) loadSymbols() {
	f.symbols = make(map[libpf.SymbolName]libpf.Symbol)
	if f.elfFile == nil {
		f.symbolsErr = errFileClosed
		return
	}

	dynsyms, dynErr := f.elfFile.DynamicSymbols()
	syms, symErr := f.elfFile.Symbols()
	if dynErr != nil && symErr != nil {
		f.symbolsErr = fmt.Errorf("no symbol tables: %v, %v", dynErr, symErr)
		return
	}
	for _, tab := range [][]elf.Symbol{syms, dynsyms} {
		for _, s := range tab {
			if s.Name == "" || s.Section == elf.SHN_UNDEF {
				continue
			}
			f.symbols[libpf.SymbolName(s.Name)] = libpf.Symbol{
				Name:    libpf.SymbolName(s.Name),
				Address: libpf.SymbolValue(s.Value),
				Size:    s.Size,
			}
		}
	}
}

// LookupSymbol searches for a given defined symbol in the ELF
func (f *File) LookupSymbol(symbol libpf.SymbolName) (*libpf.Symbol, error) {
	f.symbolsOnce.Do(f.loadSymbols)
	if f.symbolsErr != nil {
		return nil, f.symbolsErr
	}
	if s, ok := f.symbols[symbol]; ok {
		return &s, nil
	}
	return nil, ErrSymbolNotFound
}

// LookupSymbolAddress returns the unrelocated address of a symbol.
func (f *File) LookupSymbolAddress(symbol libpf.SymbolName) (libpf.SymbolValue, error) {
	s, err := f.LookupSymbol(symbol)
	if err != nil {
		return libpf.SymbolValueInvalid, err
	}
	return s.Address, nil
}

// LookupDemangled searches for a C++ symbol by its demangled name, for
// example "Abstract_VM_Version::_vm_major_version". Parameter lists are not
// part of the comparison.
func (f *File) LookupDemangled(name string) (*libpf.Symbol, error) {
	f.symbolsOnce.Do(f.loadSymbols)
	if f.symbolsErr != nil {
		return nil, f.symbolsErr
	}
	for mangled, s := range f.symbols {
		if !strings.HasPrefix(string(mangled), "_Z") {
			continue
		}
		demangled, err := demangle.ToString(string(mangled), demangle.NoParams)
		if err != nil {
			continue
		}
		if demangled == name {
			return &s, nil
		}
	}
	return nil, ErrSymbolNotFound
}

// LoadBias returns the difference between the runtime and the link time
// addresses, given one mapping of the file at vaddr with file offset.
func (f *File) LoadBias(vaddr, fileOffset uint64) (libpf.Address, error) {
	for _, p := range f.elfFile.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if fileOffset >= p.Off && fileOffset < p.Off+p.Filesz {
			return libpf.Address(vaddr - fileOffset - (p.Vaddr - p.Off)), nil
		}
	}
	return 0, fmt.Errorf("no PT_LOAD segment covers file offset %#x", fileOffset)
}

// ReadUint32 reads the initial value stored at the unrelocated address addr
// from the file image. Addresses in the zero filled tail of a segment read
// as zero.
func (f *File) ReadUint32(addr libpf.SymbolValue) (uint32, error) {
	vaddr := uint64(addr)
	for _, p := range f.elfFile.Progs {
		if p.Type != elf.PT_LOAD || vaddr < p.Vaddr || vaddr+4 > p.Vaddr+p.Memsz {
			continue
		}
		if vaddr+4 > p.Vaddr+p.Filesz {
			return 0, nil
		}
		var buf [4]byte
		if _, err := p.ReadAt(buf[:], int64(vaddr-p.Vaddr)); err != nil {
			return 0, err
		}
		return f.elfFile.ByteOrder.Uint32(buf[:]), nil
	}
	return 0, fmt.Errorf("address %#x not in any PT_LOAD segment", vaddr)
}
