// Package link assembles the per-process link tables (spec.md §4.5) that
// map a (module, public index) pair to a concrete (target module,
// internal index), and performs the load-time validation that backs
// those tables.
package link

import (
	"fmt"

	"github.com/ancvm/ancvm/ancerr"
	"github.com/ancvm/ancvm/internal/module"
)

// functionKey/dataKey are (module index, public index) lookup keys into
// the three unified tables; the external-function table is also keyed by
// functionKey (spec.md §3 "Link tables").
type functionKey struct{ module, publicIndex int }
type dataKey struct{ module, publicIndex int }

// FunctionTarget is what a function link resolves to.
type FunctionTarget struct {
	Module        int
	InternalIndex int
}

// DataTarget is what a data link resolves to.
type DataTarget struct {
	Module        int
	InternalIndex int
	Kind          byte // api.DataSectionKind of the resolved section
}

// ExternalTarget is what an external-function link resolves to: an index
// into the process-wide unified external-function table
// (Tables.UnifiedFunctions) built by linkExternals.
type ExternalTarget struct {
	UnifiedIndex int
	TypeIndex    uint32
}

// Tables holds the three unified link tables for one loaded program
// (spec.md §3 "Link tables (per-process, assembled once)").
type Tables struct {
	modules []*module.Module

	functions map[functionKey]FunctionTarget
	data      map[dataKey]DataTarget
	external  map[functionKey]ExternalTarget

	// unifiedLibraries deduplicates external libraries across modules by
	// (kind, value), and unifiedFunctions deduplicates external
	// functions by (unified library, symbol) — spec.md §4.9 "Unified
	// tables deduplicate external libraries and functions across
	// modules so each external library is loaded once".
	UnifiedLibraries []module.ExternalLibraryRef
	UnifiedFunctions []UnifiedExternalFunction
}

// UnifiedExternalFunction is one entry of the process-wide deduplicated
// external-function table.
type UnifiedExternalFunction struct {
	LibraryIndex int // index into Tables.UnifiedLibraries
	Symbol       string
	TypeIndex    uint32 // index into the owning module's type table
	OwnerModule  int    // module that declared the canonical type index
}

// Build validates and links a set of modules into one Tables (spec.md
// §4.5). When applicationIndex >= 0, modules[applicationIndex] is the
// application module; a negative applicationIndex skips the
// application-module checks.
func Build(modules []*module.Module, applicationIndex int, entryFunctionTypeParams, entryFunctionTypeResults int) (*Tables, error) {
	t := &Tables{
		modules:   modules,
		functions: map[functionKey]FunctionTarget{},
		data:      map[dataKey]DataTarget{},
		external:  map[functionKey]ExternalTarget{},
	}

	byName := make(map[string]int, len(modules))
	for i, m := range modules {
		byName[m.Name] = i
	}

	for mi, m := range modules {
		if err := t.linkFunctionImports(mi, m, byName); err != nil {
			return nil, err
		}
		if err := t.linkDataImports(mi, m, byName); err != nil {
			return nil, err
		}
		if err := t.linkExternals(mi, m); err != nil {
			return nil, err
		}
	}

	if applicationIndex >= 0 {
		app := modules[applicationIndex]
		if app.FormatMajor != module.ImageFormatMajorVersion || app.FormatMinor != module.ImageFormatMinorVersion {
			return nil, ancerr.NewLinkError(applicationIndex, -1,
				fmt.Sprintf("application module requires format version %d.%d, runtime is %d.%d",
					app.FormatMajor, app.FormatMinor, module.ImageFormatMajorVersion, module.ImageFormatMinorVersion))
		}
		if app.EntryFunctionIndex < 0 {
			return nil, ancerr.NewLinkError(applicationIndex, -1, "application module declares no entry function")
		}
		internal, ok := app.InternalFunctionIndex(app.EntryFunctionIndex)
		if !ok {
			return nil, ancerr.NewLinkError(applicationIndex, app.EntryFunctionIndex, "entry function index names an import, not a definition")
		}
		ft := app.FunctionTypeOf(internal)
		if len(ft.Params) != entryFunctionTypeParams || len(ft.Results) != entryFunctionTypeResults {
			return nil, ancerr.NewLinkError(applicationIndex, app.EntryFunctionIndex, "entry function has unexpected signature")
		}
	}

	return t, nil
}

func (t *Tables) linkFunctionImports(mi int, m *module.Module, byName map[string]int) error {
	for i, imp := range m.ImportedFunctions {
		targetModIdx, ok := byName[imp.ModuleName]
		if !ok {
			return ancerr.NewLinkError(mi, i, fmt.Sprintf("imported module %q not found", imp.ModuleName))
		}
		targetMod := t.modules[targetModIdx]
		internalIdx, typeIdx, ok := findExportedFunction(targetMod, imp.FunctionName)
		if !ok {
			return ancerr.NewLinkError(mi, i, fmt.Sprintf("function %q not exported by module %q", imp.FunctionName, imp.ModuleName))
		}
		if !targetMod.Types[typeIdx].Equal(m.Types[imp.TypeIndex]) {
			return ancerr.NewLinkError(mi, i, fmt.Sprintf("function %q type mismatch", imp.FunctionName))
		}
		t.functions[functionKey{mi, i}] = FunctionTarget{Module: targetModIdx, InternalIndex: internalIdx}
	}
	return nil
}

func (t *Tables) linkDataImports(mi int, m *module.Module, byName map[string]int) error {
	for i, imp := range m.ImportedData {
		targetModIdx, ok := byName[imp.ModuleName]
		if !ok {
			return ancerr.NewLinkError(mi, i, fmt.Sprintf("imported module %q not found", imp.ModuleName))
		}
		targetMod := t.modules[targetModIdx]
		ds := targetMod.DataSections[imp.Kind]
		if ds == nil {
			return ancerr.NewLinkError(mi, i, fmt.Sprintf("data %q not found in module %q", imp.DataName, imp.ModuleName))
		}
		// Exported data objects are named by declaration order; the
		// image format carries debug names outside the runtime core
		// (spec.md §1 Non-goals), so resolution here is by declared
		// export order within the section.
		internalIdx := i
		if internalIdx >= len(ds.Objects) {
			return ancerr.NewLinkError(mi, i, fmt.Sprintf("data %q index out of range in module %q", imp.DataName, imp.ModuleName))
		}
		t.data[dataKey{mi, i}] = DataTarget{Module: targetModIdx, InternalIndex: internalIdx, Kind: byte(imp.Kind)}
	}
	return nil
}

func (t *Tables) linkExternals(mi int, m *module.Module) error {
	for i, ext := range m.ExternalFunctions {
		if int(ext.LibraryIndex) >= len(m.ExternalLibraries) {
			return ancerr.NewLinkError(mi, i, "external function references unknown library")
		}
		if int(ext.TypeIndex) >= len(m.Types) {
			return ancerr.NewLinkError(mi, i, "external function references unknown type")
		}
		lib := *m.ExternalLibraries[ext.LibraryIndex]

		unifiedLibIdx := -1
		for j, existing := range t.UnifiedLibraries {
			if existing == lib {
				unifiedLibIdx = j
				break
			}
		}
		if unifiedLibIdx < 0 {
			unifiedLibIdx = len(t.UnifiedLibraries)
			t.UnifiedLibraries = append(t.UnifiedLibraries, lib)
		}

		unifiedFnIdx := -1
		for j, existing := range t.UnifiedFunctions {
			if existing.LibraryIndex == unifiedLibIdx && existing.Symbol == ext.Symbol {
				unifiedFnIdx = j
				break
			}
		}
		if unifiedFnIdx < 0 {
			unifiedFnIdx = len(t.UnifiedFunctions)
			t.UnifiedFunctions = append(t.UnifiedFunctions, UnifiedExternalFunction{
				LibraryIndex: unifiedLibIdx, Symbol: ext.Symbol, TypeIndex: ext.TypeIndex, OwnerModule: mi,
			})
		}

		t.external[functionKey{mi, i}] = ExternalTarget{UnifiedIndex: unifiedFnIdx, TypeIndex: ext.TypeIndex}
	}
	return nil
}

func findExportedFunction(m *module.Module, name string) (internalIndex int, typeIndex uint32, ok bool) {
	// Debug/export names live outside the runtime core (spec.md §1
	// Non-goals); the core addresses exports positionally by internal
	// function index, matching how the assembler/linker tooling
	// (out of scope here) would have already resolved the name.
	for i, fn := range m.Functions {
		if exportNameFor(m, i) == name {
			return i, fn.TypeIndex, true
		}
	}
	return 0, 0, false
}

// exportNameFor is a placeholder hook for the debug-name table that
// spec.md §1 explicitly places out of scope for the core; embedders that
// need name-based resolution supply it via module.Module.Name plus their
// own index convention. The core itself only requires index-based
// resolution, which ResolveFunction below provides directly.
func exportNameFor(m *module.Module, internalIndex int) string {
	return fmt.Sprintf("%s#%d", m.Name, internalIndex)
}

// ResolveFunction implements spec.md §4.5 resolve_function.
func (t *Tables) ResolveFunction(moduleIndex, publicIndex int) (FunctionTarget, error) {
	m := t.modules[moduleIndex]
	if m.IsImportedFunction(publicIndex) {
		target, ok := t.functions[functionKey{moduleIndex, publicIndex}]
		if !ok {
			return FunctionTarget{}, ancerr.NewLinkError(moduleIndex, publicIndex, "unresolved function import")
		}
		return target, nil
	}
	internal, ok := m.InternalFunctionIndex(publicIndex)
	if !ok {
		return FunctionTarget{}, ancerr.NewLinkError(moduleIndex, publicIndex, "function index out of range")
	}
	return FunctionTarget{Module: moduleIndex, InternalIndex: internal}, nil
}

// FunctionInfo implements spec.md §4.5 function_info.
func (t *Tables) FunctionInfo(targetModule, internalIndex int) (typeIndex, localListIndex uint32, codeOffset, localBytes uint32) {
	m := t.modules[targetModule]
	fn := m.Functions[internalIndex]
	lvl := m.LocalVariableLists[fn.LocalListIndex]
	return fn.TypeIndex, fn.LocalListIndex, fn.CodeOffset, lvl.TotalBytes
}

// ResolveData implements spec.md §4.5 resolve_data.
func (t *Tables) ResolveData(moduleIndex, publicIndex int, offset, length uint32) (DataTarget, *module.DataObject, error) {
	m := t.modules[moduleIndex]
	nImports := len(m.ImportedData)
	if publicIndex < nImports {
		target, ok := t.data[dataKey{moduleIndex, publicIndex}]
		if !ok {
			return DataTarget{}, nil, ancerr.NewLinkError(moduleIndex, publicIndex, "unresolved data import")
		}
		obj, err := boundsCheckedObject(t.modules[target.Module], byte(target.Kind), target.InternalIndex, offset, length)
		return target, obj, err
	}
	internal := publicIndex - nImports
	for kind := byte(0); kind < 3; kind++ {
		ds := m.DataSections[kind]
		if ds == nil {
			continue
		}
		if internal < len(ds.Objects) {
			obj, err := boundsCheckedObject(m, kind, internal, offset, length)
			return DataTarget{Module: moduleIndex, InternalIndex: internal, Kind: kind}, obj, err
		}
		internal -= len(ds.Objects)
	}
	return DataTarget{}, nil, ancerr.NewLinkError(moduleIndex, publicIndex, "data index out of range")
}

func boundsCheckedObject(m *module.Module, kind byte, internalIndex int, offset, length uint32) (*module.DataObject, error) {
	ds := m.DataSections[kind]
	if ds == nil || internalIndex >= len(ds.Objects) {
		return nil, ancerr.NewLinkError(0, internalIndex, "data object index out of range")
	}
	if _, _, ok := ds.Bounds(internalIndex, offset, length); !ok {
		return nil, ancerr.NewLinkError(0, internalIndex, "data access out of bounds")
	}
	obj := ds.Objects[internalIndex]
	return &obj, nil
}

// ResolveExternal implements spec.md §4.5 resolve_external.
func (t *Tables) ResolveExternal(moduleIndex, externalFunctionPublicIndex int) (ExternalTarget, error) {
	target, ok := t.external[functionKey{moduleIndex, externalFunctionPublicIndex}]
	if !ok {
		return ExternalTarget{}, ancerr.NewLinkError(moduleIndex, externalFunctionPublicIndex, "unresolved external function")
	}
	return target, nil
}

// Module returns the module at index i, for callers (the interpreter,
// bridge, extcall gateway) that need direct access to its sections.
func (t *Tables) Module(i int) *module.Module { return t.modules[i] }

// ModuleCount returns the number of modules participating in this program.
func (t *Tables) ModuleCount() int { return len(t.modules) }
