// Package ancvm is the embedding API for the engine: compile module
// images, link them into a program, and run threads of execution against
// it. It generalizes wazero's top-level Runtime/CompiledModule split
// (config.go, builder.go) to this engine's module format and linking
// model (SPEC_FULL.md §1).
package ancvm

import (
	"fmt"

	"github.com/ancvm/ancvm/internal/extcall"
	"github.com/ancvm/ancvm/internal/interpreter"
	"github.com/ancvm/ancvm/internal/link"
	"github.com/ancvm/ancvm/internal/memory"
	"github.com/ancvm/ancvm/internal/module"
)

// Runtime holds configuration shared across every program it compiles
// and links; it carries no per-program state itself (wazero's
// Runtime/RuntimeConfig split, config.go).
type Runtime struct {
	config *RuntimeConfig
}

// NewRuntime returns a Runtime governed by config. A nil config uses
// NewRuntimeConfig's defaults.
func NewRuntime(config *RuntimeConfig) *Runtime {
	if config == nil {
		config = NewRuntimeConfig()
	}
	return &Runtime{config: config}
}

// String reports the runtime's diagnostic code name and its image format
// version, e.g. "Selina 1.0" (SPEC_FULL.md §4 "Selina runtime code name").
func (r *Runtime) String() string {
	return fmt.Sprintf("%s %d.%d", module.RuntimeCodeName(), module.ImageFormatMajorVersion, module.ImageFormatMinorVersion)
}

// CompiledModule is a module image that has been decoded and validated
// (internal/module.Load) but not yet linked into a program.
type CompiledModule struct {
	name   string
	module *module.Module
}

// Name returns the name the module was compiled under (CompileModule's
// name argument).
func (c *CompiledModule) Name() string { return c.name }

// CompileModule decodes and validates a module image (spec.md §4.4),
// tagged with the program-source type configured on r (spec.md §6
// "Environment", SPEC_FULL.md §1.3). The returned CompiledModule is
// immutable and may be linked into any number of programs.
func (r *Runtime) CompileModule(image []byte, name string) (*CompiledModule, error) {
	r.config.logger.Debug().Str("module", name).Int("bytes", len(image)).Msg("compiling module")
	m, err := module.Load(image, name, r.config.sourceType)
	if err != nil {
		r.config.logger.Error().Err(err).Str("module", name).Msg("module load failed")
		return nil, fmt.Errorf("ancvm: compile %q: %w", name, err)
	}
	return &CompiledModule{name: name, module: m}, nil
}

// Program is a linked, runnable set of modules (spec.md §4.5): the
// unified link tables, the process-wide linear memory, and the external
// call gateway, shared by every thread context created against it. Each
// thread context builds its own bridge generator.
type Program struct {
	config   *RuntimeConfig
	tables   *link.Tables
	memory   *memory.Memory
	external *extcall.Gateway

	applicationIndex int
}

// Link resolves modules (in dependency order, with the entry-point
// module last) into a runnable Program. entryParams/entryResults must
// match the parameter/result counts the application module's entry
// function actually declares (spec.md §4.5 "entry function validation");
// Link fails if they don't, or if the module declares no entry function.
func (r *Runtime) Link(modules []*CompiledModule, entryParams, entryResults int) (*Program, error) {
	mods := make([]*module.Module, len(modules))
	for i, cm := range modules {
		mods[i] = cm.module
	}
	applicationIndex := len(mods) - 1

	tables, err := link.Build(mods, applicationIndex, entryParams, entryResults)
	if err != nil {
		r.config.logger.Error().Err(err).Msg("link failed")
		return nil, fmt.Errorf("ancvm: link: %w", err)
	}
	r.config.logger.Info().Int("modules", len(mods)).Msg("program linked")

	external := r.config.externalResolver
	var gateway *extcall.Gateway
	if external != nil {
		gateway = extcall.NewGatewayWithResolver(r.config.programDir, external)
	} else {
		gateway = extcall.NewGateway(r.config.programDir)
	}

	return &Program{
		config:           r.config,
		tables:           tables,
		memory:           memory.New(r.config.memoryInitialPages, r.config.memoryMaxPages),
		external:         gateway,
		applicationIndex: applicationIndex,
	}, nil
}

// NewThread creates a new thread context against the program (spec.md §5
// "Scheduling model": one per OS thread, not safe for concurrent use).
func (p *Program) NewThread() *interpreter.ThreadContext {
	floatPolicy := memory.FloatLoadPermissive
	if p.config.features&FeatureStrictFloatLoads != 0 {
		floatPolicy = memory.FloatLoadRejectSignaling
	}
	return interpreter.New(p.tables, p.memory, p.config.stackCapacityBytes, p.external, floatPolicy)
}

// RunEntry resolves the application module's declared entry function and
// runs it to completion on a fresh thread context (spec.md §4.5 "entry
// function"). Link guarantees the application module declares one.
func (p *Program) RunEntry(params []uint64) ([]uint64, error) {
	app := p.tables.Module(p.applicationIndex)
	tc := p.NewThread()
	results, err := tc.CallEntry(p.applicationIndex, app.EntryFunctionIndex, params)
	if err != nil {
		p.config.logger.Error().Err(err).Msg("entry function terminated abnormally")
	}
	return results, err
}
