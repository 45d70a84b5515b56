package ancvm

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/ancvm/ancvm/api"
	"github.com/ancvm/ancvm/internal/extcall"
)

// defaultStackCapacityBytes bounds a thread context's operand stack
// before a call sequence terminates with a stack-overflow code (spec.md
// §8 "Stack overflow").
const defaultStackCapacityBytes = 8 * 1024 * 1024

// defaultMemoryInitialPages/defaultMemoryMaxPages size the linear memory
// each linked program creates; module images carry no memory bounds.
const (
	defaultMemoryInitialPages = 16
	defaultMemoryMaxPages     = 4096
)

// Features is a bitmask of optional instruction-set behaviors
// RuntimeConfig can enable or disable (SPEC_FULL.md §1.3 "enabled
// instruction-set features").
type Features uint32

const (
	// FeatureStrictFloatLoads makes memory_load.f32/f64 terminate with
	// TerminateUnsupportedFloatingPointVariants when the loaded bits
	// encode a signalling NaN, instead of passing the bit pattern
	// through unchanged (spec.md §4.2 "float load validation policy").
	FeatureStrictFloatLoads Features = 1 << iota
)

// defaultFeatures matches this runtime's baseline float-load behavior.
const defaultFeatures = FeatureStrictFloatLoads

// RuntimeConfig controls Runtime behavior, following wazero's own
// clone-per-With builder shape (config.go's RuntimeConfig) so that a base
// config can be derived from safely without aliasing.
type RuntimeConfig struct {
	stackCapacityBytes int
	memoryInitialPages int
	memoryMaxPages     int
	programDir         string
	logger             zerolog.Logger
	features           Features
	sourceType         api.ProgramSourceType
	externalResolver   extcall.SymbolResolver
}

// NewRuntimeConfig returns the default configuration: an 8MiB operand
// stack per thread, a 16-page initial / 4096-page max linear memory, the
// current working directory as the external-library search root, a
// zerolog console logger writing to stderr, strict float loads enabled,
// a script-file program-source tag, and the real purego-backed external
// symbol resolver.
func NewRuntimeConfig() *RuntimeConfig {
	wd, _ := os.Getwd()
	return &RuntimeConfig{
		stackCapacityBytes: defaultStackCapacityBytes,
		memoryInitialPages: defaultMemoryInitialPages,
		memoryMaxPages:     defaultMemoryMaxPages,
		programDir:         wd,
		logger:             zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
		features:           defaultFeatures,
		sourceType:         api.ProgramSourceScriptFile,
	}
}

// clone ensures every field is copied even if the zero value, matching
// wazero's RuntimeConfig.clone.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	cp := *c
	return &cp
}

// WithStackCapacity sets the per-thread operand stack ceiling in bytes.
func (c *RuntimeConfig) WithStackCapacity(bytes int) *RuntimeConfig {
	ret := c.clone()
	ret.stackCapacityBytes = bytes
	return ret
}

// WithMemoryPages sets the initial and maximum linear memory size, in
// pages, of the linear memory each linked program creates.
func (c *RuntimeConfig) WithMemoryPages(initial, max int) *RuntimeConfig {
	ret := c.clone()
	ret.memoryInitialPages = initial
	ret.memoryMaxPages = max
	return ret
}

// WithProgramDir sets the directory ExternalLibraryFile references
// resolve relative to (spec.md §4.9, §6 "Environment").
func (c *RuntimeConfig) WithProgramDir(dir string) *RuntimeConfig {
	ret := c.clone()
	ret.programDir = dir
	return ret
}

// WithLogger overrides the structured logger used for module load, link,
// and termination diagnostics.
func (c *RuntimeConfig) WithLogger(logger zerolog.Logger) *RuntimeConfig {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithFeatures sets the enabled instruction-set features, replacing the
// default set entirely (pass FeatureStrictFloatLoads explicitly to keep
// it alongside any future flag).
func (c *RuntimeConfig) WithFeatures(f Features) *RuntimeConfig {
	ret := c.clone()
	ret.features = f
	return ret
}

// WithProgramSourceType sets the tag CompileModule records on every
// module it compiles, used to resolve relative external-library paths
// (spec.md §6 "Environment").
func (c *RuntimeConfig) WithProgramSourceType(t api.ProgramSourceType) *RuntimeConfig {
	ret := c.clone()
	ret.sourceType = t
	return ret
}

// WithExternalResolver overrides the external symbol resolver
// internal/extcall.Gateway uses to load native libraries and bind
// symbols, letting tests exercise C9/C10 without a real shared library
// on disk. A nil resolver uses the real purego-backed resolver.
func (c *RuntimeConfig) WithExternalResolver(resolver extcall.SymbolResolver) *RuntimeConfig {
	ret := c.clone()
	ret.externalResolver = resolver
	return ret
}
