// Command ancvm loads and runs a module image against a single-module
// program, following wazero's cmd/wazero CLI shape generalized to this
// engine's image format (spec.md §8 end-to-end usage).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/ancvm/ancvm"
	"github.com/ancvm/ancvm/ancerr"
	"github.com/ancvm/ancvm/api"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("ancvm", pflag.ContinueOnError)
	entryParams := flags.Int("entry-params", 0, "parameter count the entry function must declare")
	entryResults := flags.Int("entry-results", 0, "result count the entry function must declare")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	stackKiB := flags.Int("stack-kib", 8192, "per-thread operand stack size, in KiB")
	packageImage := flags.Bool("package-image", false, "treat the module as a compiled package image rather than a script file")

	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ancvm [flags] <module-image>")
		return 2
	}
	path := flags.Arg(0)

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	image, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("failed to read module image")
		return 1
	}

	sourceType := api.ProgramSourceScriptFile
	if *packageImage {
		sourceType = api.ProgramSourcePackageImage
	}

	config := ancvm.NewRuntimeConfig().
		WithLogger(logger).
		WithProgramDir(filepath.Dir(path)).
		WithStackCapacity(*stackKiB * 1024).
		WithProgramSourceType(sourceType)

	rt := ancvm.NewRuntime(config)
	name := filepath.Base(path)
	compiled, err := rt.CompileModule(image, name)
	if err != nil {
		logger.Error().Err(err).Msg("compile failed")
		return 1
	}

	program, err := rt.Link([]*ancvm.CompiledModule{compiled}, *entryParams, *entryResults)
	if err != nil {
		logger.Error().Err(err).Msg("link failed")
		return 1
	}

	if _, err := program.RunEntry(nil); err != nil {
		logger.Error().Err(err).Msg("execution terminated")
		if te, ok := err.(*ancerr.TerminateError); ok {
			return int(te.Code)
		}
		return 1
	}
	return 0
}
