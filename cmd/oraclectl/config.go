package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mshq-dev/oraclectl/internal/protocol"
)

const (
	defaultEndpoint = "wss://oracle.mshq.dev/ws"
	defaultOutput   = "out.rbxlx"
)

type cliConfig struct {
	input            string
	output           string
	endpoint         string
	key              string
	single           bool
	optionsPath      string
	redisAddr        string
	metricsAddr      string
	progressInterval time.Duration
}

func parseFlags(args []string, usageOut io.Writer) (cliConfig, error) {
	fs := flag.NewFlagSet("oraclectl", flag.ContinueOnError)
	fs.SetOutput(usageOut)

	var cfg cliConfig
	fs.StringVar(&cfg.output, "o", defaultOutput, "output path")
	fs.StringVar(&cfg.endpoint, "endpoint", defaultEndpoint, "oracle websocket endpoint")
	fs.StringVar(&cfg.key, "key", "", "API key (overrides ORACLE_KEY)")
	fs.BoolVar(&cfg.single, "single", false, "treat input as one bytecode unit instead of a document")
	fs.StringVar(&cfg.optionsPath, "options", "", "decompiler options file (TOML)")
	fs.StringVar(&cfg.redisAddr, "redis", "", "redis address for the result cache (overrides ORACLE_REDIS_ADDR)")
	fs.StringVar(&cfg.metricsAddr, "metrics", "", "listen address for prometheus metrics (disabled when empty)")
	fs.DurationVar(&cfg.progressInterval, "progress", time.Second, "progress report interval")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	if fs.NArg() != 1 {
		return cliConfig{}, errors.New("usage: oraclectl [flags] <input>")
	}
	cfg.input = fs.Arg(0)
	return cfg, nil
}

// optionsFile is the on-disk shape of an -options file. Undefined keys stay
// nil and are left to the server's defaults.
type optionsFile struct {
	Version int            `toml:"version"`
	Options optionsSection `toml:"options"`
}

type optionsSection struct {
	RenamingType                  *string `toml:"renaming_type"`
	RemoveDotZero                 *bool   `toml:"remove_dot_zero"`
	RemoveFunctionEntryNote       *bool   `toml:"remove_function_entry_note"`
	SwapConstantPosition          *bool   `toml:"swap_constant_position"`
	InlineWhileConditions         *bool   `toml:"inline_while_conditions"`
	ShowFunctionLineDefined       *bool   `toml:"show_function_line_defined"`
	RemoveUselessNumericForStep   *bool   `toml:"remove_useless_numeric_for_step"`
	RemoveUselessReturnInFunction *bool   `toml:"remove_useless_return_in_function"`
	SugarRecursiveLocalFunctions  *bool   `toml:"sugar_recursive_local_functions"`
	SugarLocalFunctions           *bool   `toml:"sugar_local_functions"`
	SugarGlobalFunctions          *bool   `toml:"sugar_global_functions"`
	SugarGenericFor               *bool   `toml:"sugar_generic_for"`
	ShowFunctionDebugName         *bool   `toml:"show_function_debug_name"`
	SugarRepeatLoops              *bool   `toml:"sugar_repeat_loops"`
	UpvalueComment                *bool   `toml:"upvalue_comment"`
}

// loadOptions parses an options file into the wire schema for its declared
// version. An empty path means no options message is sent.
func loadOptions(path string) (any, error) {
	if path == "" {
		return nil, nil
	}
	var file optionsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("options load failed (%s): %w", path, err)
	}
	switch file.Version {
	case 0, 1:
		opts := convertV1(file.Options)
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("options load failed (%s): %w", path, err)
		}
		return opts, nil
	case 2:
		return protocol.V2Options{}, nil
	default:
		return nil, fmt.Errorf("options load failed (%s): unsupported version %d", path, file.Version)
	}
}

func convertV1(s optionsSection) protocol.V1Options {
	opts := protocol.V1Options{
		RemoveDotZero:                 s.RemoveDotZero,
		RemoveFunctionEntryNote:       s.RemoveFunctionEntryNote,
		SwapConstantPosition:          s.SwapConstantPosition,
		InlineWhileConditions:         s.InlineWhileConditions,
		ShowFunctionLineDefined:       s.ShowFunctionLineDefined,
		RemoveUselessNumericForStep:   s.RemoveUselessNumericForStep,
		RemoveUselessReturnInFunction: s.RemoveUselessReturnInFunction,
		SugarRecursiveLocalFunctions:  s.SugarRecursiveLocalFunctions,
		SugarLocalFunctions:           s.SugarLocalFunctions,
		SugarGlobalFunctions:          s.SugarGlobalFunctions,
		SugarGenericFor:               s.SugarGenericFor,
		ShowFunctionDebugName:         s.ShowFunctionDebugName,
		SugarRepeatLoops:              s.SugarRepeatLoops,
		UpvalueComment:                s.UpvalueComment,
	}
	if s.RenamingType != nil {
		rt := protocol.RenamingType(*s.RenamingType)
		opts.RenamingType = &rt
	}
	return opts
}
