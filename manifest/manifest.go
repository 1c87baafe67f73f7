// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// LoaderFile is the manifest file name.
	LoaderFile = "Loader.cmd"

	// MaxSourceSize caps a single source file named directly or from a
	// Loader.cmd.
	MaxSourceSize = 100 * 1024

	// ResetArgument clears the device's Lua state.
	ResetArgument = "-r"

	// EvalPrefix introduces an inline chunk: "eval:print(1)".
	EvalPrefix = "eval:"
)

// ErrManifest reports an argument, Loader.cmd or archive that cannot be
// turned into a plan.
var ErrManifest = errors.New("manifest: invalid manifest")

// Loader is what a plan drives. *router.Router satisfies it.
type Loader interface {
	Load(ctx context.Context, name, source string) error
	Reset(ctx context.Context) error
}

// Evaluator runs inline chunks. *router.Router satisfies it.
type Evaluator interface {
	Eval(ctx context.Context, source string) error
}

// StepKind is the request a Step makes.
type StepKind int

const (
	StepReset StepKind = iota + 1
	StepLoad
	StepEval
)

// Step is one device request.
type Step struct {
	Kind StepKind
	// Name is the module name of a load.
	Name string
	// Source is the Lua text of a load or eval.
	Source string
	// Origin says where the step came from, for messages.
	Origin string
}

func (s Step) String() string {
	switch s.Kind {
	case StepReset:
		return "reset"
	case StepLoad:
		return fmt.Sprintf("load %s (%s, %d bytes)", s.Name, s.Origin, len(s.Source))
	case StepEval:
		return fmt.Sprintf("eval %q", s.Source)
	default:
		return fmt.Sprintf("StepKind(%d)", int(s.Kind))
	}
}

// Plan is an ordered list of steps.
type Plan []Step

// Run executes the plan in order and stops at the first failure. If
// progress is non-nil it is called before each step. Eval steps need a
// loader that also implements Evaluator.
func (p Plan) Run(ctx context.Context, loader Loader, progress func(Step)) error {
	for _, step := range p {
		if progress != nil {
			progress(step)
		}
		var err error
		switch step.Kind {
		case StepReset:
			err = loader.Reset(ctx)
		case StepLoad:
			err = loader.Load(ctx, step.Name, step.Source)
		case StepEval:
			evaluator, ok := loader.(Evaluator)
			if !ok {
				return fmt.Errorf("%w: %T cannot evaluate chunks", ErrManifest, loader)
			}
			err = evaluator.Eval(ctx, step.Source)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
	}
	return nil
}

// ParseArgs builds a plan from the gateway's positional arguments after
// the device path: "-r", "eval:<code>", and load arguments whose
// extension is .lua, .cmd, .luaz or .zip.
func ParseArgs(args []string) (Plan, error) {
	var plan Plan
	for _, arg := range args {
		switch {
		case arg == ResetArgument:
			plan = append(plan, Step{Kind: StepReset, Origin: arg})
		case strings.HasPrefix(arg, EvalPrefix):
			plan = append(plan, Step{Kind: StepEval, Source: strings.TrimPrefix(arg, EvalPrefix), Origin: arg})
		default:
			_, path := SplitName(arg)
			switch filepath.Ext(path) {
			case ".lua", ".cmd", ".luaz", ".zip":
			default:
				return nil, fmt.Errorf("%w: bad argument %q", ErrManifest, arg)
			}
			steps, err := Resolve(arg)
			if err != nil {
				return nil, err
			}
			plan = append(plan, steps...)
		}
	}
	return plan, nil
}

// Resolve reads one load argument. Archives and Loader.cmd files are
// recognized by extension; anything else is a single source file.
func Resolve(arg string) (Plan, error) {
	switch filepath.Ext(arg) {
	case ".zip", ".luaz":
		return ResolveArchive(arg)
	case ".cmd":
		return ResolveCommandFile(arg)
	}
	name, path := SplitName(arg)
	source, err := ReadSource(path)
	if err != nil {
		return nil, err
	}
	return Plan{{Kind: StepLoad, Name: name, Source: source, Origin: path}}, nil
}

// explicitName matches a "name=" prefix. The name must be a Lua
// identifier.
var explicitName = regexp.MustCompile(`^([_a-zA-Z][_a-zA-Z0-9]*)=(.+)$`)

// SplitName separates "name=path" into its parts. Without an explicit
// name, the module name is the file's base name without extension.
func SplitName(arg string) (name, path string) {
	if match := explicitName.FindStringSubmatch(arg); match != nil {
		return match[1], match[2]
	}
	base := filepath.Base(arg)
	return strings.TrimSuffix(base, filepath.Ext(base)), arg
}

// ReadSource reads a Lua source file of at most MaxSourceSize bytes.
func ReadSource(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrManifest, err)
	}
	defer file.Close()
	return readLimited(file, path, MaxSourceSize)
}

func readLimited(reader io.Reader, path string, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %w", ErrManifest, path, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: %s is larger than %d bytes", ErrManifest, path, limit)
	}
	return string(data), nil
}

// ParseLoaderCommand returns the entries of a Loader.cmd: one per
// non-blank line, surrounding whitespace trimmed.
func ParseLoaderCommand(reader io.Reader) ([]string, error) {
	var entries []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrManifest, LoaderFile, err)
	}
	return entries, nil
}

// ResolveCommandFile reads a Loader.cmd and every source it lists.
func ResolveCommandFile(path string) (Plan, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	entries, err := ParseLoaderCommand(file)
	file.Close()
	if err != nil {
		return nil, err
	}

	directory := filepath.Dir(path)
	plan := make(Plan, 0, len(entries))
	for _, entry := range entries {
		name, relative := SplitName(entry)
		sourcePath := filepath.Join(directory, relative)
		source, err := ReadSource(sourcePath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		plan = append(plan, Step{Kind: StepLoad, Name: name, Source: source, Origin: sourcePath})
	}
	return plan, nil
}
