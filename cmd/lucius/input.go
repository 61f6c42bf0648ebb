package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dozer-project/lucius/runtime"
	"github.com/dozer-project/lucius/runtime/planner"
)

const stdinName = "<stdin>"

// errNoPipeline is returned when neither an argument, --pipeline nor the
// config file names a pipeline.
var errNoPipeline = errors.New("no pipeline given: pass a path, --pipeline or set `pipeline` in the config file")

// pipelinePath picks the pipeline from the first positional argument, then
// --pipeline or the config file.
func (a *app) pipelinePath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if a.cfg.Pipeline != "" {
		return a.cfg.Pipeline, nil
	}
	return "", errNoPipeline
}

// readSource reads a pipeline file, or stdin for "-".
func (a *app) readSource(path string) ([]byte, string, error) {
	if path == "-" {
		src, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, "", fmt.Errorf("read stdin: %w", err)
		}
		return src, stdinName, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("error opening file %s: %w", path, err)
	}
	return src, filepath.Base(path), nil
}

// compile reads and compiles the pipeline at path.
func (a *app) compile(path string) (*planner.Plan, string, error) {
	src, name, err := a.readSource(path)
	if err != nil {
		return nil, "", err
	}
	plan, err := runtime.CompileBytes(src,
		runtime.WithSourceName(name),
		runtime.WithLogger(a.logger.With("pipeline", name)))
	if err != nil {
		return nil, name, err
	}
	return plan, name, nil
}
