package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/gridcalc/internal/engine"
	"github.com/roach88/gridcalc/internal/facade"
	"github.com/roach88/gridcalc/internal/ir"
	"github.com/roach88/gridcalc/internal/store"
)

// workbookExts are the extensions collected when a directory is given.
var workbookExts = []string{".json", ".yaml", ".yml"}

// loadDescription reads and validates a workbook description file. A
// missing file is a command error; a schema violation is a failure.
func loadDescription(path string) (*ir.Workbook, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "workbook not found", err)
	}
	desc, err := ir.LoadFile(path)
	if err != nil {
		var se *ir.SchemaError
		if errors.As(err, &se) {
			return nil, WrapExitError(ExitFailure, path, err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to load workbook", err)
	}
	return desc, nil
}

// openWorkbook loads path and builds it. With async set the build runs in
// time slices and logs its progress at debug level.
func openWorkbook(ctx context.Context, opts *RootOptions, path string, async bool) (*facade.Workbook, error) {
	desc, err := loadDescription(path)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger()
	fopts := []facade.Option{facade.WithLogger(logger)}
	var wb *facade.Workbook
	if async {
		wb, err = facade.NewAsync(ctx, desc, func(p engine.Progress) {
			logger.Debug("build progress", "stage", p.Stage, "done", p.NumComplete, "total", p.NumTotal)
		}, fopts...)
	} else {
		wb, err = facade.New(desc, fopts...)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build workbook", err)
	}
	logger.Debug("workbook built", "workbook", wb.Name(), "cells", desc.CellCount(),
		"build_errors", len(wb.BuildErrors()), "warnings", len(wb.Warnings()))
	return wb, nil
}

// openStore opens the snapshot database at path.
func openStore(path string) (store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// findWorkbookFiles expands the given paths: files are kept as given and
// directories are walked for workbook files. The result is sorted.
func findWorkbookFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("path not found: %s", p), err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if slices.Contains(workbookExts, strings.ToLower(filepath.Ext(path))) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to scan %s", p), err)
		}
	}
	slices.Sort(files)
	return files, nil
}
