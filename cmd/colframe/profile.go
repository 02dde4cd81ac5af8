package main

import (
	"context"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startProfiles starts CPU profiling and schedules the heap profile. Both
// are written during teardown, after the command's work.
func (a *app) startProfiles(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("cpuprofile"); path != "" {
		f, err := os.Create(path) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeIO, "failed to create CPU profile").WithDetail("path", path)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to start CPU profile")
		}
		a.logger.Debug("cpu profiling enabled", zap.String("path", path))
		a.shutdown = append(a.shutdown, func(context.Context) error {
			pprof.StopCPUProfile()
			if err := f.Close(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeIO, "failed to close CPU profile").WithDetail("path", path)
			}
			return nil
		})
	}

	if path, _ := cmd.Flags().GetString("memprofile"); path != "" {
		a.shutdown = append(a.shutdown, func(context.Context) error {
			return writeHeapProfile(path)
		})
	}
	return nil
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to create memory profile").WithDetail("path", path)
	}
	defer f.Close()

	runtime.GC() // up-to-date statistics
	if err := pprof.WriteHeapProfile(f); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write memory profile").WithDetail("path", path)
	}
	return nil
}
