package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(*cobra.Command) error {
		fmt.Fprintf(a.out, "colframe v%s\n", version)
		fmt.Fprintf(a.out, "Go version: %s\n", runtime.Version())
		fmt.Fprintf(a.out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return nil
	})
	return cmd
}
