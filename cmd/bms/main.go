package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bloodlink.org/internal/coordinator"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	root, closeApp := newRootCmd()
	err := root.ExecuteContext(context.Background())
	closeApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, coordinator.Message(err))
		os.Exit(1)
	}
}

type appKey struct{}

var openApp = newApp

// newRootCmd returns the command tree and a func releasing whatever app the
// run opened. Cobra skips post-run hooks when RunE fails, so the caller
// closes after Execute instead.
func newRootCmd() (*cobra.Command, func()) {
	var (
		configPath string
		opened     *app
	)
	root := &cobra.Command{
		Use:           "bms",
		Short:         "Blood marketplace dashboards for donors, civilians and administrators",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), configPath, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			opened = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newRegisterCmd(),
		newCivilianCmd(),
		newDonorCmd(),
		newAdminCmd(),
	)
	closeApp := func() {
		if opened != nil {
			opened.Close()
			opened = nil
		}
	}
	return root, closeApp
}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}
