package main

import (
	"github.com/spf13/cobra"

	"bloodlink.org/internal/blood"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin dashboard",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newAdminInventoryCmd(), newAdminDonorsCmd())
	return cmd
}

func newAdminInventoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "Show donor and request counts and blood stock by group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()
			if _, err := a.requireRole(ctx, blood.RoleAdmin); err != nil {
				return err
			}
			return a.withRefresh(ctx, func() error {
				view, err := a.coord.LoadAdminView(ctx)
				if err != nil {
					return err
				}
				renderSnapshot(a.out, view.Snapshot)
				return nil
			})
		},
	}
}

func newAdminDonorsCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "donors",
		Short: "List donors, optionally by blood group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()
			if _, err := a.requireRole(ctx, blood.RoleAdmin); err != nil {
				return err
			}
			return a.withRefresh(ctx, func() error {
				if group != "" {
					donors, err := a.coord.SearchDonors(ctx, group)
					if err != nil {
						return err
					}
					renderProfiles(a.out, donors)
					return nil
				}
				view, err := a.coord.LoadAdminView(ctx)
				if err != nil {
					return err
				}
				renderProfiles(a.out, view.Donors)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "only donors with this blood group")
	return cmd
}
