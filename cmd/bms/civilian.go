package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bloodlink.org/internal/blood"
)

func newCivilianCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "civilian",
		Short: "Civilian dashboard",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newCivilianShowCmd(), newCivilianRequestCmd())
	return cmd
}

func newCivilianShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List your blood requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()
			id, err := a.requireRole(ctx, blood.RoleCivilian)
			if err != nil {
				return err
			}
			return a.withRefresh(ctx, func() error {
				view, err := a.coord.LoadCivilianView(ctx, id.UserID)
				if err != nil {
					return err
				}
				renderRequests(a.out, view.Requests)
				return nil
			})
		},
	}
}

func newCivilianRequestCmd() *cobra.Command {
	var (
		group string
		draft blood.RequestDraft
	)
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Submit a blood request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()
			if _, err := a.requireRole(ctx, blood.RoleCivilian); err != nil {
				return err
			}
			g, err := blood.ParseBloodGroup(group)
			if err != nil {
				return err
			}
			draft.BloodGroup = g
			return a.withRefresh(ctx, func() error {
				req, err := a.coord.SubmitRequest(ctx, draft)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Request %d submitted (%s x%d), status %s\n", req.ID, req.BloodGroup, req.Quantity, req.Status)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&group, "group", "", "blood group needed (A+, A-, B+, B-, O+, O-, AB+, AB-)")
	f.IntVar(&draft.Quantity, "quantity", 1, "units needed")
	f.StringVar(&draft.Address, "address", "", "where the blood is needed")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}
