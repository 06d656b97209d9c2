package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/health"
	"bloodlink.org/internal/obs"
)

func newDonorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "donor",
		Short: "Donor dashboard",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newDonorShowCmd(), newDonorOfferCmd(), newDonorWithdrawCmd(), newDonorWatchCmd())
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a valid id", blood.ErrValidation, s)
	}
	return id, nil
}

func (a *app) showDonor(ctx context.Context, donorID int64) error {
	view, err := a.coord.LoadDonorView(ctx, donorID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Donor %s, blood group %s\n\nPending requests\n", view.Profile.User.FullName(), view.Profile.BloodGroup)
	renderDonorRows(a.out, a.coord.DonorRows())
	fmt.Fprintln(a.out, "\nYour offers")
	renderOffers(a.out, view.Offers)
	return nil
}

func newDonorShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List pending requests and your offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()
			id, err := a.requireRole(ctx, blood.RoleDonor)
			if err != nil {
				return err
			}
			return a.withRefresh(ctx, func() error { return a.showDonor(ctx, id.UserID) })
		},
	}
}

func newDonorOfferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offer <request-id>",
		Short: "Offer to donate for a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()
			requestID, err := parseID(args[0])
			if err != nil {
				return err
			}
			id, err := a.requireRole(ctx, blood.RoleDonor)
			if err != nil {
				return err
			}
			return a.withRefresh(ctx, func() error {
				if _, err := a.coord.LoadDonorView(ctx, id.UserID); err != nil {
					return err
				}
				offer, err := a.coord.MakeOffer(ctx, id.UserID, requestID)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Offer %d made on request %d (%s, %s)\n", offer.ID, offer.Request.ID, offer.Request.BloodGroup, offer.Request.Address)
				return nil
			})
		},
	}
}

func newDonorWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "withdraw <offer-id>",
		Aliases: []string{"delete"},
		Short:   "Withdraw one of your offers",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			ctx := cmd.Context()
			offerID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.requireRole(ctx, blood.RoleDonor); err != nil {
				return err
			}
			return a.withRefresh(ctx, func() error {
				if err := a.coord.DeleteOffer(ctx, offerID); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Offer %d withdrawn\n", offerID)
				return nil
			})
		},
	}
}

func newDonorWatchCmd() *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
		grpcAddr    string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the donor dashboard periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFrom(cmd)
			id, err := a.requireRole(cmd.Context(), blood.RoleDonor)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("interval") {
				interval = a.cfg.Watch.Interval
			}
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = a.cfg.Watch.MetricsAddr
			}
			if !cmd.Flags().Changed("grpc-addr") {
				grpcAddr = a.cfg.Watch.GRPCAddr
			}
			if interval <= 0 {
				return fmt.Errorf("%w: interval must be positive", blood.ErrValidation)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watchDonor(ctx, id.UserID, interval, metricsAddr, grpcAddr)
		},
	}
	f := cmd.Flags()
	f.DurationVar(&interval, "interval", 30*time.Second, "reload interval (default from watch.interval)")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /readyz on this address")
	f.StringVar(&grpcAddr, "grpc-addr", "", "serve the gRPC health service on this address")
	return cmd
}

func (a *app) watchDonor(ctx context.Context, donorID int64, interval time.Duration, metricsAddr, grpcAddr string) error {
	log := obs.Logger()
	probe := health.NewProbe()
	defer probe.Shutdown()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: probe.Handler(version), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", grpcAddr, err)
		}
		gs := grpc.NewServer()
		probe.RegisterGRPC(gs)
		go func() {
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.WithError(err).Error("grpc health server")
			}
		}()
		defer gs.GracefulStop()
	}

	go func() {
		for ev := range a.session.Subscribe(ctx) {
			log.WithFields(logrus.Fields{"event": string(ev.Kind), "username": ev.Identity.Username}).Info("session event")
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		err := a.withRefresh(ctx, func() error {
			fmt.Fprintf(a.out, "\n== %s ==\n", time.Now().Format(time.RFC3339))
			return a.showDonor(ctx, donorID)
		})
		probe.Record(err)
		if err != nil {
			log.WithError(err).Warn("donor view reload failed")
			if _, ok := a.session.Current(); !ok {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
