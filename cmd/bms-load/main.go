package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/coordinator"
	"bloodlink.org/internal/gateway"
	"bloodlink.org/internal/gateway/remote"
	"bloodlink.org/internal/obs"
	"bloodlink.org/internal/session"
	"bloodlink.org/internal/sim"
	"bloodlink.org/internal/storage"
)

type options struct {
	baseURL  string
	workers  int
	duration time.Duration
	seed     int64
	password string
	rate     float64
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:          "bms-load",
		Short:        "Drive civilians and donors from the demo scenario against a backend",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", "http://localhost:8000/api/", "backend API base URL")
	f.IntVar(&opts.workers, "workers", 4, "concurrent worker count")
	f.DurationVar(&opts.duration, "duration", time.Minute, "duration of the run")
	f.Int64Var(&opts.seed, "seed", 0, "generator seed (0 = time based)")
	f.StringVar(&opts.password, "password", "", "password of the demo accounts (default: scenario password)")
	f.Float64Var(&opts.rate, "rate", 50, "client-side requests per second across all workers")
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	obs.Init()
	log := obs.Logger()
	log.WithFields(logrus.Fields{"base": opts.baseURL, "workers": opts.workers, "duration": opts.duration}).Info("launching load run")

	gw, err := remote.New(opts.baseURL, remote.WithRateLimit(opts.rate, opts.workers))
	if err != nil {
		return err
	}
	gen := sim.NewGenerator(sim.CityHospitalScenario(), opts.seed)
	password := opts.password
	if password == "" {
		password = gen.Scenario().Password
	}

	var (
		counter sim.Counter
		wg      sync.WaitGroup
	)
	deadline := time.Now().Add(opts.duration)
	for i := 0; i < opts.workers; i++ {
		kind := blood.RoleDonor
		if i%2 == 0 {
			kind = blood.RoleCivilian
		}
		acc, ok := gen.Pick(kind)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(id int, acc sim.Account) {
			defer wg.Done()
			w, err := newWorker(ctx, gw, acc, password)
			if err != nil {
				log.WithError(err).WithField("worker", id).Error("login failed")
				counter.Observe(err)
				return
			}
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id*9973)))
			for time.Now().Before(deadline) && ctx.Err() == nil {
				w.step(ctx, gen, rnd, &counter)
				time.Sleep(time.Duration(50+rnd.Intn(120)) * time.Millisecond)
			}
		}(i, acc)
	}
	wg.Wait()

	log.WithField("summary", counter.String()).Info("run complete")
	return nil
}

type worker struct {
	account sim.Account
	userID  int64
	coord   *coordinator.Coordinator
}

func newWorker(ctx context.Context, gw gateway.Gateway, acc sim.Account, password string) (*worker, error) {
	store := session.New(gw, storage.NewMemory())
	sess, err := store.Login(ctx, acc.Username, password)
	if err != nil {
		return nil, err
	}
	return &worker{account: acc, userID: sess.Identity.UserID, coord: coordinator.New(gw, store)}, nil
}

// step performs one dashboard action: civilians submit a request, donors
// offer on the first actionable row or sometimes withdraw an offer.
func (w *worker) step(ctx context.Context, gen *sim.Generator, rnd *rand.Rand, c *sim.Counter) {
	if w.account.Kind == blood.RoleCivilian {
		if _, err := w.coord.SubmitRequest(ctx, gen.NextDraft()); err != nil {
			c.Observe(err)
			return
		}
		c.Requests.Add(1)
		return
	}

	view, err := w.coord.LoadDonorView(ctx, w.userID)
	if err != nil {
		c.Observe(err)
		return
	}
	if len(view.Offers) > 0 && rnd.Intn(4) == 0 {
		o := view.Offers[rnd.Intn(len(view.Offers))]
		if err := w.coord.DeleteOffer(ctx, o.ID); err != nil {
			c.Observe(err)
			return
		}
		c.Withdrawn.Add(1)
		return
	}
	for _, row := range w.coord.DonorRows() {
		if !row.Actionable {
			continue
		}
		if _, err := w.coord.MakeOffer(ctx, w.userID, row.Request.ID); err != nil {
			c.Observe(err)
			return
		}
		c.Offers.Add(1)
		return
	}
}
