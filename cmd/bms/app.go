package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/config"
	"bloodlink.org/internal/coordinator"
	"bloodlink.org/internal/gateway/remote"
	"bloodlink.org/internal/obs"
	"bloodlink.org/internal/session"
	"bloodlink.org/internal/storage"
	"bloodlink.org/internal/store/pg"
)

// app wires one CLI invocation: config, gateway, persisted session and the
// coordinator acting on its behalf.
type app struct {
	cfg     *config.Config
	session *session.Store
	coord   *coordinator.Coordinator
	out     io.Writer
	closers []func() error
}

func newApp(ctx context.Context, configPath string, out io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)
	obs.ConfigureLogger(cfg.Logger.Level, cfg.Logger.Format, nil)

	gw, err := remote.New(cfg.Gateway.BaseURL,
		remote.WithTimeout(cfg.Gateway.Timeout),
		remote.WithRateLimit(cfg.Gateway.RatePerSecond, cfg.Gateway.Burst),
	)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, out: out}
	st, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	a.session = session.New(gw, st)
	a.coord = coordinator.New(gw, a.session)
	return a, nil
}

func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	sc := a.cfg.Storage
	switch sc.Driver {
	case config.DriverMemory:
		return storage.NewMemory(), nil
	case config.DriverRedis:
		r, err := storage.OpenRedis(ctx, sc.RedisURL, sc.Namespace)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	case config.DriverPostgres:
		kv, err := pg.Open(sc.PostgresDSN, sc.Namespace)
		if err != nil {
			return nil, err
		}
		if err := kv.Ping(ctx); err != nil {
			_ = kv.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.closers = append(a.closers, kv.Close)
		return kv, nil
	default:
		return storage.NewFile(sc.Path), nil
	}
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			obs.Logger().WithError(err).Warn("close")
		}
	}
}

// requireRole restores the persisted session and checks it belongs to role.
func (a *app) requireRole(ctx context.Context, role blood.Role) (blood.Identity, error) {
	sess, ok := a.session.Restore(ctx)
	if !ok {
		return blood.Identity{}, fmt.Errorf("%w: not logged in, run `bms login` first", blood.ErrAuthentication)
	}
	if role != "" && sess.Identity.Role != role {
		return blood.Identity{}, fmt.Errorf("%w: logged in as %s, this command needs %s", blood.ErrValidation, sess.Identity.Role, role)
	}
	return sess.Identity, nil
}

// withRefresh runs fn and, if the access token was rejected, refreshes it
// once and runs fn again. A rejected refresh ends the session.
func (a *app) withRefresh(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, blood.ErrAuthentication) {
		return err
	}
	if _, rerr := a.session.Refresh(ctx); rerr != nil {
		if errors.Is(rerr, blood.ErrAuthentication) {
			a.session.Logout(ctx)
			obs.Logger().WithError(rerr).Warn("refresh rejected, logged out")
		}
		return err
	}
	return fn()
}
