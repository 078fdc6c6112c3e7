package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/desertthunder/plexsync/internal/scheduler"
	"github.com/desertthunder/plexsync/internal/server"
	"github.com/urfave/cli/v3"
)

// drainTimeout bounds how long shutdown waits for an in-flight sync.
const drainTimeout = 30 * time.Second

// Daemon runs syncs on the configured cron schedule and serves the status API until SIGINT or
// SIGTERM. With --run-once it runs a single sync and exits instead.
func (r *Runner) Daemon(ctx context.Context, cmd *cli.Command) error {
	opts, err := r.syncOptions(cmd)
	if err != nil {
		return err
	}
	engine, err := r.syncEngine()
	if err != nil {
		return err
	}

	lock, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer lock.Release()

	db, history, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	sched := scheduler.New(engine, opts, history, r.logger)

	if cmd.Bool("run-once") {
		ctx, stop := r.interruptible(ctx)
		defer stop()

		result, err := sched.RunNow(ctx, scheduler.SourceStartup)
		if err != nil {
			return err
		}
		if !result.Success() {
			return fmt.Errorf("sync failed: %w", result.Err)
		}
		r.logger.Info("run-once sync finished", "stats", result.Stats.String())
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	spec := r.config.Schedule.Cron
	if cmd.IsSet("cron") {
		spec = cmd.String("cron")
	}
	if spec != "" {
		if err := sched.Schedule(spec); err != nil {
			return err
		}
	} else {
		r.logger.Warn("no schedule configured, syncs run only when triggered")
	}
	sched.Start()

	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger), server.Recover(r.logger))
	server.NewStatusHandler(sched.Status(), sched, history, r.logger).WithConfig(r.config).Register(router)

	addr := net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
	srv := server.NewServer(addr, router, r.logger)
	if err := srv.Start(ctx); err != nil {
		stopScheduler(r, sched)
		return err
	}

	if r.config.Schedule.RunOnStart {
		if err := sched.Trigger(ctx, scheduler.SourceStartup); err != nil {
			r.logger.Warn("startup sync not started", "error", err)
		}
	}

	r.logger.Info("daemon running", "address", srv.Addr(), "cron", spec)
	<-ctx.Done()

	r.logger.Info("shutting down")
	srv.Shutdown()
	stopScheduler(r, sched)
	return nil
}

func stopScheduler(r *Runner, sched *scheduler.Scheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := sched.Stop(ctx); err != nil {
		r.logger.Error("sync still running at shutdown", "error", err)
	}
}
