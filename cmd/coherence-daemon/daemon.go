// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/coherence/lib/apply"
	"github.com/bureau-foundation/coherence/lib/clock"
	"github.com/bureau-foundation/coherence/lib/config"
	"github.com/bureau-foundation/coherence/lib/control"
	"github.com/bureau-foundation/coherence/lib/ctlsocket"
	"github.com/bureau-foundation/coherence/lib/export"
	"github.com/bureau-foundation/coherence/lib/field"
	"github.com/bureau-foundation/coherence/lib/fieldfs"
	"github.com/bureau-foundation/coherence/lib/mapper"
	"github.com/bureau-foundation/coherence/lib/metric"
	"github.com/bureau-foundation/coherence/lib/proctable"
	"github.com/bureau-foundation/coherence/lib/procfs"
	"github.com/bureau-foundation/coherence/lib/scheduler"
	"github.com/bureau-foundation/coherence/lib/sensor"
)

const defaultProcRoot = procfs.DefaultRoot

// daemonDeps are the host dependencies a daemon is built against.
type daemonDeps struct {
	procRoot string
	clock    clock.Clock
	logger   *slog.Logger

	// applier replaces the configured apply backends when set.
	applier apply.Applier
}

// daemon owns every long-running component.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	table    *proctable.Table
	store    *field.Store
	loop     *scheduler.Loop
	surface  *control.Surface
	server   *ctlsocket.Server
	hub      *sensor.Hub
	sensors  []sensor.Sensor
	exporter *export.Exporter
}

func newDaemon(cfg *config.Config, deps daemonDeps) (*daemon, error) {
	if deps.clock == nil {
		deps.clock = clock.Real()
	}
	logger := deps.logger

	applier := deps.applier
	if applier == nil {
		var err error
		applier, err = apply.New(cfg.Apply.Backends, cfg.Apply.CgroupRoot, logger)
		if err != nil {
			return nil, fmt.Errorf("configuring apply backends: %w", err)
		}
	}

	scanner := procfs.NewScanner(deps.procRoot)
	table := proctable.New(proctable.Options{DropAbsent: cfg.Table.DropAbsent, Clock: deps.clock})
	store := field.NewStore(field.Initial(deps.clock.Now()))

	d := &daemon{cfg: cfg, logger: logger, table: table, store: store}

	loopOptions := scheduler.Options{
		Table:              table,
		Store:              store,
		Snapshotter:        scanner,
		Applier:            applier,
		PriorityHysteresis: mapper.Hysteresis{Threshold: cfg.Mapper.PriorityHysteresis},
		WeightHysteresis:   mapper.Hysteresis{Threshold: cfg.Mapper.WeightHysteresis},
		Weights:            mapper.WeightRange{Min: cfg.Mapper.WeightMin, Max: cfg.Mapper.WeightMax},
		Interval:           cfg.Scheduler.Interval,
		Clock:              deps.clock,
		Logger:             logger,
		OnCycle: func(report scheduler.Report) {
			logger.Debug("cycle complete",
				"cycle", report.Cycle,
				"coherence", report.Field.Coherence,
				"momentum", report.Field.Momentum,
				"participants", report.Field.Participants,
				"added", len(report.Added),
				"removed", len(report.Removed),
				"apply_failures", report.ApplyFailures,
			)
		},
	}
	if cfg.Scheduler.CPUNudge {
		loopOptions.Usage = procfs.NewCPUSampler(deps.procRoot)
	}
	if cfg.Scheduler.Fluctuation > 0 {
		loopOptions.Fluctuator = metric.NewFluctuator(uint64(deps.clock.Now().UnixNano()))
		loopOptions.Fluctuation = cfg.Scheduler.Fluctuation
	}

	if len(cfg.Sensor.Files) > 0 {
		d.hub = sensor.NewHub(sensor.Options{
			Threshold:  cfg.Sensor.AgreementThreshold,
			MinSources: cfg.Sensor.MinSources,
			Multiplier: cfg.Sensor.Multiplier,
			MaxAge:     cfg.Sensor.MaxAge,
			Clock:      deps.clock,
			Logger:     logger,
		})
		for _, path := range cfg.Sensor.Files {
			d.sensors = append(d.sensors, sensor.NewFileSensor(path, logger))
		}
		loopOptions.Influence = d.hub
	}

	loop, err := scheduler.New(loopOptions)
	if err != nil {
		return nil, err
	}
	d.loop = loop

	d.surface = control.New(control.Options{
		Table:    table,
		Store:    store,
		Resolver: scanner,
		AllowSet: cfg.Control.AllowSet,
		Phase:    func() string { return loop.State().String() },
		OnUnregister: func(pid int) {
			forgetter, ok := applier.(apply.Forgetter)
			if !ok {
				return
			}
			if err := forgetter.Forget(pid); err != nil {
				logger.Warn("releasing apply state failed", "pid", pid, "error", err)
			}
		},
		Logger: logger,
	})

	d.server, err = ctlsocket.NewServer(ctlsocket.Options{
		SocketPath: cfg.Control.SocketPath,
		Surface:    d.surface,
		WriteRate:  cfg.Control.WriteRate,
		WriteBurst: cfg.Control.WriteBurst,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Export.Path != "" {
		d.exporter, err = export.NewExporter(cfg.Export.Path, cfg.Export.Interval, store, deps.clock, logger)
		if err != nil {
			return nil, err
		}
	}

	return d, nil
}

// run starts every component and blocks until ctx is cancelled or a
// component fails.
func (d *daemon) run(ctx context.Context) error {
	var mount *fuse.Server
	if d.cfg.Control.Mountpoint != "" {
		var err error
		mount, err = fieldfs.Mount(fieldfs.Options{
			Mountpoint: d.cfg.Control.Mountpoint,
			Surface:    d.surface,
			AllowOther: d.cfg.Control.AllowOther,
			Logger:     d.logger,
		})
		if err != nil {
			return err
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return d.loop.Run(ctx) })
	group.Go(func() error { return d.server.Serve(ctx) })
	if d.hub != nil {
		group.Go(func() error { return d.hub.Run(ctx, d.sensors) })
	}
	if d.exporter != nil {
		group.Go(func() error { return d.exporter.Run(ctx) })
	}
	if mount != nil {
		group.Go(func() error {
			<-ctx.Done()
			return d.unmount(mount)
		})
	}

	d.logger.Info("coherence daemon running",
		"socket", d.cfg.Control.SocketPath,
		"mountpoint", d.cfg.Control.Mountpoint,
		"interval", d.cfg.Scheduler.Interval,
		"backends", d.cfg.Apply.Backends,
		"sensors", len(d.sensors),
	)

	err := group.Wait()
	d.logger.Info("coherence daemon stopped")
	return err
}

// unmountRetries covers the window where a reader still holds a file
// open on the mount.
const unmountRetries = 5

func (d *daemon) unmount(server *fuse.Server) error {
	var err error
	for attempt := range unmountRetries {
		if err = server.Unmount(); err == nil {
			return nil
		}
		d.logger.Warn("unmount failed", "attempt", attempt+1, "error", err)
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("unmounting %s: %w", d.cfg.Control.Mountpoint, err)
}
