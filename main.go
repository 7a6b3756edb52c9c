package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"stemdeck/clock"
	"stemdeck/config"
	"stemdeck/control"
	"stemdeck/dispatch"
	"stemdeck/mapping"
	"stemdeck/output"
	"stemdeck/registry"
	"stemdeck/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(log, registry.Options{
		LocalInterval:   cfg.LocalInterval(),
		NetworkInterval: cfg.NetworkInterval(),
		ResolveTimeout:  cfg.ResolveTimeout(),
	})
	disp := dispatch.New(log, reg, nil)
	clk := clock.New(log)
	out := output.New(log, output.Options{
		Capacity: cfg.Output.RateCapacity,
		Window:   cfg.RateWindow(),
	})
	store := mapping.NewMemStore()

	plane := control.NewPlane(log, store, reg, disp, clk, out)
	defer plane.Close()

	go reg.Run(ctx)
	go disp.Run(ctx)
	go clk.Run(ctx, reg, disp)
	go out.Run(ctx)

	sessionID := plane.StartSession(ctx, cfg.OwnerID)

	if cfg.PresetPath != "" {
		f, err := os.Open(cfg.PresetPath)
		if err != nil {
			log.Warn("preset unavailable", zap.String("path", cfg.PresetPath), zap.Error(err))
		} else {
			n, err := plane.ImportPreset(ctx, cfg.OwnerID, f)
			_ = f.Close()
			if err != nil {
				log.Warn("preset import incomplete", zap.Int("imported", n), zap.Error(err))
			} else {
				log.Info("preset loaded", zap.Int("mappings", n))
			}
		}
	}

	actions, err := plane.ActionEvents(sessionID, "tui")
	if err != nil {
		return err
	}

	m := tui.NewModel(tui.Feeds{
		Devices:  plane.DeviceEvents("tui"),
		Clocks:   plane.ClockEvents("tui"),
		Actions:  actions,
		Messages: plane.Messages("tui"),
	}, plane.Devices())

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
