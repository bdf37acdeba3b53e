package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"navsense/internal/config"
	"navsense/internal/gdl90"
	"navsense/internal/gps"
	"navsense/internal/indicator"
	"navsense/internal/location"
	"navsense/internal/replay"
	"navsense/internal/sim"
	"navsense/internal/udp"
	"navsense/internal/web"
)

const drainTimeout = 2 * time.Second

// app owns the source, the producer feeding it and every consumer.
type app struct {
	cfg    config.Config
	src    web.Source
	status *web.Status
	logs   *web.LogBuffer

	// produce feeds the source until ctx is done (sim/replay modes) or
	// starts the receiver (gps mode).
	produce func(ctx context.Context) error

	// closers run in reverse order on shutdown.
	closers []func()
}

func newApp(cfg config.Config, logs *web.LogBuffer) (*app, error) {
	rt := &app{cfg: cfg, status: web.NewStatus(), logs: logs}
	rt.status.SetMode(cfg.Source.Mode)

	if err := rt.buildSource(); err != nil {
		rt.close()
		return nil, err
	}
	if err := rt.attachConsumers(); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *app) buildSource() error {
	cfg := rt.cfg
	switch cfg.Source.Mode {
	case config.ModeGPS:
		svc := gps.New(gps.Config{
			Enable:   true,
			Source:   cfg.GPS.Source,
			GPSDAddr: cfg.GPS.GPSDAddr,
			TCPAddr:  cfg.GPS.TCPAddr,
			Device:   cfg.GPS.Device,
			Baud:     cfg.GPS.Baud,
		})
		rt.src = svc
		rt.status.SetExtra("gps", func() any { return svc.Snapshot() })
		rt.produce = func(ctx context.Context) error {
			if err := svc.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return ctx.Err()
		}
		rt.closers = append(rt.closers, svc.Close)

	case config.ModeSim:
		src := location.NewSimulatedSource()
		path, err := simPath(cfg.Sim)
		if err != nil {
			return err
		}
		d := &sim.Driver{Source: src, Path: path, Interval: cfg.Sim.Interval, Loop: cfg.Sim.Loop}
		rt.src = src
		rt.produce = d.Run

	case config.ModeReplay:
		f, err := os.Open(cfg.Replay.Path)
		if err != nil {
			return fmt.Errorf("open replay log: %w", err)
		}
		recs, err := replay.NewReader(f).ReadAll()
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("read replay log: %w", err)
		}
		src := location.NewSimulatedSource()
		rt.src = src
		rt.produce = func(ctx context.Context) error {
			return replay.Play(ctx, recs, cfg.Replay.Speed, cfg.Replay.Loop, nil, replay.ToSource(src))
		}

	default:
		return fmt.Errorf("unknown source mode %q", cfg.Source.Mode)
	}
	return nil
}

func simPath(cfg config.SimConfig) (sim.Path, error) {
	if cfg.Scenario == "" {
		o := cfg.Orbit
		return sim.Orbit{
			CenterLatDeg:      o.CenterLatDeg,
			CenterLonDeg:      o.CenterLonDeg,
			RadiusM:           o.RadiusM,
			Period:            o.Period,
			AccuracyM:         o.AccuracyM,
			CourseAccuracyDeg: o.CourseAccuracyDeg,
		}, nil
	}
	script, err := sim.LoadScenarioScript(cfg.Scenario)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	scn, err := sim.NewScenario(script)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", cfg.Scenario, err)
	}
	return scn, nil
}

// attach registers l on its own serial executor and arranges teardown.
func (rt *app) attach(name string, l location.Listener) error {
	exec := location.NewSerialExecutor(name)
	if err := rt.src.AddListener(l, exec); err != nil {
		exec.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	rt.closers = append(rt.closers, func() {
		rt.src.RemoveListener(l)
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := exec.Drain(ctx); err != nil {
			log.Printf("%s: gave up waiting for pending deliveries: %v", name, err)
			exec.Close()
		}
	})
	return nil
}

func (rt *app) attachConsumers() error {
	cfg := rt.cfg

	if err := rt.attach("fixlog", newFixLogger(log.Default())); err != nil {
		return err
	}

	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path)
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		rec := replay.NewRecorder(w)
		rt.closers = append(rt.closers, func() {
			if err := rec.Close(); err != nil {
				log.Printf("record close: %v", err)
			}
		})
		if err := rt.attach("record", rec); err != nil {
			return err
		}
		log.Printf("recording to %s", cfg.Record.Path)
	}

	if cfg.UDP.Enable {
		b, err := udp.NewBroadcaster(cfg.UDP.Dest)
		if err != nil {
			return fmt.Errorf("udp: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = b.Close() })
		var enc udp.Encoder = udp.NMEAEncoder{}
		if cfg.UDP.Format == "gdl90" {
			icao, err := gdl90.ParseICAOHex(cfg.UDP.ICAO)
			if err != nil {
				return fmt.Errorf("udp.icao: %w", err)
			}
			enc = udp.GDL90Encoder{ID: gdl90.Identity{ICAO: icao, Callsign: cfg.UDP.Callsign}}
		}
		fwd := udp.NewForwarder(b, enc)
		rt.status.SetExtra("udp", func() any { return fwd.Stats() })
		if err := rt.attach("udp", fwd); err != nil {
			return err
		}
		log.Printf("udp forwarding %s to %s", cfg.UDP.Format, cfg.UDP.Dest)
	}

	if cfg.Indicator.Enable {
		led, err := indicator.Open(indicator.Config{
			Pin:          cfg.Indicator.Pin,
			MaxAccuracyM: cfg.Indicator.MaxAccuracyM,
			StaleAfter:   cfg.Indicator.StaleAfter,
		})
		if err != nil {
			// The LED is optional; keep running without it.
			log.Printf("indicator disabled: %v", err)
		} else {
			rt.closers = append(rt.closers, func() { _ = led.Close() })
			if err := rt.attach("indicator", led); err != nil {
				return err
			}
		}
	}
	return nil
}

// run blocks until ctx is done or the producer or web server fails.
func (rt *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if rt.cfg.Web.Enable {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("web listening on %s", rt.cfg.Web.Listen)
			if err := web.Serve(ctx, rt.cfg.Web.Listen, rt.src, rt.status, rt.logs); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("web: %w", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := rt.produce(ctx)
		if err != nil && ctx.Err() == nil {
			errCh <- err
			return
		}
		if err == nil && ctx.Err() == nil {
			// A finite sim or replay ended; keep serving the last readings.
			log.Printf("%s source finished", rt.cfg.Source.Mode)
		}
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	cancel()
	wg.Wait()
	return err
}

func (rt *app) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
