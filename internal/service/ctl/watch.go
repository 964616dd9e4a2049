package ctl

import (
	"context"
	"fmt"
	"time"

	"github.com/vst-controls/green-machine/internal/link"
	"github.com/vst-controls/green-machine/internal/sensors"
)

// watchInterval is how often the telemetry line is reprinted.
const watchInterval = time.Second

// watch prints the live telemetry and alarm events until ctx is done.
func watch(ctx context.Context, l *link.Link) error {
	pressure := &sensors.Cached{}
	current := &sensors.Cached{}
	overfill := &sensors.Flag{}

	if err := l.WireSensors(pressure, current, overfill); err != nil {
		return fmt.Errorf("subscribe telemetry: %w", err)
	}

	err := l.SubscribeAlarmEvents(ctx, func(_ context.Context, event link.AlarmEvent) {
		switch {
		case event.Warning != "":
			fmt.Printf("! shutdown in %s (%s)\n", event.Warning, event.Alarm)
		case event.Active:
			fmt.Printf("! alarm active: %s\n", event.Alarm)
		default:
			fmt.Printf("  alarm cleared: %s\n", event.Alarm)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe alarm events: %w", err)
	}

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			printTelemetry(pressure, current, overfill)
		}
	}
}

func printTelemetry(pressure, current *sensors.Cached, overfill *sensors.Flag) {
	p, pOK := pressure.Latest()
	c, cOK := current.Latest()
	full, _ := overfill.Set()

	if !pOK && !cOK {
		fmt.Println("waiting for telemetry...")
		return
	}

	fmt.Printf("pressure=%.2f IWC  current=%.1f A  overfill=%v\n", p.Value, c.Value, full)
}
