package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/logger"
)

//nolint:gochecknoglobals // Prometheus collectors are registered once per process.
var (
	modeCode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gm_mode_code",
		Help: "Current operating mode as its store code (0=rest .. 5=leak).",
	})

	interlockEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gm_shutdown_interlock_enabled",
		Help: "Whether the shutdown interlock currently permits dispensing.",
	})

	actuatorWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gm_actuator_write_failures_total",
		Help: "Relay write attempts that failed, by output.",
	}, []string{"output"})

	alarmActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gm_alarm_active",
		Help: "Whether the named alarm is currently active.",
	}, []string{"alarm"})

	cycleRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gm_cycle_runs_total",
		Help: "Completed sequencer runs, by outcome.",
	}, []string{"outcome"})

	faultCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gm_motor_fault_count",
		Help: "Consecutive confirmed motor-current fault detections.",
	})
)

// SetMode publishes the current operating mode.
func SetMode(mode gm.Mode) {
	modeCode.Set(float64(mode.StoreCode()))
}

// SetInterlock publishes the shutdown interlock state.
func SetInterlock(on bool) {
	interlockEnabled.Set(boolToFloat(on))
}

// ActuatorWriteFailure counts a failed relay write for the output.
func ActuatorWriteFailure(output string) {
	actuatorWriteFailures.WithLabelValues(output).Inc()
}

// SetAlarmActive publishes whether the named alarm is active.
func SetAlarmActive(alarm string, active bool) {
	alarmActive.WithLabelValues(alarm).Set(boolToFloat(active))
}

// CycleFinished counts a finished sequencer run with its outcome
// ("completed" or "cancelled").
func CycleFinished(outcome string) {
	cycleRuns.WithLabelValues(outcome).Inc()
}

// SetFaultCount publishes the motor-current fault counter.
func SetFaultCount(n int) {
	faultCount.Set(float64(n))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

const readHeaderTimeout = 5 * time.Second

// Serve exposes the Prometheus endpoint on addr until ctx is cancelled.
// An empty addr disables the listener. Serve blocks.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	logger.InfoKV(ctx, "metrics listener started", "address", addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
