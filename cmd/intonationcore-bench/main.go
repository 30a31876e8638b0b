// intonationcore-bench is a demo/benchmark harness wiring the signal
// generator, worklet processor, and pipeline orchestrator without a real
// microphone: a synthetic oscillator stands in for captured audio, and
// periodic AudioAnalysis snapshots are printed to stdout. Grounded on
// cmd/audiocore-test/main.go (device enumeration + ticker-driven
// monitoring loop + signal handling), adapted from a real-capture-device
// harness to a synthetic-signal one since this module never touches an
// actual sound card.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tphakala/intonationcore/internal/analysis/pitch"
	"github.com/tphakala/intonationcore/internal/config"
	"github.com/tphakala/intonationcore/internal/notemap"
	"github.com/tphakala/intonationcore/internal/pipeline"
	"github.com/tphakala/intonationcore/internal/protocol"
	"github.com/tphakala/intonationcore/internal/telemetry/logging"
	"github.com/tphakala/intonationcore/internal/telemetry/metrics"
	"github.com/tphakala/intonationcore/internal/worklet"
)

var (
	testFrequency float64
	durationSec   int
	forkNote      string
)

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intonationcore-bench",
		Short: "Run the intonationcore pipeline against a synthetic test signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), testFrequency, time.Duration(durationSec)*time.Second)
		},
	}
	cmd.Flags().Float64VarP(&testFrequency, "frequency", "f", 440.0, "test oscillator frequency in Hz")
	cmd.Flags().IntVarP(&durationSec, "duration", "d", 15, "seconds to run before exiting")
	cmd.Flags().StringVar(&forkNote, "fork", "", "reference tuning fork note name (e.g. A4); overrides tuning.forkmidinote/forkfrequency from config")
	return cmd
}

// resolveTuning builds the note mapper's fork and tuning system from
// settings, optionally overridden by a human-entered --fork note name.
func resolveTuning(settings *config.Settings, forkNoteFlag string) (notemap.Fork, notemap.TuningSystem, error) {
	fork := notemap.Fork{MIDINote: settings.Tuning.ForkMIDINote, Frequency: float32(settings.Tuning.ForkFrequency)}
	if fork.Frequency <= 0 {
		fork = notemap.Fork{MIDINote: 69, Frequency: 440}
	}

	if forkNoteFlag != "" {
		name, octave, err := notemap.ParseNoteName(forkNoteFlag)
		if err != nil {
			return notemap.Fork{}, notemap.TuningSystem{}, fmt.Errorf("parse --fork: %w", err)
		}
		midi := notemap.MIDINumber(name, octave)
		fork = notemap.Fork{MIDINote: midi, Frequency: notemap.StandardFrequency(midi)}
	}

	system := notemap.TuningSystem{Kind: notemap.EqualTemperament}
	switch settings.Tuning.System {
	case "just_intonation":
		system.Kind = notemap.JustIntonation
	case "custom":
		system.Kind = notemap.Custom
		for _, r := range settings.Tuning.CustomRatios {
			system.Ratios = append(system.Ratios, float32(r))
		}
	}

	return fork, system, nil
}

func main() {
	logging.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("intonationcore-bench failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, frequency float64, duration time.Duration) error {
	settings := config.Setting()

	fork, tuningSystem, err := resolveTuning(settings, forkNote)
	if err != nil {
		return err
	}

	collector := metrics.New()

	w, err := worklet.New(worklet.Config{
		SampleRate:    48000,
		ChunkSamples:  128,
		PoolSize:      settings.Pool.Size,
		BufferSamples: settings.Pool.BufferSamples,
		Batch: protocol.BatchConfig{
			BatchSize:    settings.Batch.BatchSize,
			MaxQueueSize: settings.Batch.MaxQueueSize,
			TimeoutMs:    uint32(settings.Batch.TimeoutMs),
		},
		Metrics: collector,
	})
	if err != nil {
		return fmt.Errorf("construct worklet: %w", err)
	}

	w.Initialize()
	w.SetTestSignal(worklet.TestSignalConfig{Enabled: true, Frequency: frequency, VolumePercent: 50})
	w.SetOutputToSpeakers(false)
	w.Inbound() <- protocol.StartProcessing()

	p, err := pipeline.New(pipeline.Config{
		MaxRecreationAttempts: settings.Pipeline.MaxRecreationAttempts,
		PitchConfig: pitch.DetectorConfig{
			SampleWindowSize: settings.Pitch.SampleWindowSize,
			SampleRate:       48000,
			Threshold:        settings.Pitch.Threshold,
			MinFrequency:     settings.Pitch.MinFrequency,
			MaxFrequency:     settings.Pitch.MaxFrequency,
			EnergyGate:       settings.Pitch.EnergyGate,
			ConfidenceFloor:  settings.Pitch.ConfidenceFloor,
		},
		Fork:         fork,
		TuningSystem: tuningSystem,
		Metrics:      collector,
	})
	if err != nil {
		return fmt.Errorf("construct pipeline: %w", err)
	}
	if err := p.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	if err := collector.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	fmt.Printf("Running synthetic pipeline at %.1f Hz for %s. Press Ctrl+C to stop.\n", frequency, duration)

	callbackTicker := time.NewTicker(128 * time.Second / 48000)
	defer callbackTicker.Stop()

	reportTicker := time.NewTicker(time.Second)
	defer reportTicker.Stop()

	deadline := time.After(duration)

	input := make([]float32, 128)
	output := make([]float32, 128)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nshutting down")
			return nil
		case <-deadline:
			fmt.Println("benchmark duration elapsed")
			return nil
		case <-callbackTicker.C:
			w.Process(input, output)
			for _, msg := range p.Tick(w.Outbound()) {
				w.Inbound() <- msg
			}
			collector.RecordPoolStats(w.PoolSnapshot())
		case <-reportTicker.C:
			analysis, ok := p.CollectAudioAnalysis(time.Now())
			if !ok {
				fmt.Println("no audio analysis yet")
			} else {
				printAnalysis(analysis)
			}
			printHealth(w.Health(time.Now()))
		}
	}
}

func printAnalysis(a pipeline.AudioAnalysis) {
	switch {
	case a.Volume != nil && a.Pitch != nil && a.Intonation != nil:
		fmt.Printf("rms=%.4f (%.1f dB)  pitch=%.2f Hz  confidence=%.2f  note=%s%d (%+.1f cents)\n",
			a.Volume.RMS, a.Volume.RMSDB, a.Pitch.Frequency, a.Pitch.Confidence,
			a.Intonation.Name, a.Intonation.Octave, a.Intonation.CentsOffset)
	case a.Volume != nil && a.Pitch != nil:
		fmt.Printf("rms=%.4f (%.1f dB)  pitch=%.2f Hz  confidence=%.2f\n",
			a.Volume.RMS, a.Volume.RMSDB, a.Pitch.Frequency, a.Pitch.Confidence)
	case a.Volume != nil:
		fmt.Printf("rms=%.4f (%.1f dB)  pitch=none\n", a.Volume.RMS, a.Volume.RMSDB)
	default:
		fmt.Println("no measurements yet")
	}
}

// printHealth prints the worklet's consecutive pool-failure count and last
// error age only when there is something worth reporting, mirroring
// audiocore.AudioHealthMonitor's Snapshot consumers.
func printHealth(h worklet.HealthSnapshot) {
	if h.ConsecutivePoolFailures == 0 && h.LastError == nil {
		return
	}
	fmt.Printf("health: consecutive_pool_failures=%d last_error_age=%s last_error=%q\n",
		h.ConsecutivePoolFailures, h.LastErrorAge.Truncate(time.Millisecond), h.LastError)
}
