// Package config provides the intonationcore Settings tree: an embedded
// default configuration overlaid with a user config file and
// INTONATIONCORE_* environment variables, following the same viper-backed
// pattern the rest of the corpus uses for its own settings.
package config

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/tphakala/intonationcore/internal/coreerrors"
)

//go:embed config.yaml
var defaultConfigFile embed.FS

// LogRotation enumerates the supported log rotation policies.
type LogRotation string

const (
	RotationDaily  LogRotation = "daily"
	RotationWeekly LogRotation = "weekly"
	RotationSize   LogRotation = "size"
)

// LogConfig controls the structured file logger.
type LogConfig struct {
	Level     string      `mapstructure:"level"`
	Rotation  LogRotation `mapstructure:"rotation"`
	MaxSizeMB int         `mapstructure:"maxsizemb"`
}

// PoolConfig sizes the worklet's buffer pool.
type PoolConfig struct {
	Size          int `mapstructure:"size"`
	BufferSamples int `mapstructure:"buffersamples"`
}

// BatchConfig is the wire BatchConfig default (see protocol.BatchConfig).
type BatchConfig struct {
	BatchSize         int  `mapstructure:"batchsize"`
	MaxQueueSize      int  `mapstructure:"maxqueuesize"`
	TimeoutMs         int  `mapstructure:"timeoutms"`
	EnableCompression bool `mapstructure:"enablecompression"`
}

// PitchConfig is the default pitch.DetectorConfig.
type PitchConfig struct {
	SampleWindowSize int     `mapstructure:"samplewindowsize"`
	Threshold        float64 `mapstructure:"threshold"`
	MinFrequency     float64 `mapstructure:"minfrequency"`
	MaxFrequency     float64 `mapstructure:"maxfrequency"`
	EnergyGate       float64 `mapstructure:"energygate"`
	ConfidenceFloor  float64 `mapstructure:"confidencefloor"`
}

// TuningConfig describes the default tuning system and reference fork.
type TuningConfig struct {
	System        string    `mapstructure:"system"` // equal_temperament, just_intonation, custom
	ForkMIDINote  int       `mapstructure:"forkmidinote"`
	ForkFrequency float64   `mapstructure:"forkfrequency"`
	CustomRatios  []float64 `mapstructure:"customratios"`
}

// TestSignalConfig is the default oscillator state.
type TestSignalConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	FrequencyHz   float64 `mapstructure:"frequencyhz"`
	VolumePercent float64 `mapstructure:"volumepercent"`
	NudgePercent  float64 `mapstructure:"nudgepercent"`
}

// BackgroundNoiseConfig is the default noise-mixing state.
type BackgroundNoiseConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Level     float64 `mapstructure:"level"`
	NoiseType string  `mapstructure:"noisetype"` // white or pink
}

// PipelineConfig controls orchestrator lifecycle behavior.
type PipelineConfig struct {
	MaxRecreationAttempts  int `mapstructure:"maxrecreationattempts"`
	PermissionWaitTimeoutMs int `mapstructure:"permissionwaittimeoutms"`
}

// Settings is the full configuration tree for intonationcore.
type Settings struct {
	Debug           bool                  `mapstructure:"debug"`
	Log             LogConfig             `mapstructure:"log"`
	Pool            PoolConfig            `mapstructure:"pool"`
	Batch           BatchConfig           `mapstructure:"batch"`
	Pitch           PitchConfig           `mapstructure:"pitch"`
	Tuning          TuningConfig          `mapstructure:"tuning"`
	TestSignal      TestSignalConfig      `mapstructure:"testsignal"`
	BackgroundNoise BackgroundNoiseConfig `mapstructure:"backgroundnoise"`
	Pipeline        PipelineConfig        `mapstructure:"pipeline"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	once             sync.Once
)

// GetDefaultConfigPaths returns the OS-specific directories searched for a
// user config.yaml, following the same convention as the rest of the pack.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		return []string{filepath.Join(homeDir, "AppData", "Roaming", "intonationcore")}, nil
	default:
		return []string{
			filepath.Join(homeDir, ".config", "intonationcore"),
			"/etc/intonationcore",
		}, nil
	}
}

// Load reads the embedded defaults, overlays an optional user config file
// found on GetDefaultConfigPaths, overlays INTONATIONCORE_* environment
// variables, and returns the merged Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	v := viper.New()
	v.SetConfigType("yaml")

	defaultYAML, err := fs.ReadFile(defaultConfigFile, "config.yaml")
	if err != nil {
		return nil, coreerrors.New(err).
			Component("configuration").
			Category(coreerrors.CategoryConfiguration).
			Context("operation", "read_embedded_defaults").
			Build()
	}
	if err := v.ReadConfig(strings.NewReader(string(defaultYAML))); err != nil {
		return nil, coreerrors.New(err).
			Component("configuration").
			Category(coreerrors.CategoryConfiguration).
			Context("operation", "parse_embedded_defaults").
			Build()
	}

	v.SetConfigName("config")
	if paths, pathErr := GetDefaultConfigPaths(); pathErr == nil {
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		if mergeErr := v.MergeInConfig(); mergeErr != nil {
			if !isConfigFileNotFound(mergeErr) {
				return nil, coreerrors.New(mergeErr).
					Component("configuration").
					Category(coreerrors.CategoryConfiguration).
					Context("operation", "merge_user_config").
					Build()
			}
		}
	}

	v.SetEnvPrefix("INTONATIONCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, coreerrors.New(err).
			Component("configuration").
			Category(coreerrors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

func isConfigFileNotFound(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError) //nolint:errorlint // viper returns this concretely
	return ok
}

// validateSettings performs cheap sanity checks on the loaded tree; the
// pitch/tuning packages re-validate their own slice of it at construction
// time, so this only catches configuration-layer mistakes early.
func validateSettings(s *Settings) error {
	if s.Pool.Size <= 0 {
		return coreerrors.Newf("pool.size must be positive, got %d", s.Pool.Size).
			Component("configuration").
			Category(coreerrors.CategoryValidation).
			Build()
	}
	if s.Pool.BufferSamples <= 0 {
		return coreerrors.Newf("pool.buffersamples must be positive, got %d", s.Pool.BufferSamples).
			Component("configuration").
			Category(coreerrors.CategoryValidation).
			Build()
	}
	return nil
}

// Setting returns the process-wide Settings instance, loading it on first
// use. Panics are avoided in favor of falling back to the embedded defaults
// if that first load fails.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				// Fall back to defaults parsed directly, bypassing the
				// user-path/env overlay, so a bad environment never
				// prevents the process from starting.
				fallback := &Settings{}
				v := viper.New()
				v.SetConfigType("yaml")
				if defaultYAML, readErr := fs.ReadFile(defaultConfigFile, "config.yaml"); readErr == nil {
					if v.ReadConfig(strings.NewReader(string(defaultYAML))) == nil {
						_ = v.Unmarshal(fallback)
					}
				}
				settingsMutex.Lock()
				settingsInstance = fallback
				settingsMutex.Unlock()
			}
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
