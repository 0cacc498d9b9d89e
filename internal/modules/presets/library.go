// Package presets manages the named filter preset library and candidate
// matching against it.
package presets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/domain"
)

// Library holds every named preset, validated at load time. Read-only after
// construction.
type Library struct {
	presets     map[string]domain.Preset
	defaultName string
	log         zerolog.Logger
}

// presetsFile is the on-disk JSON layout
type presetsFile struct {
	FilterPresets map[string]struct {
		Label   string            `json:"label"`
		Filters domain.Thresholds `json:"filters"`
	} `json:"filter_presets"`
	DefaultPreset string `json:"default_preset"`
}

// NewLibrary builds the library from built-in presets, optionally replaced
// by a JSON file at path. Any preset failing validation fails the load.
func NewLibrary(path string, log zerolog.Logger) (*Library, error) {
	lib := &Library{
		presets:     builtinPresets(),
		defaultName: "conservative",
		log:         log.With().Str("service", "presets").Logger(),
	}

	if path != "" {
		if err := lib.loadFile(path); err != nil {
			return nil, err
		}
	}

	for name, preset := range lib.presets {
		if err := preset.Thresholds.Validate(); err != nil {
			var cfgErr *domain.PresetConfigError
			if errors.As(err, &cfgErr) {
				cfgErr.Preset = name
			}
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
	}

	if _, ok := lib.presets[lib.defaultName]; !ok {
		return nil, fmt.Errorf("default preset %q not in library", lib.defaultName)
	}

	lib.log.Info().Int("presets", len(lib.presets)).Str("default", lib.defaultName).Msg("Preset library loaded")
	return lib, nil
}

func (l *Library) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read presets file: %w", err)
	}

	var file presetsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse presets file: %w", err)
	}
	if len(file.FilterPresets) == 0 {
		return fmt.Errorf("presets file %s defines no presets", path)
	}

	l.presets = make(map[string]domain.Preset, len(file.FilterPresets))
	for name, entry := range file.FilterPresets {
		l.presets[name] = domain.Preset{Name: name, Label: entry.Label, Thresholds: entry.Filters}
	}
	if file.DefaultPreset != "" {
		l.defaultName = file.DefaultPreset
	}
	return nil
}

// Get returns a preset by name
func (l *Library) Get(name string) (domain.Preset, error) {
	preset, ok := l.presets[name]
	if !ok {
		return domain.Preset{}, fmt.Errorf("preset %q: %w", name, domain.ErrNotFound)
	}
	return preset, nil
}

// Default returns the default preset
func (l *Library) Default() domain.Preset {
	return l.presets[l.defaultName]
}

// All returns every preset ordered by name
func (l *Library) All() []domain.Preset {
	out := make([]domain.Preset, 0, len(l.presets))
	for _, p := range l.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func builtinPresets() map[string]domain.Preset {
	return map[string]domain.Preset{
		"conservative": {
			Name:  "conservative",
			Label: "Conservative (deep ITM, long dated)",
			Thresholds: domain.Thresholds{
				MinDelta:        0.80,
				MaxDelta:        0.95,
				MinIntrinsicPct: 0.85,
				MaxExtrinsicPct: 0.15,
				MinDTE:          90,
				MaxDTE:          365,
				MaxIV:           0.30,
				MaxSpreadPct:    0.02,
				MinOpenInterest: 500,
			},
		},
		"moderate": {
			Name:  "moderate",
			Label: "Moderate (balance of cost and exposure)",
			Thresholds: domain.Thresholds{
				MinDelta:        0.70,
				MaxDelta:        0.90,
				MinIntrinsicPct: 0.70,
				MaxExtrinsicPct: 0.30,
				MinDTE:          15,
				MaxDTE:          365,
				MaxIV:           0.40,
				MaxSpreadPct:    0.05,
				MinOpenInterest: 100,
			},
		},
		"aggressive": {
			Name:  "aggressive",
			Label: "Aggressive (shorter dated, higher extrinsic tolerance)",
			Thresholds: domain.Thresholds{
				MinDelta:        0.60,
				MaxDelta:        0.95,
				MinIntrinsicPct: 0.50,
				MaxExtrinsicPct: 0.50,
				MinDTE:          7,
				MaxDTE:          180,
				MaxIV:           0.60,
				MaxSpreadPct:    0.10,
				MinOpenInterest: 50,
			},
		},
	}
}
