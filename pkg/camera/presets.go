package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLow     = "low"
	PresetText    = "text"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLow:     LowBandwidthConfig(),
		PresetText:    TextConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetDefault, PresetLow, PresetText}
}

// GetPreset returns a preset by name, or nil if not found.
func GetPreset(name string) *Config {
	cfg, ok := Presets()[name]
	if !ok {
		return nil
	}
	return &cfg
}

// LowBandwidthConfig trades detail for upload time on slow links.
func LowBandwidthConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	cfg.Quality = 65
	return cfg
}

// TextConfig favors legibility of signs and labels.
func TextConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	cfg.Quality = 90
	cfg.Framerate = 2
	return cfg
}
