package camera

// Preset names accepted by Update.Preset.
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset720p    = "720p"
	PresetFast    = "fast"
	PresetSaver   = "saver"
)

// presets maps each name to a modification of DefaultConfig. Order
// matches PresetNames.
var presets = []struct {
	name   string
	modify func(*Config)
}{
	{PresetDefault, func(*Config) {}},
	// Slow machines
	{PresetLow, func(c *Config) { c.Width, c.Height = 320, 240 }},
	// Better landmarks when sitting far back
	{Preset720p, func(c *Config) { c.Width, c.Height = 1280, 720 }},
	// Lower cursor latency, if the webcam can do 60 fps
	{PresetFast, func(c *Config) { c.Framerate = 60 }},
	// Detect on every other frame at 15 fps to save battery
	{PresetSaver, func(c *Config) { c.Framerate, c.Every = 15, 2 }},
}

// PresetNames lists the available presets.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// Preset returns the named preset.
func Preset(name string) (Config, bool) {
	for _, p := range presets {
		if p.name == name {
			cfg := DefaultConfig()
			p.modify(&cfg)
			return cfg, true
		}
	}
	return Config{}, false
}
