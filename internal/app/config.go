package app

import "github.com/specialistvlad/wcctgo/internal/config"

// Config holds what an App needs before its configuration model is loaded.
type Config struct {
	// ConfigPaths are HCL files or directories, applied in sorted order.
	ConfigPaths []string

	// LogLevel and LogFormat, when set, win over the logging block.
	LogLevel  string
	LogFormat string

	// Override adjusts the loaded model, typically from command-line flags.
	Override func(*config.Model)
}
