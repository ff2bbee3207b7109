// Package config defines the top-level CLI grammar parsed by kong.
package config

import "github.com/9names/xrecv/internal/cmd"

// LogConfig holds logging flags shared by all commands.
type LogConfig struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" env:"XRECV_LOG_LEVEL"`
	File    string `help:"Log file path (logs to stdout/stderr when empty)" env:"XRECV_LOG_FILE"`
	RawFile string `help:"Raw USB/IP traffic dump file" env:"XRECV_LOG_RAW_FILE"`
}

// CLI is the root command structure.
type CLI struct {
	Log    LogConfig `embed:"" prefix:"log."`
	Config string    `help:"Path to a configuration file" env:"XRECV_CONFIG"`

	Server cmd.Server        `cmd:"" help:"Run the wireless receiver emulator"`
	Cfg    cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration utilities"`
}
