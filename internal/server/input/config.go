package input

import "time"

// ServerConfig holds the input stream server settings.
type ServerConfig struct {
	Addr              string        `help:"Input stream server listen address" default:":3242" env:"XRECV_INPUT_ADDR"`
	ConnectionTimeout time.Duration `kong:"-"`
}
