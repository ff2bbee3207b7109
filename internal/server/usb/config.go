package usb

import "time"

// ServerConfig holds the USB/IP server settings.
type ServerConfig struct {
	Addr              string        `help:"USB/IP server listen address" default:":3240" env:"XRECV_USB_ADDR"`
	ConnectionTimeout time.Duration `kong:"-"`
}
