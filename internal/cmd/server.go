package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/9names/xrecv/internal/auth"
	"github.com/9names/xrecv/internal/configpaths"
	"github.com/9names/xrecv/internal/log"
	"github.com/9names/xrecv/internal/server/input"
	"github.com/9names/xrecv/internal/server/usb"
	"github.com/9names/xrecv/internal/util"
	"github.com/9names/xrecv/virtualbus"
	"github.com/9names/xrecv/xinput"
)

const keyFileName = "xrecv.key.txt"

type Server struct {
	UsbServerConfig   usb.ServerConfig   `embed:"" prefix:"usb."`
	InputServerConfig input.ServerConfig `embed:"" prefix:"input."`
	ConnectionTimeout time.Duration      `help:"Connection setup timeout" default:"30s" env:"XRECV_CONNECTION_TIMEOUT"`

	Controllers  int           `help:"Number of controller slots to expose (1-4)" default:"4" env:"XRECV_CONTROLLERS"`
	Aux          bool          `help:"Expose the auxiliary (headset) endpoints per slot" default:"true" env:"XRECV_AUX"`
	ProtocolTick time.Duration `help:"Protocol time unit" default:"1ms" env:"XRECV_PROTOCOL_TICK"`
}

// Run is called by Kong when the server command is executed.
func (s *Server) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.StartServer(ctx, logger, rawLogger)
}

func (s *Server) StartServer(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	s.UsbServerConfig.ConnectionTimeout = s.ConnectionTimeout
	s.InputServerConfig.ConnectionTimeout = s.ConnectionTimeout

	logger.Info("Starting xrecv USB/IP server", "addr", s.UsbServerConfig.Addr)

	keyFileDir, err := configpaths.DefaultConfigDir()
	if err != nil {
		return fmt.Errorf("failed to resolve key file path: %w", err)
	}
	keyFilePath := path.Join(keyFileDir, keyFileName)
	var password string
	if pwd, err := os.ReadFile(keyFilePath); err == nil {
		password = strings.TrimSpace(string(pwd))
	} else {
		newPwd, err := auth.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate input server password: %w", err)
		}
		if err := os.MkdirAll(keyFileDir, 0o700); err != nil {
			return fmt.Errorf("failed to create config dir for key file: %w", err)
		}
		if err := os.WriteFile(keyFilePath, []byte(newPwd), 0o600); err != nil {
			return fmt.Errorf("failed to write new password to file: %w", err)
		}
		password = newPwd
		logger.Info("Generated input server password", "path", keyFilePath)
		logger.Info("-------------------------------------")
		logger.Info("Your xrecv input server password is:")
		logger.Info("-------------------------------------")
		logger.Info(newPwd)
		logger.Info("-------------------------------------")
		logger.Info("You can change this password at any time by editing the file")
	}
	key, err := auth.DeriveKey(password)
	if err != nil {
		return fmt.Errorf("failed to derive input server key: %w", err)
	}

	recv, err := xinput.New(xinput.Config{
		Controllers: s.Controllers,
		Aux:         s.Aux,
		Tick:        s.ProtocolTick,
	}, logger)
	if err != nil {
		return err
	}

	bus := virtualbus.New()
	defer bus.Close()
	if _, err := bus.Add(recv); err != nil {
		return fmt.Errorf("failed to register receiver on bus: %w", err)
	}

	usbSrv := usb.New(s.UsbServerConfig, logger, rawLogger)
	if err := usbSrv.AddBus(bus); err != nil {
		return err
	}

	usbErrCh := make(chan error, 1)
	go func() {
		usbErrCh <- usbSrv.ListenAndServe()
	}()

	select {
	case err := <-usbErrCh:
		return err
	case <-usbSrv.Ready():
	}

	if s.InputServerConfig.Addr == "" {
		return fmt.Errorf("input server address must be set (default :3242)")
	}

	inputSrv := input.New(s.InputServerConfig, recv, key, logger)
	inputErrCh := make(chan error, 1)
	go func() {
		inputErrCh <- inputSrv.ListenAndServe()
	}()

	go recv.Run(ctx)

	if util.IsRunFromGUI() {
		go (func() {
			time.Sleep(250 * time.Millisecond)
			util.HideConsoleWindow()
		})()
	}

	select {
	case <-ctx.Done():
		_ = inputSrv.Close()
		_ = usbSrv.Close()
		<-usbErrCh
		<-inputErrCh
		return nil
	case err := <-usbErrCh:
		_ = inputSrv.Close()
		return err
	case err := <-inputErrCh:
		_ = usbSrv.Close()
		return err
	}
}
