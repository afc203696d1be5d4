// Command comftp exposes a legacy DOS machine reachable over a serial
// line as an anonymous FTP server: every FTP command is translated into
// a DOS shell command or an XMODEM transfer against the one physical
// link, with the CLI surface and logging built the way goserial and
// rclone build theirs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/daedaluz/comftp/internal/bootstrap"
	"github.com/daedaluz/comftp/internal/ftpdriver"
	"github.com/daedaluz/comftp/internal/serialio"
)

var (
	host          string
	port          int
	serialPort    string
	serialSpeed   int
	ftransSend    string
	ftransSize    string
	ftransReceive string
	quiet         bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "comftp",
		Short:         "Serve a DOS machine's drives over FTP through a serial link",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&host, "host", "127.0.0.1", "FTP control address to listen on")
	flags.IntVar(&port, "port", 8021, "FTP control port to listen on")
	flags.StringVar(&serialPort, "serial-port", "", "serial device to dial (default: first port found)")
	flags.IntVar(&serialSpeed, "serial-speed", 115200, "serial baud rate")
	flags.StringVar(&ftransSend, "ftrans-send", "f /s {filename}", "command template to put the device into XMODEM send mode")
	flags.StringVar(&ftransSize, "ftrans-size", "{size}", "command template fragment appended when a size hint is known")
	flags.StringVar(&ftransReceive, "ftrans-receive", "f {filename}", "command template to put the device into XMODEM receive mode")
	flags.BoolVarP(&quiet, "quiet", "q", false, "log errors only")

	root.AddCommand(newListComsCmd())
	return root
}

func newListComsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-coms",
		Short: "List available serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serialio.ListPorts()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func run(ctx context.Context) error {
	if quiet {
		logrus.SetLevel(logrus.ErrorLevel)
	}
	log := logrus.WithField("component", "main")

	devicePort := serialPort
	if devicePort == "" {
		ports, err := serialio.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			return fmt.Errorf("no serial ports found")
		}
		devicePort = ports[0]
	}

	ch, err := serialio.Open(devicePort, serialSpeed)
	if err != nil {
		return fmt.Errorf("open %s: %w", devicePort, err)
	}
	defer ch.Close()

	log.WithField("port", devicePort).Info("bringing up dos shell")
	if err := bootstrap.Bring(ctx, ch); err != nil {
		return fmt.Errorf("bootstrap shell: %w", err)
	}

	templates := ftpdriver.Templates{Send: ftransSend, Size: ftransSize, Receive: ftransReceive}
	addr := fmt.Sprintf("%s:%d", host, port)
	driver := ftpdriver.NewMainDriver(ch, addr, templates)
	server := ftpserver.NewFtpServer(driver)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("serving ftp")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-sigCtx.Done():
		log.Info("shutting down")
		return server.Stop()
	case err := <-errCh:
		return err
	}
}
