package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/internal/config"
	"github.com/arloliu/go-mbserial/logger"
	"github.com/arloliu/go-mbserial/transport"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string

	port     string
	baud     int
	dataBits int
	parity   string
	stopBits string
	mode     string
	address  int

	timeout          time.Duration
	retries          int
	asciiCharTimeout time.Duration
	rtuCharTimeout   time.Duration

	logLevel    string
	logJSON     bool
	logger      logger.Logger
	dialTimeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mbserial",
		Short: "Serial master/slave request-response tool",
		Long: `mbserial exchanges requests and responses with units on a serial line.

Frames use either the ASCII encoding (':' + hex + LRC + CR LF) or the RTU
encoding (binary + CRC-16, delimited by line silence).

Connection:
  Serial: --port /dev/ttyUSB0 [--baud 9600 --data-bits 8 --parity N --stop-bits 1]
  TCP:    --port tcp://host:port (serial-to-TCP gateways)

Settings can also be read from a TOML file given with --config; flags
override values from the file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logger.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}

			opts.logger = logger.NewSlogWithWriter(cmd.ErrOrStderr(), level, false, !opts.logJSON)
			logger.SetLogger(opts.logger)

			return nil
		},
	}

	opts.addFlags(cmd.PersistentFlags())

	cmd.AddCommand(newSendCmd(opts), newListenCmd(opts))

	return cmd
}

func (opts *rootOptions) addFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	flags.StringVarP(&opts.port, "port", "p", "", "Serial port device or tcp://host:port")
	flags.IntVarP(&opts.baud, "baud", "b", transport.DefaultBaudRate, "Baud rate")
	flags.IntVar(&opts.dataBits, "data-bits", transport.DefaultDataBits, "Data bits (5-8)")
	flags.StringVar(&opts.parity, "parity", "N", "Parity: N, E, O, M or S")
	flags.StringVar(&opts.stopBits, "stop-bits", "1", "Stop bits: 1, 1.5 or 2")
	flags.StringVarP(&opts.mode, "mode", "m", "ascii", "Frame encoding: ascii or rtu")
	flags.IntVarP(&opts.address, "address", "a", 1, "Slave address")
	flags.DurationVarP(&opts.timeout, "timeout", "t", 5*time.Second, "Response timeout")
	flags.IntVarP(&opts.retries, "retries", "r", 3, "Retransmissions after the first attempt")
	flags.DurationVar(&opts.asciiCharTimeout, "ascii-char-timeout", 0, "ASCII inter-character timeout (default 1s)")
	flags.DurationVar(&opts.rtuCharTimeout, "rtu-char-timeout", 0, "RTU inter-character timeout (default from baud rate)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.BoolVar(&opts.logJSON, "log-json", false, "Log JSON lines instead of console output")
	flags.DurationVar(&opts.dialTimeout, "dial-timeout", 5*time.Second, "Connect timeout for tcp:// ports")
}

// endpoint resolves the settings: defaults, then the config file, then
// every flag set on the command line.
func (opts *rootOptions) endpoint(cmd *cobra.Command) (config.Endpoint, error) {
	ep := config.Default()
	if opts.configPath != "" {
		if err := ep.LoadFile(opts.configPath); err != nil {
			return ep, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") || ep.Port == "" {
		ep.Port = opts.port
	}
	if flags.Changed("baud") {
		ep.Serial.BaudRate = opts.baud
	}
	if flags.Changed("data-bits") {
		ep.Serial.DataBits = opts.dataBits
	}
	if flags.Changed("parity") {
		p, err := transport.ParseParity(opts.parity)
		if err != nil {
			return ep, err
		}
		ep.Serial.Parity = p
	}
	if flags.Changed("stop-bits") {
		sb, err := transport.ParseStopBits(opts.stopBits)
		if err != nil {
			return ep, err
		}
		ep.Serial.StopBits = sb
	}
	if flags.Changed("mode") {
		enc, err := frame.ParseEncoding(opts.mode)
		if err != nil {
			return ep, err
		}
		ep.Mode = enc
	}
	if flags.Changed("address") {
		if opts.address < 0 || opts.address > 255 {
			return ep, fmt.Errorf("%w: address %d out of range [0, 255]", config.ErrInvalid, opts.address)
		}
		ep.Address = byte(opts.address)
	}
	if flags.Changed("timeout") {
		ep.Timeout = opts.timeout
	}
	if flags.Changed("retries") {
		ep.Retries = opts.retries
	}
	if flags.Changed("ascii-char-timeout") {
		ep.ASCIICharTimeout = opts.asciiCharTimeout
	}
	if flags.Changed("rtu-char-timeout") {
		ep.RTUCharTimeout = opts.rtuCharTimeout
	}

	if ep.Port == "" {
		return ep, fmt.Errorf("%w: no port given, use --port or the config file", config.ErrInvalid)
	}

	return ep, ep.Validate()
}

// openPort opens the serial device or TCP connection named by ep.Port.
func (opts *rootOptions) openPort(ep config.Endpoint) (transport.Port, error) {
	if ep.IsTCP() {
		port, err := transport.DialTCP(ep.TCPAddress(), opts.dialTimeout)
		if err != nil {
			return nil, err
		}

		return port, nil
	}

	port, err := transport.OpenSerial(ep.Port, ep.Serial)
	if err != nil {
		return nil, err
	}

	return port, nil
}

func describe(ep config.Endpoint) string {
	if ep.IsTCP() {
		return fmt.Sprintf("%s, %s mode", ep.Port, ep.Mode)
	}

	return fmt.Sprintf("%s @ %d baud, %s mode", ep.Port, ep.Serial.BaudRate, ep.Mode)
}
