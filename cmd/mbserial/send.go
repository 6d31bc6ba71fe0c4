package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-mbserial/command"
	"github.com/arloliu/go-mbserial/frame"
	"github.com/arloliu/go-mbserial/master"
)

type sendOptions struct {
	code            int
	data            string
	hexData         bool
	writeNoResponse bool
}

func newSendCmd(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one request as master and print the response",
		Long: `Send one request to the slave at --address and print its response.

The transaction is retried up to --retries times when no valid response
arrives within --timeout. Requests to address 0 are broadcast and not
answered. By default write-text requests (command 1) are not answered
either; pass --write-no-response=false for slaves that do answer them.

The command exits with status 1 when the transaction fails.`,
		Example: `  mbserial send -p /dev/ttyUSB0 -a 1 --command 2
  mbserial send -p /dev/ttyUSB0 -m rtu -a 17 --command 1 --data "Hello slave"
  mbserial send -p tcp://10.0.0.5:4001 -a 1 --command 3 --hex --data 006B0003`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, root, opts)
		},
	}

	cmd.Flags().IntVar(&opts.code, "command", int(command.CodeReadText), "Command code (0-255)")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "Request body")
	cmd.Flags().BoolVar(&opts.hexData, "hex", false, "Treat --data as hex and print responses as hex")
	cmd.Flags().BoolVar(&opts.writeNoResponse, "write-no-response", true, "Do not wait for a response to write-text requests")

	return cmd
}

func runSend(cmd *cobra.Command, root *rootOptions, opts *sendOptions) error {
	ep, err := root.endpoint(cmd)
	if err != nil {
		return err
	}

	if opts.code < 0 || opts.code > 255 {
		return fmt.Errorf("command code %d out of range [0, 255]", opts.code)
	}

	body, err := requestBody(opts.data, opts.hexData)
	if err != nil {
		return err
	}

	mopts := []master.Option{
		master.WithEncoding(ep.Mode),
		master.WithTimeout(ep.Timeout),
		master.WithRetryLimit(ep.Retries),
		master.WithASCIICharTimeout(ep.EffectiveASCIICharTimeout()),
		master.WithRTUCharTimeout(ep.EffectiveRTUCharTimeout()),
		master.WithLogger(root.logger),
	}
	if opts.writeNoResponse {
		mopts = append(mopts, master.WithNoResponse(command.WriteTextNoResponse))
	}

	cfg, err := master.NewConfig(mopts...)
	if err != nil {
		return err
	}

	port, err := root.openPort(ep)
	if err != nil {
		return err
	}
	defer port.Close()

	m, err := master.New(port, cfg)
	if err != nil {
		return err
	}

	root.logger.Debug("send request", "port", describe(ep), "address", ep.Address, "code", opts.code)

	resp, err := m.Send(cmd.Context(), ep.Address, byte(opts.code), body)
	if err != nil {
		return err
	}

	printResponse(cmd.OutOrStdout(), ep.Address, byte(opts.code), resp, opts.hexData)

	return nil
}

func requestBody(data string, isHex bool) ([]byte, error) {
	if !isHex {
		return []byte(data), nil
	}

	clean := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(data)
	body, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}

	return body, nil
}

func printResponse(w io.Writer, addr, code byte, resp *frame.Frame, asHex bool) {
	if resp == nil {
		if addr == frame.BroadcastAddress {
			fmt.Fprintf(w, "broadcast command %d sent\n", code)
		} else {
			fmt.Fprintf(w, "command %d sent to %d, no response expected\n", code, addr)
		}

		return
	}

	fmt.Fprintf(w, "response from %d, command %d: %s\n", resp.Address, resp.Code, formatBody(resp.Body, asHex))
}

// formatBody renders printable UTF-8 bodies as quoted text and anything
// else as hex.
func formatBody(body []byte, asHex bool) string {
	if len(body) == 0 {
		return "(empty)"
	}

	if !asHex && utf8.Valid(body) && isPrintable(string(body)) {
		return fmt.Sprintf("%q", body)
	}

	return fmt.Sprintf("% X", body)
}

func isPrintable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}

	return true
}
