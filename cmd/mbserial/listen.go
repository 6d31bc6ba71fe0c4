package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-mbserial/command"
	"github.com/arloliu/go-mbserial/slave"
)

type listenOptions struct {
	text         string
	pollInterval time.Duration
}

func newListenCmd(root *rootOptions) *cobra.Command {
	opts := &listenOptions{}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Answer requests as the slave at --address",
		Long: `Run a slave that answers the sample commands until interrupted:

  command 1 (write-text)  prints the received text, no response
  command 2 (read-text)   responds with --text

Frames addressed to other slaves are ignored. Broadcast frames are
processed but never answered.`,
		Example: `  mbserial listen -p /dev/ttyUSB1 -a 1
  mbserial listen -p /dev/ttyUSB1 -m rtu -a 17 --text "unit 17 ready"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListen(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.text, "text", command.DefaultReadText, "Text returned for read-text requests")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 0, "Re-check for shutdown at this interval while idle (0 blocks)")

	return cmd
}

func runListen(cmd *cobra.Command, root *rootOptions, opts *listenOptions) error {
	ep, err := root.endpoint(cmd)
	if err != nil {
		return err
	}

	cfg, err := slave.NewConfig(ep.Address,
		slave.WithEncoding(ep.Mode),
		slave.WithASCIICharTimeout(ep.EffectiveASCIICharTimeout()),
		slave.WithRTUCharTimeout(ep.EffectiveRTUCharTimeout()),
		slave.WithPollInterval(opts.pollInterval),
		slave.WithLogger(root.logger),
	)
	if err != nil {
		return err
	}

	port, err := root.openPort(ep)
	if err != nil {
		return err
	}

	s, err := slave.New(port, cfg)
	if err != nil {
		_ = port.Close()
		return err
	}

	out := cmd.OutOrStdout()
	var outMu sync.Mutex
	command.Register(s, func(text string) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, "received text: %s\n", text)
	}, opts.text)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "listening on %s as slave %d\n", describe(ep), ep.Address)

	done := make(chan error, 1)
	go func() { done <- s.Listen(context.WithoutCancel(ctx)) }()

	select {
	case err := <-done:
		_ = s.Close()
		return err
	case <-ctx.Done():
	}

	if err := s.Close(); err != nil {
		return err
	}

	return <-done
}
