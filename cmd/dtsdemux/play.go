package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/zsiec/dtsflow/audio/passthrough"
	"github.com/zsiec/dtsflow/dts"
)

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "play a local DTS elementary stream file through IEC 61937 passthrough",
		ArgsUsage: "<file>",
		Action:    runPlay,
	}
}

func runPlay(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: dtsdemux play <file>")
	}
	path := c.Args().First()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	sink := passthrough.NewSink(slog.Default())
	defer sink.Close()

	asm := dts.NewFrameAssembler(sink, func(aerr *dts.AssemblerError) {
		slog.Debug("recovered assembler error", "error", aerr.Err, "state", aerr.State)
	}, "")
	asm.PacketStarted(0, dts.FlagSync)

	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := f.Read(buf)
		if n > 0 {
			asm.Consume(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
