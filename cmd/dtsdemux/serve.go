package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/dtsflow/certs"
	"github.com/zsiec/dtsflow/discovery"
	"github.com/zsiec/dtsflow/distribution"
	"github.com/zsiec/dtsflow/ingest"
	srtingest "github.com/zsiec/dtsflow/ingest/srt"
	"github.com/zsiec/dtsflow/pipeline"
	"github.com/zsiec/dtsflow/stream"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the SRT ingest + QUIC distribution relay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "srt-addr", Value: envOr("SRT_ADDR", ":6000"), Usage: "SRT listen address"},
			&cli.StringFlag{Name: "quic-addr", Value: envOr("QUIC_ADDR", ":4443"), Usage: "QUIC distribution listen address"},
			&cli.StringFlag{Name: "api-addr", Value: envOr("API_ADDR", ":4444"), Usage: "REST API address, logged at startup (serve starts no HTTP listener)"},
			&cli.BoolFlag{Name: "mdns", Usage: "advertise this relay over mDNS"},
			&cli.StringFlag{Name: "language", Value: envOr("DTS_LANGUAGE", ""), Usage: "stream language (ISO 639 code) announced in StreamFormat"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	srtAddr := c.String("srt-addr")
	quicAddr := c.String("quic-addr")
	apiAddr := c.String("api-addr")

	slog.Info("generating self-signed certificate")
	cert, err := certs.Generate(14 * 24 * time.Hour)
	if err != nil {
		return err
	}
	slog.Info("certificate generated",
		"fingerprint", cert.FingerprintBase64(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	a := &app{mgr: stream.NewManager(nil), language: c.String("language")}

	g, ctx := errgroup.WithContext(ctx)

	a.registry = ingest.NewRegistry(func(key string, input io.Reader, format ingest.Format) {
		a.handleNewStream(ctx, key, input, format)
	})
	a.srtCaller = srtingest.NewCaller(a.registry, nil)

	a.distSrv, err = distribution.NewServer(distribution.ServerConfig{
		Addr:         quicAddr,
		Cert:         cert,
		StreamLister: a.listStreams,
	})
	if err != nil {
		return err
	}

	srtSrv := srtingest.NewServer(srtAddr, a.registry, nil)

	slog.Info("dtsdemux serve starting",
		"version", version,
		"srt", srtAddr,
		"quic", quicAddr,
		"api", apiAddr,
		"cert_hash", cert.FingerprintBase64(),
	)

	g.Go(func() error {
		return srtSrv.Start(ctx)
	})

	g.Go(func() error {
		return a.distSrv.Start(ctx)
	})

	if c.Bool("mdns") {
		mgr := discovery.NewManager(discovery.Config{ServiceName: "dtsdemux", Port: 4443})
		if err := mgr.Advertise(); err != nil {
			slog.Warn("mdns advertise failed", "error", err)
		} else {
			go func() {
				<-ctx.Done()
				mgr.Stop()
			}()
		}
	}

	return g.Wait()
}

type app struct {
	mgr       *stream.Manager
	registry  *ingest.Registry
	srtCaller *srtingest.Caller
	distSrv   *distribution.Server
	language  string
}

func (a *app) listStreams() []distribution.StreamInfo {
	streams := a.mgr.List()
	infos := make([]distribution.StreamInfo, len(streams))
	for i, s := range streams {
		relay := a.distSrv.GetRelay(s.Key)
		viewers := 0
		if relay != nil {
			viewers = relay.ViewerCount()
		}
		info := distribution.StreamInfo{
			Key:     s.Key,
			Viewers: viewers,
		}

		if p := a.distSrv.GetPipeline(s.Key); p != nil {
			snap := p.StreamSnapshot()
			info.SampleRate = snap.Audio.SampleRate
			info.Channels = snap.Audio.Channels
			info.Protocol = snap.Protocol
			info.UptimeMs = snap.UptimeMs
		}

		infos[i] = info
	}
	return infos
}

func (a *app) handleNewStream(ctx context.Context, key string, input io.Reader, _ ingest.Format) {
	slog.Info("new stream from ingest", "key", key)

	if _, created := a.mgr.Create(key); !created {
		slog.Warn("rejecting duplicate stream connection", "key", key)
		return
	}
	defer a.teardownStream(key)

	relay := a.distSrv.RegisterStream(key)

	p := pipeline.New(key, input, relay, a.language)
	p.SetProtocol("SRT")
	if s, ok := a.registry.Get(key); ok {
		p.SetIngestSource(s)
	}
	a.distSrv.SetPipeline(key, p)

	if err := p.Run(ctx); err != nil {
		slog.Error("pipeline error", "stream", key, "error", err)
	}
	slog.Info("stream ended", "key", key)
}

func (a *app) teardownStream(key string) {
	a.distSrv.UnregisterStream(key)
	a.mgr.Remove(key)
}
