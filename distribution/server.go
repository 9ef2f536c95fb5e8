package distribution

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/dtsflow/certs"
)

// dtsflowALPN is the QUIC ALPN protocol identifier viewers must negotiate
// to connect to the distribution server.
const dtsflowALPN = "dtsflow-dts/1"

// statsInterval is unused by the QUIC path directly but documents the
// cadence the REST stats endpoint is expected to be polled at.
const statsInterval = 1 * time.Second

// StatsProvider is implemented by the pipeline to supply stream
// statistics for the REST API.
type StatsProvider interface {
	StreamSnapshot() StreamSnapshot
}

// StreamInfo is the JSON-serializable summary of a live stream returned
// by the /api/streams endpoint.
type StreamInfo struct {
	Key        string `json:"key"`
	Viewers    int    `json:"viewers"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	UptimeMs   int64  `json:"uptimeMs,omitempty"`
}

// StreamLister returns the current list of active streams.
type StreamLister func() []StreamInfo

// streamResources bundles the relay and stats provider for a single live
// stream, registered and torn down as a unit.
type streamResources struct {
	relay    *Relay
	pipeline StatsProvider
}

// ServerConfig holds the configuration for the distribution Server.
type ServerConfig struct {
	Addr         string
	Cert         *certs.CertInfo
	StreamLister StreamLister
}

// Server accepts viewer QUIC connections, resolves the requested stream
// key, and wires each connection to the corresponding Relay as a Viewer.
// It also serves a small REST API for stream discovery and stats.
type Server struct {
	config    ServerConfig
	listener  *quic.Listener
	nextAlias uint64

	mu      sync.RWMutex
	streams map[string]*streamResources
}

// NewServer creates a distribution Server with the given configuration.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Cert == nil {
		return nil, errors.New("distribution: Cert is required")
	}
	if config.Addr == "" {
		return nil, errors.New("distribution: Addr is required")
	}
	return &Server{
		config:  config,
		streams: make(map[string]*streamResources),
	}, nil
}

// RegisterStream creates a Relay for the given stream key and returns it.
// If the stream already has a relay, the existing one is returned.
func (s *Server) RegisterStream(streamKey string) *Relay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.relay
	}
	r := NewRelay()
	s.streams[streamKey] = &streamResources{relay: r}
	return r
}

// UnregisterStream removes the relay and pipeline for a stream key.
func (s *Server) UnregisterStream(streamKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, streamKey)
}

// SetPipeline associates a StatsProvider with a stream key. The stream
// must already be registered via RegisterStream.
func (s *Server) SetPipeline(streamKey string, p StatsProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.streams[streamKey]; ok {
		sr.pipeline = p
	}
}

// GetRelay returns the Relay for a stream key, or nil if not found.
func (s *Server) GetRelay(streamKey string) *Relay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.relay
	}
	return nil
}

// GetPipeline returns the StatsProvider registered for a stream key via
// SetPipeline, or nil if the stream has no pipeline attached yet.
func (s *Server) GetPipeline(streamKey string) StatsProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sr, ok := s.streams[streamKey]; ok {
		return sr.pipeline
	}
	return nil
}

// Start launches the QUIC listener, blocking until ctx is cancelled or a
// fatal error occurs. It does not serve the REST API; APIHandler returns
// that API's handler, and Start does not listen for it.
func (s *Server) Start(ctx context.Context) error {
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{s.config.Cert.TLSCert},
		NextProtos:   []string{dtsflowALPN},
	}

	ln, err := quic.ListenAddr(s.config.Addr, tlsConfig, &quic.Config{
		MaxIdleTimeout: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln

	slog.Info("distribution server listening", "addr", s.config.Addr)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection reads the requested stream key from the viewer's
// first bidirectional stream, then hands the connection off to the
// matching Relay as a Viewer for the remainder of its lifetime.
func (s *Server) handleConnection(ctx context.Context, conn quic.Connection) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		slog.Debug("accept request stream failed", "error", err)
		conn.CloseWithError(1, "no request stream")
		return
	}

	buf := make([]byte, 256)
	n, err := stream.Read(buf)
	if err != nil && n == 0 {
		slog.Debug("read stream key failed", "error", err)
		conn.CloseWithError(2, "bad request")
		return
	}
	streamKey := string(buf[:n])
	stream.Close()

	relay := s.GetRelay(streamKey)
	if relay == nil {
		slog.Warn("viewer requested unknown stream", "stream", streamKey)
		conn.CloseWithError(3, "stream not found")
		return
	}

	alias := s.nextTrackAlias()
	session := newViewerSession(conn.Context(), conn, alias)

	relay.AddViewer(session)
	defer relay.RemoveViewer(session.ID())

	slog.Info("viewer connected", "stream", streamKey, "session", session.ID())

	<-conn.Context().Done()
	slog.Info("viewer disconnected", "stream", streamKey, "session", session.ID())
}

func (s *Server) nextTrackAlias() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAlias++
	return s.nextAlias
}

// APIHandler returns an http.Handler serving the stream discovery and
// stats REST API.
func (s *Server) APIHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/streams", s.handleListStreams)
	mux.HandleFunc("GET /api/streams/{key}/stats", s.handleStreamStats)
	mux.HandleFunc("GET /api/cert-hash", s.handleCertHash)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	var resp []StreamInfo
	if s.config.StreamLister != nil {
		resp = s.config.StreamLister()
	}
	if resp == nil {
		resp = make([]StreamInfo, 0)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	streamKey := r.PathValue("key")

	s.mu.RLock()
	sr := s.streams[streamKey]
	s.mu.RUnlock()

	if sr == nil || sr.pipeline == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}

	writeJSON(w, http.StatusOK, sr.pipeline.StreamSnapshot())
}

func (s *Server) handleCertHash(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"hash": s.config.Cert.FingerprintBase64(),
		"addr": s.config.Addr,
	})
}

type statsMessage struct {
	Type        string         `json:"type"`
	Stats       StreamSnapshot `json:"stats"`
	ViewerStats *ViewerStats   `json:"viewerStats,omitempty"`
}
