package control

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/speakr/speakr/internal/app"
	"github.com/speakr/speakr/internal/capture"
	"github.com/speakr/speakr/internal/config"
	"github.com/speakr/speakr/internal/observability"
	"github.com/speakr/speakr/internal/tts"
)

// Menu is the application surface exposed to control clients
type Menu interface {
	State() app.State
	SelectDevice(index int) error
	RefreshDevices() error
	SetVoice(voice string) error
	SetSpeed(speed float64) float64
	SetEchoMode(enabled bool)
	StopSpeech()
}

// Options configures a Server
type Options struct {
	Addr           string
	MetricsEnabled bool
	Checks         map[string]observability.HealthCheckFunc
}

// Server is the local HTTP control surface
type Server struct {
	menu   Menu
	hub    *app.Hub
	opts   Options
	logger zerolog.Logger
	http   *http.Server
}

// NewServer creates a control server; call ListenAndServe to start it
func NewServer(menu Menu, hub *app.Hub, opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		menu:   menu,
		hub:    hub,
		opts:   opts,
		logger: logger,
	}
	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", observability.HealthCheckHandler(config.Version))
	mux.HandleFunc("GET /ready", observability.ReadinessHandler(config.Version, s.opts.Checks))
	if s.opts.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /device", s.handleDevice)
	mux.HandleFunc("POST /devices/refresh", s.handleRefresh)
	mux.HandleFunc("POST /voice", s.handleVoice)
	mux.HandleFunc("POST /speed", s.handleSpeed)
	mux.HandleFunc("POST /echo", s.handleEcho)
	mux.HandleFunc("POST /speech/stop", s.handleStop)
	mux.HandleFunc("GET /events", s.handleEvents)

	return mux
}

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info().
		Str("addr", s.opts.Addr).
		Str("events", "ws://"+s.opts.Addr+"/events").
		Bool("metrics_enabled", s.opts.MetricsEnabled).
		Msg("Control server listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for handlers to finish
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.menu.State())
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("index must be an integer"))
		return
	}

	switch err := s.menu.SelectDevice(index); {
	case errors.Is(err, capture.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, capture.ErrRecording):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info().Int("device_index", index).Msg("Device selected via control")
	writeJSON(w, http.StatusOK, s.menu.State())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.menu.RefreshDevices(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, capture.ErrRecording) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, s.menu.State())
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if err := s.menu.SetVoice(name); err != nil {
		if errors.Is(err, tts.ErrUnknownVoice) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.menu.State())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	speed, err := strconv.ParseFloat(r.URL.Query().Get("value"), 64)
	if err != nil || math.IsNaN(speed) || math.IsInf(speed, 0) {
		writeError(w, http.StatusBadRequest, errors.New("value must be a number"))
		return
	}
	s.menu.SetSpeed(speed)
	writeJSON(w, http.StatusOK, s.menu.State())
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("enabled must be true or false"))
		return
	}
	s.menu.SetEchoMode(enabled)
	writeJSON(w, http.StatusOK, s.menu.State())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.menu.StopSpeech()
	writeJSON(w, http.StatusOK, s.menu.State())
}
