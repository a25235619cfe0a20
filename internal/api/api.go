package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"livehost/internal/services/catalog"
	"livehost/internal/services/live"
	"livehost/internal/services/narrator"
	"livehost/internal/storage"
	logx "livehost/pkg/logx"
)

// LiveController is the upstream connection slot.
type LiveController interface {
	Connect(ctx context.Context, username string) error
	Disconnect()
	Status() (live.State, string)
}

// Speaker synthesizes one narration line to mp3 audio.
type Speaker interface {
	Speak(ctx context.Context, text, voice string) ([]byte, error)
}

// CatalogService is the product showcase.
type CatalogService interface {
	Add(ctx context.Context, id int, url string) (catalog.Product, error)
	Snapshot() []catalog.Product
}

// SettingsService owns the dashboard settings record.
type SettingsService interface {
	Settings() storage.Settings
	Update(developerMode *bool, tokenLimit *int64, voice *string) storage.Settings
}

// Streams serves the outbound event feeds.
type Streams interface {
	ServeSSE(w http.ResponseWriter, r *http.Request)
	ServeWS(w http.ResponseWriter, r *http.Request)
}

type Server struct {
	live     LiveController
	speaker  Speaker
	catalog  CatalogService
	settings SettingsService
	streams  Streams
	log      logx.Logger
}

func New(liveCtl LiveController, speaker Speaker, cat CatalogService, settings SettingsService, streams Streams, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		live:     liveCtl,
		speaker:  speaker,
		catalog:  cat,
		settings: settings,
		streams:  streams,
		log:      log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		// The feeds stay open until the client disconnects, so they
		// must not run under the request timeout.
		r.Get("/live/stream", s.streams.ServeSSE)
		r.Get("/live/ws", s.streams.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/live/start", s.handleLiveStart)
			r.Post("/live/stop", s.handleLiveStop)

			r.Post("/tts", s.handleTTS)
			r.Get("/startup", s.handleStartup)

			r.Get("/products", s.handleListProducts)
			r.Post("/products", s.handleAddProduct)

			r.Get("/settings", s.handleGetSettings)
			r.Patch("/settings", s.handlePatchSettings)
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type liveStartRequest struct {
	Username string `json:"username"`
}

type liveStatusResponse struct {
	State   string `json:"state"`
	Channel string `json:"channel,omitempty"`
}

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	var req liveStartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.live.Connect(r.Context(), req.Username); err != nil {
		if errors.Is(err, live.ErrInvalidUsername) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	state, channel := s.live.Status()
	writeJSON(w, http.StatusOK, liveStatusResponse{State: state.String(), Channel: channel})
}

func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	s.live.Disconnect()
	state, channel := s.live.Status()
	writeJSON(w, http.StatusOK, liveStatusResponse{State: state.String(), Channel: channel})
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}
	s.speak(w, r, req.Text, req.Voice)
}

func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	s.speak(w, r, narrator.WelcomeLine, "")
}

// speak is the synthesis boundary: localization runs here, exactly once
// per line, so the unmodified text is what the transcript carries.
func (s *Server) speak(w http.ResponseWriter, r *http.Request, text, voice string) {
	if voice == "" {
		voice = s.settings.Settings().Voice
	}
	audio, err := s.speaker.Speak(r.Context(), narrator.Localize(text), voice)
	if err != nil {
		s.log.Warn("speech synthesis failed", logx.Err(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

type addProductRequest struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.catalog.Add(r.Context(), req.ID, req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Snapshot())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Settings())
}

type patchSettingsRequest struct {
	DeveloperMode *bool   `json:"developerMode,omitempty"`
	TokenLimit    *int64  `json:"tokenLimit,omitempty"`
	Voice         *string `json:"voice,omitempty"`
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var req patchSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated := s.settings.Update(req.DeveloperMode, req.TokenLimit, req.Voice)
	writeJSON(w, http.StatusOK, updated)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
