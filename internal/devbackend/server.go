// Package devbackend is a stand-in reasoning backend for demos and
// end-to-end tests. It serves the four routes the shell calls, with canned
// or echoed answers and the same error shapes as the real service.
package devbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxUploadBytes = 32 << 20

// SupportedExtensions lists the document types the backend accepts.
var SupportedExtensions = []string{".pdf", ".txt", ".md", ".docx"}

// Options tunes the fake behaviour.
type Options struct {
	// ListenDelay emulates the microphone capture window of /listen.
	ListenDelay time.Duration
	// Utterance is what /listen pretends to have heard. Empty means
	// nothing was heard.
	Utterance string
}

// Server holds the single loaded document.
type Server struct {
	opts Options

	mu       sync.RWMutex
	docName  string
	docLines []string
}

// New creates a dev backend.
func New(opts Options) *Server {
	return &Server{opts: opts}
}

// Handler returns the chi router serving the backend routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)

	r.Post("/listen", s.handleListen)
	r.Post("/text-command", s.handleTextCommand)
	r.Post("/upload", s.handleUpload)
	r.Post("/ask-document", s.handleAskDocument)
	return r
}

type reply struct {
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
	UserText    string `json:"user_text,omitempty"`
	FullText    string `json:"full_text,omitempty"`
	SummaryText string `json:"summary_text,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

func writeReply(w http.ResponseWriter, status int, r reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(r)
}

func errorReply(msg string) reply {
	return reply{Status: "error", Message: msg}
}

func answer(userText, text string) reply {
	return reply{UserText: userText, FullText: text, SummaryText: text}
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	if s.opts.ListenDelay > 0 {
		select {
		case <-time.After(s.opts.ListenDelay):
		case <-r.Context().Done():
			return
		}
	}

	heard := strings.TrimSpace(s.opts.Utterance)
	if heard == "" {
		writeReply(w, http.StatusOK, reply{Status: "error", Message: "No input detected"})
		return
	}
	writeReply(w, http.StatusOK, answer(heard, respond(heard)))
}

func decodeInput(r *http.Request) (string, bool) {
	var body struct {
		UserInput *string `json:"user_input"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil || body.UserInput == nil {
		return "", false
	}
	return *body.UserInput, true
}

func (s *Server) handleTextCommand(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeInput(r)
	if !ok {
		writeReply(w, http.StatusOK, errorReply("No input provided"))
		return
	}
	if strings.TrimSpace(input) == "" {
		writeReply(w, http.StatusOK, errorReply("Empty input provided"))
		return
	}
	writeReply(w, http.StatusOK, answer(input, respond(input)))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeReply(w, http.StatusBadRequest, errorReply("No file part"))
		return
	}
	defer file.Close()

	name := filepath.Base(hdr.Filename)
	if name == "" || name == "." || name == "/" {
		writeReply(w, http.StatusBadRequest, errorReply("No selected file"))
		return
	}
	if !supported(name) {
		writeReply(w, http.StatusInternalServerError, errorReply("Error: unsupported format"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeReply(w, http.StatusInternalServerError, errorReply("Error: could not read upload"))
		return
	}

	s.mu.Lock()
	s.docName = name
	s.docLines = splitLines(string(data))
	s.mu.Unlock()

	slog.Info("document loaded", "name", name, "bytes", len(data))
	writeReply(w, http.StatusOK, reply{
		Status:   "success",
		Filename: name,
		Message:  fmt.Sprintf("Successfully processed %s.", name),
	})
}

func (s *Server) handleAskDocument(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeInput(r)
	if !ok {
		writeReply(w, http.StatusBadRequest, errorReply("No input provided"))
		return
	}

	s.mu.RLock()
	name, lines := s.docName, s.docLines
	s.mu.RUnlock()

	if name == "" {
		writeReply(w, http.StatusOK, answer(input, "No document has been loaded yet."))
		return
	}
	if line := bestLine(lines, input); line != "" {
		writeReply(w, http.StatusOK, answer(input, fmt.Sprintf("From %s: %s", name, line)))
		return
	}
	writeReply(w, http.StatusOK, answer(input, fmt.Sprintf("I could not find that in %s.", name)))
}

func respond(input string) string {
	return "You said: " + strings.TrimSpace(input)
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func splitLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// bestLine returns the line sharing the most words with question.
func bestLine(lines []string, question string) string {
	words := strings.Fields(strings.ToLower(question))
	best, bestScore := "", 0
	for _, l := range lines {
		lower := strings.ToLower(l)
		score := 0
		for _, w := range words {
			if len(w) > 2 && strings.Contains(lower, strings.Trim(w, "?.,!")) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = l, score
		}
	}
	return best
}
