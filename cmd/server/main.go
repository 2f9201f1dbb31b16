package main

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"matrixci/internal/core"
	"matrixci/internal/journal"
	"matrixci/internal/report"
	"matrixci/internal/security"
	"matrixci/pkg/utils"
)

var (
	resultsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matrixci_results_received_total",
		Help: "Published test results accepted by the server.",
	})
	resultsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matrixci_results_rejected_total",
		Help: "Published test results rejected (bad payload or signature).",
	})
)

// Server accepts submitted pipelines and published test results, verifies
// upload signatures and journals the records into the hash-chained file.
type Server struct {
	mu        sync.Mutex
	results   []report.PublishedResult
	pipelines map[string]*core.Pipeline
	status    map[string]string
	journal   *journal.Journal
	log       *logrus.Logger
}

func NewServer(log *logrus.Logger) *Server {
	jnlPath := getEnv("MATRIXCI_JOURNAL", "./journal.jsonl")
	jnl, err := journal.Open(jnlPath)
	if err != nil {
		log.WithError(err).Warn("cannot open journal")
	}

	keysDir := getEnv("MATRIXCI_KEYS_DIR", "./keys")
	pub, priv, err := security.EnsureKeyPair(keysDir)
	if err != nil {
		log.WithError(err).Fatal("cannot init server keys")
	}
	if jnl != nil {
		jnl.SetSigner(priv, pub)
	}

	return &Server{
		pipelines: make(map[string]*core.Pipeline),
		status:    make(map[string]string),
		journal:   jnl,
		log:       log,
	}
}

// POST /pipelines -> submit a new pipeline YAML.
func (s *Server) handleSubmitPipeline(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	pipeline, err := core.ParsePipeline(data)
	if err != nil {
		http.Error(w, "invalid pipeline: "+err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.pipelines[id] = pipeline
	s.status[id] = "pending"
	s.mu.Unlock()

	s.log.WithField("pipeline", id).Info("pipeline submitted")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": id, "status": "pending"})
}

// GET /pipelines/{id} -> pipeline status.
func (s *Server) handleGetPipelineStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	status, ok := s.status[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "pipeline not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": id, "status": status})
}

// POST /results -> accept a signed test result upload.
func (s *Server) handlePublishResult(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	var up report.Upload
	if err := json.Unmarshal(body, &up); err != nil || len(up.Result) == 0 {
		resultsRejected.Inc()
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}

	// Signed uploads must verify; the signature covers the raw result bytes.
	if up.Signature != "" {
		ok, err := security.VerifySignatureFromHex(up.PubKey, up.Result, up.Signature)
		if err != nil || !ok {
			resultsRejected.Inc()
			http.Error(w, "signature verification failed", http.StatusUnauthorized)
			return
		}
	}

	var result report.PublishedResult
	if err := json.Unmarshal(up.Result, &result); err != nil {
		resultsRejected.Inc()
		http.Error(w, "invalid result payload", http.StatusBadRequest)
		return
	}

	status := "succeeded"
	if result.Summary.HasFailures() {
		status = "failed"
	}

	recIndex := -1
	if s.journal != nil {
		rec, err := s.journal.AppendStep(result.RunID, result.Variant,
			"PublishTestResults", status, "", utils.HashBytes(up.Result))
		if err != nil {
			s.log.WithError(err).Warn("cannot journal published result")
			http.Error(w, "failed to journal result: "+err.Error(), http.StatusInternalServerError)
			return
		}
		recIndex = rec.Index
	}

	s.mu.Lock()
	s.results = append(s.results, result)
	s.mu.Unlock()

	resultsReceived.Inc()
	s.log.WithFields(logrus.Fields{
		"run":     result.RunID,
		"variant": result.Variant,
		"title":   result.Title,
		"failed":  result.Summary.Failed,
	}).Info("test results received")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "recorded",
		"record": recIndex,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// GET /results -> list received results.
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.results)
}

// GET /journal/verify -> recheck the whole chain.
func (s *Server) handleVerifyJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.journal.Verify(); err != nil {
		http.Error(w, "journal verification failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write([]byte("journal verification ok"))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	s := NewServer(log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/pipelines", s.handleSubmitPipeline)
	r.Get("/pipelines/{id}", s.handleGetPipelineStatus)
	r.Post("/results", s.handlePublishResult)
	r.Get("/results", s.handleListResults)
	r.Get("/journal/verify", s.handleVerifyJournal)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	port := getEnv("MATRIXCI_PORT", "8080")
	log.WithField("port", port).Info("matrixci results server running")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
