package main

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"matrixci/internal/core"
)

// StepRequest asks the agent to execute one shell step.
type StepRequest struct {
	Variant        string `json:"variant"`
	Step           string `json:"step"`
	Cmd            string `json:"cmd"`
	Dir            string `json:"dir,omitempty"`
	TimeoutMinutes int    `json:"timeoutMinutes,omitempty"`
}

// StepResponse reports the outcome back to the caller.
type StepResponse struct {
	Variant  string `json:"variant"`
	Step     string `json:"step"`
	Status   string `json:"status"`
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
}

var log = logrus.New()

func handleRunStep(w http.ResponseWriter, r *http.Request) {
	var req StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.WithFields(logrus.Fields{"variant": req.Variant, "step": req.Step}).Info("agent running step")

	exec := core.NewExecutor()
	timeout := time.Duration(req.TimeoutMinutes) * time.Minute
	res, err := exec.RunShell(r.Context(), req.Cmd, req.Dir, os.Environ(), timeout)

	status := string(core.StatusSucceeded)
	if err != nil {
		status = string(core.StatusFailed)
	}
	resp := StepResponse{
		Variant:  req.Variant,
		Step:     req.Step,
		Status:   status,
		ExitCode: res.ExitCode,
		Output:   res.Output,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func main() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/run", handleRunStep)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })

	port := os.Getenv("MATRIXCI_AGENT_PORT")
	if port == "" {
		port = "9090"
	}
	log.WithField("port", port).Info("matrixci agent running")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.WithError(err).Fatal("agent stopped")
	}
}
