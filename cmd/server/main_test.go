package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrixci/internal/core"
	"matrixci/internal/journal"
	"matrixci/internal/report"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	jnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.jsonl"))
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Server{
		pipelines: make(map[string]*core.Pipeline),
		status:    make(map[string]string),
		journal:   jnl,
		log:       log,
	}
}

func uploadBody(t *testing.T, variant string) []byte {
	t.Helper()
	result, err := json.Marshal(report.PublishedResult{
		RunID:   "run-1",
		Variant: variant,
		Title:   "Python " + variant,
		Summary: report.Summary{Total: 1, Passed: 1},
	})
	require.NoError(t, err)
	body, err := json.Marshal(report.Upload{Result: result})
	require.NoError(t, err)
	return body
}

// Simultaneous uploads are the normal case for a matrix job; every accepted
// upload must land in the journal and the chain must stay verifiable.
func TestConcurrentPublishesKeepJournalIntact(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(http.HandlerFunc(s.handlePublishResult))
	defer srv.Close()

	const uploads = 64
	var wg sync.WaitGroup
	codes := make(chan int, uploads)
	for i := 0; i < uploads; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(srv.URL, "application/json",
				bytes.NewReader(uploadBody(t, fmt.Sprintf("Variant%d", i))))
			if err != nil {
				codes <- 0
				return
			}
			defer resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	accepted := 0
	for code := range codes {
		if code == http.StatusOK {
			accepted++
		}
	}
	require.Equal(t, uploads, accepted, "every upload should be accepted")

	assert.Len(t, s.journal.Records(), uploads)
	assert.NoError(t, s.journal.Verify(), "journal chain must survive concurrent publishes")
	s.mu.Lock()
	assert.Len(t, s.results, uploads)
	s.mu.Unlock()
}

func TestPublishRejectsBadSignature(t *testing.T) {
	s := newTestServer(t)

	result, _ := json.Marshal(report.PublishedResult{RunID: "run-1", Variant: "Python36"})
	body, _ := json.Marshal(report.Upload{Result: result, Signature: "deadbeef", PubKey: "00"})

	req := httptest.NewRequest(http.MethodPost, "/results", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handlePublishResult(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, s.journal.Records(), "rejected upload must not be journaled")
}
