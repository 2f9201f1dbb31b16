package tasks

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"matrixci/internal/core"
	"matrixci/internal/report"
	"matrixci/internal/security"
)

// PublishTestResults implements PublishTestResults@2: parse the JUnit report
// a test step wrote, sign the summary payload and upload it to the results
// server. Steps referencing it usually carry condition succeededOrFailed()
// so the report goes up even when the tests failed.
type PublishTestResults struct {
	// ServerURL is the results server base URL. Empty means no upload; the
	// summary is still computed and logged so the always-run step cannot be
	// lost to missing configuration.
	ServerURL string
	Client    *http.Client
	Log       *logrus.Logger

	// Signing key for the upload. Optional; unsigned uploads are accepted
	// by servers that choose to.
	Priv ed25519.PrivateKey
	Pub  ed25519.PublicKey
}

func (p *PublishTestResults) Ref() string { return "PublishTestResults@2" }

// Run reads inputs testResultsFiles (path, relative to the variant
// workspace) and testRunTitle.
func (p *PublishTestResults) Run(ctx context.Context, inputs map[string]string, tc core.TaskContext) (string, error) {
	log := p.Log
	if log == nil {
		log = logrus.New()
	}

	path := inputs["testResultsFiles"]
	if path == "" {
		return "", fmt.Errorf("publish: input testResultsFiles is required")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(tc.WorkDir, path)
	}

	suites, err := report.ParseJUnitFile(path)
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	title := inputs["testRunTitle"]
	if title == "" {
		title = tc.Variant
	}
	sum := suites.Summarize(title)

	result := report.PublishedResult{
		RunID:     tc.RunID,
		Variant:   tc.Variant,
		Title:     title,
		Summary:   sum,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	out := fmt.Sprintf("test run %q: %d total, %d passed, %d failed, %d errored, %d skipped",
		title, sum.Total, sum.Passed, sum.Failed, sum.Errored, sum.Skipped)

	if p.ServerURL == "" {
		log.WithField("title", title).Info("no results server configured, summary kept local")
		return out, nil
	}
	if err := p.upload(ctx, result); err != nil {
		return out, fmt.Errorf("publish: %w", err)
	}
	log.WithFields(logrus.Fields{"title": title, "server": p.ServerURL}).Info("test results published")
	return out + " (published)", nil
}

func (p *PublishTestResults) upload(ctx context.Context, result report.PublishedResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	up := report.Upload{Result: payload}
	if len(p.Priv) > 0 {
		up.Signature = security.SignData(p.Priv, payload)
		up.PubKey = fmt.Sprintf("%x", []byte(p.Pub))
	}
	body, err := json.Marshal(up)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ServerURL+"/results", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server rejected upload: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}
