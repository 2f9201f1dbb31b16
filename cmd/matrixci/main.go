package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"matrixci/internal/core"
	"matrixci/internal/journal"
	"matrixci/internal/security"
	"matrixci/internal/tasks"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  matrixci validate <pipeline.yml>")
	fmt.Println("  matrixci run <pipeline.yml>")
	fmt.Println("  matrixci submit <pipeline.yml>")
	fmt.Println("  matrixci journal verify <journal.jsonl>")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 3 {
		usage()
	}

	switch os.Args[1] {
	case "validate":
		pipeline, err := core.LoadPipeline(os.Args[2])
		if err != nil {
			fmt.Println("❌ Invalid pipeline:", err)
			os.Exit(1)
		}
		registry := tasks.NewRegistry(&tasks.PublishTestResults{})
		for _, job := range pipeline.Jobs {
			for _, step := range job.Steps {
				if step.IsTask() && !registry.Known(step.Task) {
					fmt.Printf("❌ Invalid pipeline: job %q references unknown task %q\n", job.Name(), step.Task)
					os.Exit(1)
				}
			}
		}
		fmt.Println("✅ Pipeline is valid")

	case "run":
		runPipeline(os.Args[2])

	case "submit":
		submitPipeline(os.Args[2])

	case "journal":
		if os.Args[2] != "verify" || len(os.Args) < 4 {
			usage()
		}
		jnl, err := journal.Open(os.Args[3])
		if err != nil {
			fmt.Println("❌ Failed to open journal:", err)
			os.Exit(1)
		}
		if err := jnl.Verify(); err != nil {
			fmt.Println("❌ Verification FAILED:", err)
			os.Exit(1)
		}
		fmt.Println("✅ Journal verification OK")

	default:
		usage()
	}
}

func runPipeline(path string) {
	pipeline, err := core.LoadPipeline(path)
	if err != nil {
		fmt.Println("❌ Failed to load pipeline:", err)
		os.Exit(1)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	workDir := os.Getenv("MATRIXCI_WORKDIR")
	if workDir == "" {
		workDir = "./work"
	}

	publish := &tasks.PublishTestResults{
		ServerURL: os.Getenv("MATRIXCI_SERVER"),
		Log:       log,
	}
	if keysDir := os.Getenv("MATRIXCI_KEYS_DIR"); keysDir != "" {
		pub, priv, err := security.EnsureKeyPair(keysDir)
		if err != nil {
			fmt.Println("❌ Failed to init publish keys:", err)
			os.Exit(1)
		}
		publish.Pub, publish.Priv = pub, priv
	}

	runner := core.NewRunner(workDir, tasks.NewRegistry(publish), log)
	run, err := runner.RunPipeline(context.Background(), pipeline)
	if err != nil {
		fmt.Println("❌ Pipeline failed to run:", err)
		os.Exit(1)
	}

	fmt.Println(core.PrintSummary(run))
	os.Exit(run.Summary.ExitCode())
}

func submitPipeline(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println("❌ Failed to read pipeline file:", err)
		os.Exit(1)
	}
	// Parse locally first so obvious mistakes never leave the machine.
	if _, err := core.ParsePipeline(data); err != nil {
		fmt.Println("❌ Invalid pipeline:", err)
		os.Exit(1)
	}

	server := os.Getenv("MATRIXCI_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	resp, err := http.Post(server+"/pipelines", "application/x-yaml", bytes.NewReader(data))
	if err != nil {
		fmt.Println("❌ Failed to send request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Println("✅ Server response:", string(bytes.TrimSpace(body)))
}
