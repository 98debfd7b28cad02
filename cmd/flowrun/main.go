package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"neuro/internal/flow"
	"neuro/internal/models"
)

// flowrun executes a saved flow definition against a running Neuro server
// from the command line: same engine, same facade endpoints, no browser.
//
//	flowrun -file outreach.yaml -server http://localhost:3001 -token $NEURO_TOKEN
//	flowrun -file outreach.yaml -watch

func main() {
	log.SetFlags(0)

	var (
		file     = flag.String("file", "", "flow definition file (.yaml, .yml or .json)")
		server   = flag.String("server", envOr("NEURO_SERVER", "http://localhost:3001"), "Neuro server base URL")
		token    = flag.String("token", os.Getenv("NEURO_TOKEN"), "bearer token (defaults to NEURO_TOKEN)")
		maxIter  = flag.Int("max-iterations", 0, "override the loop block's max iterations (0 = keep the file's value)")
		everyMin = flag.Float64("every-mins", -1, "override the loop block's pause between passes (-1 = keep the file's value)")
		watch    = flag.Bool("watch", false, "re-run whenever the definition file changes")
	)
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	baseURL := strings.TrimRight(*server, "/")

	graph, err := loadGraph(*file, *maxIter, *everyMin)
	if err != nil {
		log.Fatalf("flowrun: %v", err)
	}

	audience, err := fetchAudience(baseURL, *token)
	if err != nil {
		log.Fatalf("flowrun: %v", err)
	}
	log.Printf("flowrun: loaded %d blocks, %d edges, audience of %d", len(graph.Blocks), len(graph.Edges), len(audience))

	if !*watch {
		runOnce(graph, audience, baseURL, *token)
		return
	}

	watchAndRun(*file, *maxIter, *everyMin, audience, baseURL, *token)
}

// runOnce drives a single run to completion, stopping early on SIGINT.
func runOnce(graph models.FlowGraph, audience []models.AudiencePerson, baseURL, token string) {
	runLog := flow.NewRunLog(printLine)
	facade := flow.NewHTTPFacade(baseURL, func() string { return token }, runLog)
	runner := flow.NewRunner(graph, facade)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigChan:
			log.Println("flowrun: stopping...")
			runner.Stop()
		case <-done:
		}
	}()

	passes := runner.Run(context.Background(), audience, runLog)
	close(done)
	log.Printf("flowrun: %d pass(es), %d log lines", passes, runLog.Len())
}

// watchAndRun keeps one run alive per file version: a change stops the
// current run, reloads the definition and starts over. The audience is
// fetched once at startup and reused across re-runs.
func watchAndRun(file string, maxIter int, everyMin float64, audience []models.AudiencePerson, baseURL, token string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatalf("flowrun: watch: %v", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save,
	// which drops a watch registered on the old inode.
	dir := filepath.Dir(file)
	if err := watcher.Add(dir); err != nil {
		log.Fatalf("flowrun: watch %s: %v", dir, err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runner *flow.Runner
	runDone := make(chan struct{})

	start := func() {
		graph, err := loadGraph(file, maxIter, everyMin)
		if err != nil {
			log.Printf("flowrun: %v (waiting for next change)", err)
			close(runDone)
			return
		}
		runLog := flow.NewRunLog(printLine)
		facade := flow.NewHTTPFacade(baseURL, func() string { return token }, runLog)
		runner = flow.NewRunner(graph, facade)
		go func(r *flow.Runner, l *flow.RunLog, done chan struct{}) {
			passes := r.Run(context.Background(), audience, l)
			log.Printf("flowrun: run finished (%d pass(es))", passes)
			close(done)
		}(runner, runLog, runDone)
	}

	start()
	target := filepath.Clean(file)
	var debounce <-chan time.Time

	for {
		select {
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Editors fire several events per save; collapse them.
			debounce = time.After(300 * time.Millisecond)

		case <-debounce:
			debounce = nil
			log.Println("flowrun: definition changed, restarting run")
			if runner != nil {
				runner.Stop()
			}
			<-runDone
			runDone = make(chan struct{})
			start()

		case err := <-watcher.Errors:
			log.Printf("flowrun: watch error: %v", err)

		case <-sigChan:
			log.Println("flowrun: stopping...")
			if runner != nil {
				runner.Stop()
			}
			<-runDone
			return
		}
	}
}

// loadGraph reads a flow definition and applies loop overrides in place.
func loadGraph(path string, maxIter int, everyMin float64) (models.FlowGraph, error) {
	var graph models.FlowGraph

	data, err := os.ReadFile(path)
	if err != nil {
		return graph, fmt.Errorf("read %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &graph)
	} else {
		err = yaml.Unmarshal(data, &graph)
	}
	if err != nil {
		return graph, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(graph.Blocks) == 0 {
		return graph, fmt.Errorf("%s contains no blocks", path)
	}

	for i := range graph.Blocks {
		if graph.Blocks[i].Kind != models.BlockKindLoop {
			continue
		}
		if graph.Blocks[i].Config == nil {
			graph.Blocks[i].Config = map[string]interface{}{}
		}
		if maxIter > 0 {
			graph.Blocks[i].Config["maxIterations"] = maxIter
		}
		if everyMin >= 0 {
			graph.Blocks[i].Config["everyMins"] = everyMin
		}
	}
	return graph, nil
}

// fetchAudience pulls the caller's follower list from the server, the same
// source the builder UI uses before a run.
func fetchAudience(baseURL, token string) ([]models.AudiencePerson, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/network/followers", nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audience: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("fetch audience: %s returned %d: %s", baseURL, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var body struct {
		Items []models.NetworkPerson `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch audience: decode: %w", err)
	}

	audience := make([]models.AudiencePerson, 0, len(body.Items))
	for i := range body.Items {
		audience = append(audience, body.Items[i].AudiencePerson())
	}
	return audience, nil
}

func printLine(line flow.LogLine) {
	fmt.Printf("%s  %s\n", line.At.Format("15:04:05"), line.Text)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
