package main

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// workerTrigger satisfies httpapi.SchedulerTrigger by calling across the
// two-process topology into the worker's own diagnostic HTTP server
// (cmd/shiptrack-worker/http.go's POST /trigger); the api process never
// touches the poll scheduler directly, it only asks the worker to run one.
type workerTrigger struct {
	baseURL string
	client  *http.Client
}

func newWorkerTrigger(baseURL string) *workerTrigger {
	return &workerTrigger{baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Second}}
}

func (t *workerTrigger) Trigger(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/trigger", nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("worker trigger returned status %d", resp.StatusCode)
	}
	return nil
}
