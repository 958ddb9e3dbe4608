package reqpipe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reqpipe/reqpipe"
	"github.com/reqpipe/reqpipe/pipeline"
)

func TestNewEngine(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(ts.Close)

	e, err := reqpipe.NewEngine(pipeline.WithClient(ts.Client()))
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}

	d, err := pipeline.NewDescriptor(http.MethodGet, ts.URL, "/health")
	if err != nil {
		t.Fatalf("building descriptor: %v", err)
	}

	var model struct {
		Status string `json:"status"`
	}
	if err := e.Start(context.Background(), d, pipeline.WithModel(&model)); err != nil {
		t.Fatalf("starting request: %v", err)
	}
	if model.Status != "ok" {
		t.Errorf("expected status ok, got %q", model.Status)
	}
}

func TestNewEngine_NilOption(t *testing.T) {
	if _, err := reqpipe.NewEngine(pipeline.WithClient(nil)); err == nil {
		t.Error("expected an error for a nil client")
	}
}
