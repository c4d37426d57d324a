package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edgesim/manager"
)

func testServer(t *testing.T) (*Server, *manager.RunManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mgr := manager.NewRunManager(nil, nil, zerolog.Nop())
	t.Cleanup(mgr.Shutdown)
	return NewServer(mgr, zerolog.Nop()), mgr
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var parsed map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("parse response %q: %v", w.Body.String(), err)
		}
	}
	return w, parsed
}

func TestSubmitBacktest(t *testing.T) {
	t.Run("should accept a demo run", func(t *testing.T) {
		s, _ := testServer(t)
		w, resp := doJSON(t, s, http.MethodPost, "/api/backtest", SubmitRequest{DemoDays: 2, DemoSeed: 3})
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %v", w.Code, resp)
		}
		if resp["id"] == "" {
			t.Error("missing run id")
		}
	})

	t.Run("should return 400 without a bar source", func(t *testing.T) {
		s, _ := testServer(t)
		w, resp := doJSON(t, s, http.MethodPost, "/api/backtest", SubmitRequest{})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if resp["code"] != "NO_BAR_SOURCE" {
			t.Errorf("code = %v, want NO_BAR_SOURCE", resp["code"])
		}
	})

	t.Run("should return 400 for an unreadable bars file", func(t *testing.T) {
		s, _ := testServer(t)
		w, resp := doJSON(t, s, http.MethodPost, "/api/backtest", SubmitRequest{BarsFile: "/does/not/exist.csv"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if resp["code"] != "INVALID_BARS" {
			t.Errorf("code = %v, want INVALID_BARS", resp["code"])
		}
	})

	t.Run("should return 400 for malformed json", func(t *testing.T) {
		s, _ := testServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/backtest", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestGetBacktest(t *testing.T) {
	t.Run("should return 404 for an unknown run", func(t *testing.T) {
		s, _ := testServer(t)
		w, resp := doJSON(t, s, http.MethodGet, "/api/backtest/nope", nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
		if resp["code"] != "RUN_NOT_FOUND" {
			t.Errorf("code = %v, want RUN_NOT_FOUND", resp["code"])
		}
	})

	t.Run("should expose run outputs once completed", func(t *testing.T) {
		s, mgr := testServer(t)
		_, resp := doJSON(t, s, http.MethodPost, "/api/backtest", SubmitRequest{DemoDays: 2, DemoSeed: 3})
		id, _ := resp["id"].(string)
		if id == "" {
			t.Fatal("missing run id")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if _, _, err := mgr.Wait(ctx, id); err != nil {
			t.Fatalf("Wait: %v", err)
		}

		w, status := doJSON(t, s, http.MethodGet, "/api/backtest/"+id, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status endpoint = %d, want 200", w.Code)
		}
		if status["status"] != "completed" {
			t.Errorf("status = %v, want completed", status["status"])
		}

		w, metrics := doJSON(t, s, http.MethodGet, "/api/backtest/"+id+"/metrics", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("metrics endpoint = %d, want 200: %v", w.Code, metrics)
		}
		if _, ok := metrics["total_r"]; !ok {
			t.Error("metrics payload missing total_r")
		}

		w, trades := doJSON(t, s, http.MethodGet, "/api/backtest/"+id+"/trades", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("trades endpoint = %d, want 200", w.Code)
		}
		if _, ok := trades["trades"]; !ok {
			t.Error("trades payload missing trades list")
		}

		w, list := doJSON(t, s, http.MethodGet, "/api/backtest", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("list endpoint = %d, want 200", w.Code)
		}
		if _, ok := list["runs"]; !ok {
			t.Error("list payload missing runs")
		}
	})

	t.Run("should use 404 with a code while metrics are not ready", func(t *testing.T) {
		s, mgr := testServer(t)
		_, resp := doJSON(t, s, http.MethodPost, "/api/backtest", SubmitRequest{DemoDays: 10, DemoSeed: 3})
		id, _ := resp["id"].(string)
		if id == "" {
			t.Fatal("missing run id")
		}

		// The run may or may not have finished by now; both answers are
		// legal, but a pending run must answer 404 with the code, never 202.
		w, body := doJSON(t, s, http.MethodGet, "/api/backtest/"+id+"/metrics", nil)
		switch w.Code {
		case http.StatusNotFound:
			if body["code"] != "METRICS_NOT_READY" {
				t.Errorf("code = %v, want METRICS_NOT_READY", body["code"])
			}
		case http.StatusOK:
		default:
			t.Errorf("status = %d, want 404 while pending or 200 after completion", w.Code)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if _, _, err := mgr.Wait(ctx, id); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	})
}
