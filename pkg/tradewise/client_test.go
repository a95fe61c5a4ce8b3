package tradewise

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080/"
	c := NewClient(baseURL)

	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trimmed baseURL, got %q", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestClientRunBacktest(t *testing.T) {
	var got BacktestRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/backtests" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(BacktestRun{ID: "abc", Symbol: "AAPL", Report: Report{TotalReturn: 0.1}})
	}))
	defer srv.Close()

	run, err := NewClient(srv.URL).RunBacktest(context.Background(), BacktestRequest{
		Symbol: "AAPL", Start: "2024-01-01", End: "2024-06-30", Strategy: "RSI",
		Params: map[string]any{"period": 7},
	})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}
	if run.ID != "abc" || run.Report.TotalReturn != 0.1 {
		t.Errorf("run = %+v", run)
	}
	if got.Strategy != "RSI" || got.Params["period"] != float64(7) {
		t.Errorf("server received %+v", got)
	}
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "run x: not found"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetBacktest(context.Background(), "x")
	if !IsNotFound(err) {
		t.Fatalf("GetBacktest error = %v, want 404", err)
	}
	apiErr := err.(*APIError)
	if apiErr.Message != "run x: not found" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestClientListBacktestsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("strategy") != "RSI" || q.Get("limit") != "5" || q.Has("symbol") {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(RunList{Runs: []RunSummary{{ID: "1"}, {ID: "2"}}})
	}))
	defer srv.Close()

	runs, err := NewClient(srv.URL).ListBacktests(context.Background(), ListOptions{Strategy: "RSI", Limit: 5})
	if err != nil {
		t.Fatalf("ListBacktests: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("got %d runs, want 2", len(runs))
	}
}

func TestClientListStrategiesAndSymbols(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/strategies", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(StrategyList{Strategies: []StrategyInfo{{Name: "RSI"}}})
	})
	mux.HandleFunc("GET /api/symbols", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SymbolList{Market: r.URL.Query().Get("market"), Symbols: []string{"AAPL"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	strategies, err := c.ListStrategies(context.Background())
	if err != nil || len(strategies) != 1 || strategies[0].Name != "RSI" {
		t.Errorf("ListStrategies = %v, %v", strategies, err)
	}
	symbols, err := c.ListSymbols(context.Background(), "us")
	if err != nil || symbols.Market != "us" || len(symbols.Symbols) != 1 {
		t.Errorf("ListSymbols = %+v, %v", symbols, err)
	}
}
