package providers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"audioshelf/internal/providers"
)

func TestQueryNormalization(t *testing.T) {
	q := providers.Query{Title: "  Dune ", ISBN: "978-0-441-01359-3", ASIN: " b002v1of70 "}.Normalized()
	if q.Title != "Dune" || q.ISBN != "9780441013593" || q.ASIN != "B002V1OF70" {
		t.Fatalf("unexpected normalized query %+v", q)
	}
	if !(providers.Query{Author: "x"}).IsEmpty() {
		t.Fatal("author-only query should be empty")
	}
	if providers.NormalizeISBN("0-8044-2957-x") != "080442957X" {
		t.Fatal("expected upper-case check digit")
	}
}

func TestYearFromDate(t *testing.T) {
	cases := map[string]string{"2005-08-02": "2005", "1965": "1965", "May 2005": "", "": ""}
	for in, want := range cases {
		if got := providers.YearFromDate(in); got != want {
			t.Fatalf("YearFromDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetJSONStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != providers.UserAgent {
			t.Errorf("missing user agent")
		}
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"value":"x"}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	t.Cleanup(server.Close)

	var out struct{ Value string }
	if err := providers.GetJSON(context.Background(), server.Client(), server.URL+"/ok", nil, &out); err != nil || out.Value != "x" {
		t.Fatalf("ok: %v %+v", err, out)
	}
	if err := providers.GetJSON(context.Background(), server.Client(), server.URL+"/missing", nil, &out); !errors.Is(err, providers.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if err := providers.GetJSON(context.Background(), server.Client(), server.URL+"/busy", nil, &out); err == nil {
		t.Fatal("expected error for 429")
	}
}
