package leakix

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const bulkBody = `{"events":[{"ip":"1.1.1.1"},{"ip":"2.2.2.2"}]}
this line is not json
{"ip":"3.3.3.3"}
`

// bulkServer answers the privilege probe as a pro key and serves a
// three-line export.
func bulkServer(t *testing.T, bulkHits *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			if r.URL.Query().Get("q") != probePlugin {
				t.Errorf("unexpected search query %q", r.URL.Query().Get("q"))
			}
			w.Write([]byte(`[{"ip":"9.9.9.9"}]`))
		case "/bulk/search":
			atomic.AddInt32(bulkHits, 1)
			if got := r.Header.Get("Accept"); got != "" {
				t.Errorf("bulk request should not send Accept, got %q", got)
			}
			w.Write([]byte(bulkBody))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func TestBulk_Stream(t *testing.T) {
	var bulkHits int32
	srv := bulkServer(t, &bulkHits)
	defer srv.Close()

	cl := testClient(t, srv, nil)
	st, err := cl.Search(context.Background(), SearchRequest{Query: "x", Bulk: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	recs, err := st.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records with the bad line skipped, got %d", len(recs))
	}
	want := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}
	for i, w := range want {
		if got := recs[i].Get("ip").Str(); got != w {
			t.Errorf("record %d ip = %q, want %q", i, got, w)
		}
	}
}

func TestBulk_CachesOnCleanEOF(t *testing.T) {
	var bulkHits int32
	srv := bulkServer(t, &bulkHits)
	defer srv.Close()

	c := testCache(t)
	cl := testClient(t, srv, c)

	run := func() []string {
		st, err := cl.Search(context.Background(), SearchRequest{Query: "x", Bulk: true})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		recs, err := st.Collect()
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}
		var ips []string
		for _, r := range recs {
			ips = append(ips, r.Get("ip").Str())
		}
		return ips
	}

	first := run()
	if n := atomic.LoadInt32(&bulkHits); n != 1 {
		t.Fatalf("expected 1 export request, got %d", n)
	}
	second := run()
	if n := atomic.LoadInt32(&bulkHits); n != 1 {
		t.Errorf("cached replay should not refetch, got %d export requests", n)
	}
	if len(first) != len(second) {
		t.Fatalf("replay differs: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("replay record %d differs: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestBulk_EarlyCloseCachesNothing(t *testing.T) {
	var bulkHits int32
	srv := bulkServer(t, &bulkHits)
	defer srv.Close()

	c := testCache(t)
	cl := testClient(t, srv, c)

	st, err := cl.Search(context.Background(), SearchRequest{Query: "x", Bulk: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !st.Next() {
		t.Fatalf("expected a first record, err %v", st.Err())
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A partial export must not be replayed; the next run fetches live.
	st2, err := cl.Search(context.Background(), SearchRequest{Query: "x", Bulk: true})
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	recs, err := st2.Collect()
	if err != nil {
		t.Fatalf("second Collect: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected the full export on refetch, got %d records", len(recs))
	}
	if n := atomic.LoadInt32(&bulkHits); n != 2 {
		t.Errorf("expected 2 export requests, got %d", n)
	}
}

func TestBulk_ContextCancel(t *testing.T) {
	var bulkHits int32
	srv := bulkServer(t, &bulkHits)
	defer srv.Close()

	cl := testClient(t, srv, nil)
	ctx, cancel := context.WithCancel(context.Background())
	st, err := cl.Search(ctx, SearchRequest{Query: "x", Bulk: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	defer st.Close()
	if !st.Next() || !st.Next() {
		t.Fatalf("expected two records before cancel, err %v", st.Err())
	}
	cancel()
	if st.Next() {
		t.Fatal("expected Next to stop after cancel")
	}
	if !errors.Is(st.Err(), context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", st.Err())
	}
}

func TestBulk_NonProFallsBackToPages(t *testing.T) {
	var bulkHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			if r.URL.Query().Get("q") == probePlugin {
				// Free keys get an empty body on pro-only plugins.
				return
			}
			if r.URL.Query().Get("page") == "0" {
				w.Write([]byte(`[{"ip":"1.1.1.1"}]`))
				return
			}
			w.Write([]byte(`[]`))
		case "/bulk/search":
			atomic.AddInt32(&bulkHits, 1)
			w.Write([]byte(bulkBody))
		}
	}))
	defer srv.Close()

	cl := testClient(t, srv, nil)
	st, err := cl.Search(context.Background(), SearchRequest{Query: "x", Bulk: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	recs, err := st.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected the paged result, got %d records", len(recs))
	}
	if n := atomic.LoadInt32(&bulkHits); n != 0 {
		t.Errorf("free key must not touch the export endpoint, got %d requests", n)
	}
}
