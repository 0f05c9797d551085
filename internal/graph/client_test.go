package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func testClient(serverURL string) *Client {
	return NewClient(Options{
		AccessToken: "test-token",
		Versions:    []string{"v21.0", "v20.0"},
		Timeout:     5 * time.Second,
		RetryCount:  1,
		BaseURL:     serverURL,
	})
}

func TestProbeVersion_FallsBackToWorkingVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v21.0/") {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"unsupported version"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"act_123","account_id":"123","name":"Acme Media","currency":"IDR","account_status":1}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	account, version, err := client.ProbeVersion(context.Background(), "act_123")
	if err != nil {
		t.Fatalf("ProbeVersion failed: %v", err)
	}
	if version != "v20.0" {
		t.Errorf("version = %q, want v20.0", version)
	}
	if account.Name != "Acme Media" || account.Currency != "IDR" {
		t.Errorf("unexpected account: %+v", account)
	}
}

func TestProbeVersion_AllFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad token"}}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, _, err := client.ProbeVersion(context.Background(), "act_123")
	if err == nil {
		t.Fatal("expected error when every version fails")
	}
	if !strings.Contains(err.Error(), ErrNoUsableVersion.Error()) {
		t.Errorf("expected ErrNoUsableVersion, got: %v", err)
	}
}

func TestFetchActivities_SendsCredentialAndFields(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"data":[{"event_type":"charge","event_time":"2024-03-01T10:00:00+0000","extra_data":{}}]}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	page, err := client.FetchActivities(context.Background(), "act_123", "v21.0", url.Values{"since": {"100"}})
	if err != nil {
		t.Fatalf("FetchActivities failed: %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(page.Records))
	}
	if gotQuery.Get("access_token") != "test-token" {
		t.Error("access token not sent")
	}
	if gotQuery.Get("fields") != activityFields {
		t.Errorf("fields = %q", gotQuery.Get("fields"))
	}
	if gotQuery.Get("since") != "100" {
		t.Error("strategy params not merged into query")
	}
}

func TestDrainPages_FollowsCursors(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page2":
			fmt.Fprint(w, `{"data":[{"event_type":"charge_two"}]}`)
		default:
			fmt.Fprintf(w, `{"data":[{"event_type":"charge_one"}],"paging":{"next":"%s/page2"}}`, server.URL)
		}
	}))
	defer server.Close()

	client := testClient(server.URL)
	first, err := client.FetchPage(context.Background(), server.URL+"/page1")
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	records := client.drainPages(context.Background(), first)
	if len(records) != 2 {
		t.Fatalf("expected 2 records across pages, got %d", len(records))
	}
	if records[0].EventType != "charge_one" || records[1].EventType != "charge_two" {
		t.Errorf("records out of order: %+v", records)
	}
}

func TestDrainPages_PartialOnPageFailure(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprintf(w, `{"data":[{"event_type":"charge_one"}],"paging":{"next":"%s/broken"}}`, server.URL)
		}
	}))
	defer server.Close()

	client := testClient(server.URL)
	first, err := client.FetchPage(context.Background(), server.URL+"/page1")
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	records := client.drainPages(context.Background(), first)
	if len(records) != 1 {
		t.Fatalf("expected partial results (1 record), got %d", len(records))
	}
}

func TestGet_RateLimitRetriedOnce(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	if _, err := client.FetchPage(context.Background(), server.URL+"/x"); err != nil {
		t.Fatalf("expected rate-limited request to succeed on retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 calls, got %d", calls)
	}
}

func TestGet_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request"}}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	if _, err := client.FetchPage(context.Background(), server.URL+"/x"); err == nil {
		t.Fatal("expected error on 4xx")
	}
	if calls != 1 {
		t.Errorf("4xx should not be retried, got %d calls", calls)
	}
}

func eventDateOf(r RawActivity) string {
	var s string
	if err := json.Unmarshal(r.EventTime, &s); err != nil {
		return ""
	}
	if i := strings.IndexByte(s, 'T'); i > 0 {
		return s[:i]
	}
	return s
}

func TestSelectActivities_FallsBackToInWindowStrategy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("date_preset") == "custom":
			// First strategy ignores the bounds and returns old data.
			fmt.Fprint(w, `{"data":[{"event_type":"charge","event_time":"2023-01-15T10:00:00+0000"}]}`)
		case q.Get("since") != "":
			fmt.Fprint(w, `{"data":[
				{"event_type":"charge","event_time":"2024-03-10T10:00:00+0000"},
				{"event_type":"charge","event_time":"2023-12-31T10:00:00+0000"}
			]}`)
		default:
			fmt.Fprint(w, `{"data":[]}`)
		}
	}))
	defer server.Close()

	client := testClient(server.URL)
	win, err := NewWindow("2024-03-01", "2024-03-31", time.UTC)
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}

	inWindow := func(r RawActivity) bool {
		d := eventDateOf(r)
		return d >= "2024-03-01" && d <= "2024-03-31"
	}

	got := client.SelectActivities(context.Background(), "act_123", "v21.0", win, inWindow)
	if len(got) != 1 {
		t.Fatalf("expected only the in-window record from strategy 2, got %d records", len(got))
	}
	if eventDateOf(got[0]) != "2024-03-10" {
		t.Errorf("wrong record selected: %s", got[0].EventTime)
	}
}

func TestSelectActivities_AllStrategiesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"event_type":"charge","event_time":"2020-01-01T00:00:00+0000"}]}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	win, _ := NewWindow("2024-03-01", "2024-03-31", time.UTC)

	got := client.SelectActivities(context.Background(), "act_123", "v21.0", win, func(r RawActivity) bool {
		return false
	})
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d records", len(got))
	}
}

func TestWindowEpochBounds(t *testing.T) {
	win, err := NewWindow("2024-03-01", "2024-03-02", time.UTC)
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}
	start, stop := win.EpochBounds()
	if stop-start != 86400+86399 {
		t.Errorf("bounds span = %d seconds", stop-start)
	}
}

func TestNewWindow_RejectsReversedBounds(t *testing.T) {
	if _, err := NewWindow("2024-03-31", "2024-03-01", time.UTC); err == nil {
		t.Error("expected error for end before start")
	}
}
