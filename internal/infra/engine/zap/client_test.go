package zap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newZAP(t *testing.T) (*Client, *[]string) {
	t.Helper()
	var calls []string
	mux := http.NewServeMux()
	handle := func(path string, body any) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-ZAP-API-Key") != "k" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(apiError{Code: "bad_api_key", Message: "Missing key"})
				return
			}
			calls = append(calls, r.URL.Path+"?"+r.URL.RawQuery)
			json.NewEncoder(w).Encode(body)
		})
	}
	handle("/JSON/core/action/accessUrl/", map[string]string{"Result": "OK"})
	handle("/JSON/spider/action/scan/", map[string]string{"scan": "3"})
	handle("/JSON/spider/view/status/", map[string]string{"status": "100"})
	handle("/JSON/ascan/action/scan/", map[string]string{"scan": "7"})
	handle("/JSON/ascan/view/status/", map[string]string{"status": "42"})
	handle("/JSON/core/view/version/", map[string]string{"version": "2.14.0"})
	handle("/JSON/core/view/alerts/", map[string]any{"alerts": []map[string]string{
		{"alert": "Cross Site Scripting (Reflected)", "risk": "High", "confidence": "Medium", "description": "d", "solution": "s"},
		{"name": "Cookie No HttpOnly Flag", "risk": "Low"},
	}})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "k", 5*time.Second), &calls
}

func TestClientScanFlow(t *testing.T) {
	ctx := context.Background()
	c, calls := newZAP(t)
	target := "http://testphp.vulnweb.com"

	if err := c.Open(ctx, target); err != nil {
		t.Fatalf("open: %v", err)
	}
	job, err := c.StartSpider(ctx, target)
	if err != nil || job != "3" {
		t.Fatalf("spider = %q, %v", job, err)
	}
	if p, err := c.SpiderStatus(ctx, job); err != nil || p != 100 {
		t.Fatalf("spider status = %d, %v", p, err)
	}
	job, err = c.StartActiveScan(ctx, target)
	if err != nil || job != "7" {
		t.Fatalf("ascan = %q, %v", job, err)
	}
	if p, err := c.ActiveScanStatus(ctx, job); err != nil || p != 42 {
		t.Fatalf("ascan status = %d, %v", p, err)
	}
	alerts, err := c.Alerts(ctx, target)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 2 || alerts[0].Name != "Cross Site Scripting (Reflected)" || alerts[1].Name != "Cookie No HttpOnly Flag" {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
	if alerts[0].Confidence != "Medium" || alerts[1].Risk != "Low" {
		t.Fatalf("unexpected alert fields: %+v", alerts)
	}
	if got := (*calls)[len(*calls)-1]; got != "/JSON/core/view/alerts/?baseurl=http%3A%2F%2Ftestphp.vulnweb.com" {
		t.Fatalf("alerts call = %s", got)
	}
	if err := c.Check(ctx); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestClientSurfacesAPIError(t *testing.T) {
	c, _ := newZAP(t)
	c.APIKey = "wrong"
	_, err := c.StartSpider(context.Background(), "http://example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "spider/scan: Missing key (bad_api_key)"; err.Error() != want {
		t.Fatalf("err = %q, want %q", err, want)
	}
}
