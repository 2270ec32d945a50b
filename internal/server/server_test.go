package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cosmescan/backend/internal/errs"
	"github.com/cosmescan/backend/internal/logger"
	"github.com/cosmescan/backend/internal/models"
	"github.com/cosmescan/backend/internal/pipeline"
)

type fakePipeline struct {
	runs       int
	result     *pipeline.Result
	runErr     error
	extractErr error
	history    []*models.ScanLog
}

func (f *fakePipeline) Run(ctx context.Context, req *models.ScanRequest, notify func(pipeline.Stage)) (*pipeline.Result, error) {
	f.runs++
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.result, nil
}

func (f *fakePipeline) ExtractOnly(ctx context.Context, folder string) (string, error) {
	if f.extractErr != nil {
		return "", f.extractErr
	}
	return "extracted text", nil
}

func (f *fakePipeline) History(ctx context.Context, limit int) ([]*models.ScanLog, error) {
	if limit > len(f.history) {
		limit = len(f.history)
	}
	return f.history[:limit], nil
}

func newTestServer(t *testing.T, p Pipeline) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(p, logger.NewNop()).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAnalyzeRejectsIncompleteRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"missing folder", `{"barcode": "123", "user_profile": {"uid": "u1"}}`},
		{"missing barcode", `{"folder_path": "cosmes/a", "user_profile": {"uid": "u1"}}`},
		{"missing profile", `{"folder_path": "cosmes/a", "barcode": "123"}`},
		{"not json", `not json`},
	}
	for _, tc := range cases {
		fake := &fakePipeline{}
		ts := newTestServer(t, fake)

		resp := postJSON(t, ts.URL+"/analyze", tc.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, resp.StatusCode)
		}
		if fake.runs != 0 {
			t.Errorf("%s: pipeline invoked on invalid request", tc.name)
		}
	}
}

func TestAnalyzeSuccessResponseShape(t *testing.T) {
	fake := &fakePipeline{result: &pipeline.Result{
		OCRText:     "label text",
		ProfileText: "dry skin",
		AnalysisRaw: `{"is_cosme": true}`,
	}}
	ts := newTestServer(t, fake)

	resp := postJSON(t, ts.URL+"/analyze",
		`{"folder_path": "cosmes/a", "barcode": "4901234567890", "user_profile": {"uid": "u1"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			OCRResult      string `json:"ocr_result"`
			UserProfile    string `json:"user_profile"`
			AnalysisResult string `json:"analysis_result"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success {
		t.Error("success = false")
	}
	if body.Data.OCRResult != "label text" || body.Data.UserProfile != "dry skin" {
		t.Errorf("data = %+v", body.Data)
	}
	if body.Data.AnalysisResult != `{"is_cosme": true}` {
		t.Errorf("analysis_result = %q", body.Data.AnalysisResult)
	}
}

func TestAnalyzeStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("%w: blob profile.txt", errs.ErrNotFound), http.StatusNotFound},
		{"upstream", fmt.Errorf("%w: vision annotate", errs.ErrUpstreamUnavailable), http.StatusBadGateway},
		{"persistence", fmt.Errorf("%w: scanlogs insert", errs.ErrPersistence), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		fake := &fakePipeline{runErr: tc.err}
		ts := newTestServer(t, fake)

		resp := postJSON(t, ts.URL+"/analyze",
			`{"folder_path": "cosmes/a", "barcode": "123", "user_profile": {"uid": "u1"}}`)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.want)
		}

		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if body.Error == "" || body.Message == "" {
			t.Errorf("%s: body = %+v, want error and message", tc.name, body)
		}
	}
}

func TestExtract(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{})

	resp := postJSON(t, ts.URL+"/extract", `{"folder_path": "cosmes/a"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		OCRResult string `json:"ocr_result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OCRResult != "extracted text" {
		t.Errorf("ocr_result = %q", body.OCRResult)
	}

	resp = postJSON(t, ts.URL+"/extract", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing folder_path", resp.StatusCode)
	}
}

func TestScans(t *testing.T) {
	fake := &fakePipeline{history: []*models.ScanLog{
		{ID: 3, Barcode: "b3"},
		{ID: 2, Barcode: "b2"},
		{ID: 1, Barcode: "b1"},
	}}
	ts := newTestServer(t, fake)

	resp, err := http.Get(ts.URL + "/scans?limit=2")
	if err != nil {
		t.Fatalf("GET /scans: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Items []*models.ScanLog `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 2 || body.Items[0].ID != 3 {
		t.Errorf("items = %+v", body.Items)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
