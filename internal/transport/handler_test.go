package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"go-diagnosis-bridge/internal/config"
	"go-diagnosis-bridge/internal/gemini"
	"go-diagnosis-bridge/internal/observer"
	"go-diagnosis-bridge/internal/service"
	"go-diagnosis-bridge/internal/storage"
	"go-diagnosis-bridge/pkg/models"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGenerator struct {
	resp  *gemini.GenerateContentResponse
	err   error
	parts []gemini.Part
	ctx   context.Context
}

func (s *stubGenerator) GenerateContent(ctx context.Context, parts ...gemini.Part) (*gemini.GenerateContentResponse, error) {
	s.ctx = ctx
	s.parts = parts
	return s.resp, s.err
}

func reply(text string) *gemini.GenerateContentResponse {
	return &gemini.GenerateContentResponse{Candidates: []gemini.Candidate{
		{Content: gemini.Content{Parts: []gemini.Part{{Text: text}}}},
	}}
}

type stubScanStore struct {
	obj *storage.ScanObject
	err error
}

func (s *stubScanStore) FetchScan(ctx context.Context, container, blob string) (*storage.ScanObject, error) {
	return s.obj, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		MaxRequestBodySize:    1 << 20,
		MinEncodedImageLength: 100,
		AllowedOrigins:        []string{"*"},
	}
}

func newTestHandler(gen gemini.Generator, cfg *config.Config, scans storage.ScanStore) (http.Handler, *observer.MetricsObserver) {
	metrics := observer.NewMetricsObserver()
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(metrics)
	svc := service.NewDiagnosisService(gen, nil, scans, publisher)
	return NewHandler(svc, metrics, cfg), metrics
}

func multipartBody(t *testing.T, field, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="scan.png"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	} else if err := w.WriteField("note", "no file here"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	h, _ := newTestHandler(&stubGenerator{}, testConfig(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("Expected a generated request ID header")
	}
	if !strings.Contains(rec.Body.String(), `"status":"available"`) {
		t.Errorf("Unexpected body %s", rec.Body.String())
	}
}

func TestGenerateReport_Success(t *testing.T) {
	gen := &stubGenerator{resp: reply("```json\n" +
		`{"diagnosis":"Normal","observations":["clear"],"potential_conditions":[],"areas_of_concern":[]}` +
		"\n```")}
	h, _ := newTestHandler(gen, testConfig(), nil)

	body, ct := multipartBody(t, uploadField, "image/jpeg", bytes.Repeat([]byte{0xAB}, 200))
	req := httptest.NewRequest(http.MethodPost, "/api/generate_report", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.ImageDiagnosisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != models.StatusSuccess || resp.Analysis == nil || resp.Analysis.Diagnosis != "Normal" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if len(gen.parts) != 2 || gen.parts[0].InlineData == nil || gen.parts[0].InlineData.MimeType != "image/jpeg" {
		t.Errorf("Expected inline image part with declared type, got %+v", gen.parts)
	}
}

func TestGenerateReport_Errors(t *testing.T) {
	tests := []struct {
		name        string
		field       string
		data        []byte
		gen         *stubGenerator
		wantCode    int
		wantMessage string
		wantRaw     string
	}{
		{
			name:        "no file field",
			gen:         &stubGenerator{},
			wantCode:    http.StatusBadRequest,
			wantMessage: "No file uploaded.",
		},
		{
			name:        "tiny file",
			field:       uploadField,
			data:        []byte("abc"),
			gen:         &stubGenerator{},
			wantCode:    http.StatusBadRequest,
			wantMessage: "Invalid image encoding.",
		},
		{
			name:        "no candidates",
			field:       uploadField,
			data:        bytes.Repeat([]byte{1}, 200),
			gen:         &stubGenerator{resp: &gemini.GenerateContentResponse{}},
			wantCode:    http.StatusInternalServerError,
			wantMessage: "AI analysis failed.",
		},
		{
			name:        "upstream unreachable",
			field:       uploadField,
			data:        bytes.Repeat([]byte{1}, 200),
			gen:         &stubGenerator{err: errors.New("connection refused")},
			wantCode:    http.StatusInternalServerError,
			wantMessage: "Failed to analyze image.",
		},
		{
			name:        "prose instead of json",
			field:       uploadField,
			data:        bytes.Repeat([]byte{1}, 200),
			gen:         &stubGenerator{resp: reply("I cannot help with that.")},
			wantCode:    http.StatusInternalServerError,
			wantMessage: "Invalid AI response format.",
			wantRaw:     "I cannot help with that.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(tt.gen, testConfig(), nil)

			body, ct := multipartBody(t, tt.field, "image/png", tt.data)
			req := httptest.NewRequest(http.MethodPost, "/api/generate_report", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			resp := decodeError(t, rec)
			if resp.Status != models.StatusError || resp.Error != tt.wantMessage {
				t.Errorf("Unexpected envelope %+v", resp)
			}
			if resp.RawResponse != tt.wantRaw {
				t.Errorf("Expected raw_response %q, got %q", tt.wantRaw, resp.RawResponse)
			}
		})
	}
}

func TestGenerateReport_NotMultipart(t *testing.T) {
	h, _ := newTestHandler(&stubGenerator{}, testConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/generate_report", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "No file uploaded." {
		t.Errorf("Unexpected message %q", resp.Error)
	}
}

func TestSymptomDiagnosis_Success(t *testing.T) {
	const advisory = "**Possible causes**\n- Tension headache\n\n*Consult a doctor.*"
	gen := &stubGenerator{resp: reply(advisory)}
	h, _ := newTestHandler(gen, testConfig(), nil)

	payload := `{"name":"Ana","age":34,"gender":"female","weight":"61","height":"168",` +
		`"bloodGroup":"A+","allergies":"none","medicalHistory":"","medication":"","symptoms":"headache for 3 days"}`
	req := httptest.NewRequest(http.MethodPost, "/api/symptom_diagnosis", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.SymptomDiagnosisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != models.StatusSuccess || resp.Diagnosis != advisory {
		t.Errorf("Expected advisory text unmodified, got %+v", resp)
	}
	if rec.Header().Get(requestIDHeader) != "req-42" {
		t.Errorf("Expected caller request ID to be echoed, got %q", rec.Header().Get(requestIDHeader))
	}
	if got := service.RequestIDFrom(gen.ctx); got != "req-42" {
		t.Errorf("Expected request ID in upstream context, got %q", got)
	}
	if len(gen.parts) != 1 || !strings.Contains(gen.parts[0].Text, "Age: 34") {
		t.Errorf("Expected numeric age in prompt, got %+v", gen.parts)
	}
}

func TestSymptomDiagnosis_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		gen         *stubGenerator
		wantCode    int
		wantMessage string
	}{
		{"missing symptoms", `{"name":"Ana"}`, &stubGenerator{}, http.StatusBadRequest, "Missing symptoms."},
		{"blank symptoms", `{"symptoms":"   "}`, &stubGenerator{}, http.StatusBadRequest, "Missing symptoms."},
		{"malformed json", `{"symptoms":`, &stubGenerator{}, http.StatusBadRequest, "Invalid request body."},
		{"no candidates", `{"symptoms":"cough"}`, &stubGenerator{resp: &gemini.GenerateContentResponse{}}, http.StatusInternalServerError, "AI diagnosis failed."},
		{"upstream down", `{"symptoms":"cough"}`, &stubGenerator{err: errors.New("timeout")}, http.StatusInternalServerError, "Failed to generate diagnosis."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(tt.gen, testConfig(), nil)

			req := httptest.NewRequest(http.MethodPost, "/api/symptom_diagnosis", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			resp := decodeError(t, rec)
			if resp.Status != models.StatusError || resp.Error != tt.wantMessage {
				t.Errorf("Unexpected envelope %+v", resp)
			}
			if resp.RequestID == "" {
				t.Error("Expected request_id in error envelope")
			}
			if resp.RawResponse != "" {
				t.Errorf("Expected no raw_response, got %q", resp.RawResponse)
			}
		})
	}
}

func TestSymptomDiagnosis_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequestBodySize = 64
	gen := &stubGenerator{resp: reply("ok")}
	h, _ := newTestHandler(gen, cfg, nil)

	payload := `{"symptoms":"` + strings.Repeat("a", 256) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/symptom_diagnosis", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "Request body too large." {
		t.Errorf("Unexpected message %q", resp.Error)
	}
	if gen.parts != nil {
		t.Error("Upstream must not be called for an oversized body")
	}
}

func TestStoredReport_RouteRegistration(t *testing.T) {
	h, _ := newTestHandler(&stubGenerator{}, testConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/generate_report/stored", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected stored route to be absent without storage config, got %d", rec.Code)
	}
}

func TestStoredReport(t *testing.T) {
	cfg := testConfig()
	cfg.AzureStorageAccount = "scans"
	cfg.AzureStorageKey = "a2V5"

	tests := []struct {
		name        string
		body        string
		store       *stubScanStore
		wantCode    int
		wantMessage string
	}{
		{
			name:        "missing blob",
			body:        `{"container":"xrays"}`,
			store:       &stubScanStore{},
			wantCode:    http.StatusBadRequest,
			wantMessage: "Both container and blob are required.",
		},
		{
			name:        "not found",
			body:        `{"container":"xrays","blob":"a.png"}`,
			store:       &stubScanStore{err: storage.ErrScanNotFound},
			wantCode:    http.StatusBadRequest,
			wantMessage: "Stored scan not found.",
		},
		{
			name: "success",
			body: `{"container":"xrays","blob":"2024/a.png"}`,
			store: &stubScanStore{obj: &storage.ScanObject{
				Name: "2024/a.png", ContentType: "image/png", Data: bytes.Repeat([]byte{2}, 200),
			}},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{resp: reply(`{"diagnosis":"Fracture","observations":["line"]}`)}
			h, _ := newTestHandler(gen, cfg, tt.store)

			req := httptest.NewRequest(http.MethodPost, "/api/generate_report/stored", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				if !strings.Contains(rec.Body.String(), `"areas_of_concern":[]`) {
					t.Errorf("Expected normalized lists, got %s", rec.Body.String())
				}
				return
			}
			if resp := decodeError(t, rec); resp.Error != tt.wantMessage {
				t.Errorf("Expected %q, got %q", tt.wantMessage, resp.Error)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(&stubGenerator{resp: reply("rest and fluids")}, testConfig(), nil)

	for _, body := range []string{`{"symptoms":"fever"}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/symptom_diagnosis", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var snap observer.MetricsSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snap.Started[observer.BridgeSymptom] != 2 || snap.Succeeded[observer.BridgeSymptom] != 1 {
		t.Errorf("Unexpected counters %+v", snap)
	}
	if snap.Errors["validation"] != 1 {
		t.Errorf("Expected one validation failure, got %v", snap.Errors)
	}
	if snap.Upstream.Samples != 1 {
		t.Errorf("Expected one upstream latency sample, got %d", snap.Upstream.Samples)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestHandler(&stubGenerator{}, testConfig(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/symptom_diagnosis", nil)
	req.Header.Set("Origin", "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
}
