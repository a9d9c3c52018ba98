package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chrissnell/ecogmark/internal/edf"
	"github.com/chrissnell/ecogmark/internal/pipeline"
	"github.com/chrissnell/ecogmark/internal/storage"
	"github.com/chrissnell/ecogmark/internal/storage/sqlite"
	"github.com/chrissnell/ecogmark/internal/types"
	"github.com/chrissnell/ecogmark/pkg/config"
)

var channels = [types.ChannelCount]string{"FrL", "FrR", "OcR"}

func edfBytes(t *testing.T, rate float64, seconds int, markers []types.Marker) []byte {
	t.Helper()
	return scaledEDFBytes(t, rate, seconds, 1, markers)
}

// scaledEDFBytes builds a recording of cosines with the given amplitude in volts
func scaledEDFBytes(t *testing.T, rate float64, seconds int, amplitude float64, markers []types.Marker) []byte {
	t.Helper()
	n := int(rate) * seconds
	var ch [types.ChannelCount][]float64
	for c := range ch {
		ch[c] = make([]float64, n)
		for i := range ch[c] {
			ch[c][i] = amplitude * math.Cos(float64(i)/7)
		}
	}
	rec, err := types.NewRecordingFromChannels(rate, ch)
	if err != nil {
		t.Fatal(err)
	}
	f, err := edf.NewFile(rec, channels, markers)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := edf.Write(&buf, f); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	return &body, mw.FormDataContentType()
}

type testServer struct {
	handler   http.Handler
	staticDir string
	results   chan types.AnalysisResult
	archive   *sqlite.Storage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	archive, err := sqlite.New(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { archive.Close() })

	ts := &testServer{
		staticDir: t.TempDir(),
		results:   make(chan types.AnalysisResult, 4),
		archive:   archive,
	}

	hm := storage.NewHealthManager()
	hm.UpdateHealth("sqlite", archive.CheckHealth(ctx))

	ctrl, err := NewController(ctx, &sync.WaitGroup{}, config.RESTServerData{StaticDir: ts.staticDir}, Dependencies{
		Pipeline: pipeline.New(400, channels, nil, nil),
		Results:  ts.results,
		Reader:   archive,
		Health:   hm,
	}, nil)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	ts.handler = ctrl.Server.Handler
	return ts
}

func (ts *testServer) upload(t *testing.T, target, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, "file", filename, data)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestNewControllerDefaults(t *testing.T) {
	ctrl, err := NewController(context.Background(), &sync.WaitGroup{}, config.RESTServerData{},
		Dependencies{Pipeline: pipeline.New(400, channels, nil, nil)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ctrl.Server.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", ctrl.Server.Addr)
	}

	if _, err := NewController(context.Background(), &sync.WaitGroup{}, config.RESTServerData{}, Dependencies{}, nil); err == nil {
		t.Error("expected error without pipeline")
	}
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t)
	data := edfBytes(t, 400, 6, []types.Marker{
		{Onset: 1, Tag: "swd1"},
		{Onset: 2.5, Tag: "swd2"},
	})

	rec := ts.upload(t, "/upload", "rat7.edf", data)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	base := pipeline.NameHash("rat7.edf")
	if resp.JSON != "static/"+base+".json" || resp.File != "static/"+base+"_marked.edf" || resp.Plot != "static/"+base+"_plot.json" {
		t.Errorf("response paths = %+v", resp)
	}
	if resp.Reused {
		t.Error("first upload reported as reused")
	}
	if resp.Analytics == nil || resp.Analytics.AnomalyCount != 1 {
		t.Fatalf("analytics = %+v", resp.Analytics)
	}
	if math.Abs(resp.Analytics.TotalDuration-1.5) > 1e-9 {
		t.Errorf("TotalDuration = %v, want 1.5", resp.Analytics.TotalDuration)
	}

	for _, name := range []string{base + ".edf", base + "_marked.edf", base + ".json", base + "_plot.json", base + ".csv", base + "_report.txt"} {
		if _, err := os.Stat(filepath.Join(ts.staticDir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	select {
	case r := <-ts.results:
		if r.ID != resp.ID || r.Source != "rat7.edf" {
			t.Errorf("published result = %+v", r)
		}
	default:
		t.Error("no result published")
	}

	// Artifacts are served under /static/.
	get := httptest.NewRequest(http.MethodGet, "/"+resp.JSON, nil)
	getRec := httptest.NewRecorder()
	ts.handler.ServeHTTP(getRec, get)
	if getRec.Code != http.StatusOK {
		t.Errorf("GET %s status = %d", resp.JSON, getRec.Code)
	}
}

func TestUploadMicrovoltRecording(t *testing.T) {
	ts := newTestServer(t)

	// 5 mV peaks are stored as 5000 in a uV header
	const amplitude = 5e-3
	data := scaledEDFBytes(t, 400, 3, amplitude, []types.Marker{
		{Onset: 0.5, Tag: "swd1"},
		{Onset: 1.5, Tag: "swd2"},
	})

	for _, target := range []string{"/upload", "/upload?format=msgpack"} {
		t.Run(target, func(t *testing.T) {
			rec := ts.upload(t, target, "large.edf", data)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			<-ts.results

			if target != "/upload" {
				return
			}
			var resp UploadResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("body is not valid JSON: %v (%q)", err, rec.Body.String())
			}
			peaks := resp.Analytics.PeakAmplitudes[types.SWD]
			if len(peaks) != 1 {
				t.Fatalf("SWD peaks = %v, want one", peaks)
			}
			if want := math.Exp(amplitude); math.IsInf(peaks[0], 0) || math.Abs(peaks[0]-want) > 1e-5 {
				t.Errorf("peak = %v, want %v", peaks[0], want)
			}
		})
	}
}

func TestUploadReusesStoredAnalysis(t *testing.T) {
	ts := newTestServer(t)
	data := edfBytes(t, 400, 3, []types.Marker{
		{Onset: 1, Tag: "is1"},
		{Onset: 1.5, Tag: "is2"},
	})

	first := ts.upload(t, "/upload", "same.edf", data)
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", first.Code, first.Body.String())
	}
	var firstResp UploadResponse
	if err := json.Unmarshal(first.Body.Bytes(), &firstResp); err != nil {
		t.Fatal(err)
	}
	if err := ts.archive.StoreResult(context.Background(), <-ts.results); err != nil {
		t.Fatal(err)
	}

	second := ts.upload(t, "/upload", "same.edf", data)
	if second.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", second.Code, second.Body.String())
	}
	var secondResp UploadResponse
	if err := json.Unmarshal(second.Body.Bytes(), &secondResp); err != nil {
		t.Fatal(err)
	}
	if !secondResp.Reused || secondResp.ID != firstResp.ID {
		t.Errorf("second upload = %s reused=%v, want %s reused", secondResp.ID, secondResp.Reused, firstResp.ID)
	}
	if secondResp.Analytics == nil || secondResp.Analytics.AnomalyCount != 1 {
		t.Errorf("analytics = %+v", secondResp.Analytics)
	}
	select {
	case r := <-ts.results:
		t.Errorf("reused analysis was published again: %s", r.ID)
	default:
	}

	// A different mode is a different analysis.
	third := ts.upload(t, "/upload?mode=ai", "same.edf", data)
	if third.Code != http.StatusBadRequest {
		t.Errorf("ai upload status = %d, want 400 without a classifier", third.Code)
	}
}

func TestUploadErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		target string
		data   []byte
		want   int
	}{
		{"rate mismatch", "/upload", edfBytes(t, 200, 2, nil), http.StatusUnprocessableEntity},
		{"not edf", "/upload", []byte("hello"), http.StatusBadRequest},
		{"unknown mode", "/upload?mode=guess", edfBytes(t, 400, 1, nil), http.StatusBadRequest},
		{"ai without classifier", "/upload?mode=ai", edfBytes(t, 400, 1, nil), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.upload(t, tt.target, "x.edf", tt.data)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	t.Run("missing field", func(t *testing.T) {
		body, contentType := multipartBody(t, "other", "x.edf", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestAnalysesEndpoints(t *testing.T) {
	ts := newTestServer(t)

	a := types.NewAnalytics()
	a.AnomalyCount = 1
	a.AnomaliesByType[types.IS] = []types.TimeSpan{{Start: 3, End: 4}}
	a.PeakAmplitudes[types.IS] = []float64{2}
	stored := types.NewAnalysisResult("s.edf", "h", "markers", a)
	if err := ts.archive.StoreResult(context.Background(), stored); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"get", "/analyses/" + stored.ID.String(), http.StatusOK},
		{"report", "/analyses/" + stored.ID.String() + "/report", http.StatusOK},
		{"list", "/analyses?limit=5", http.StatusOK},
		{"bad limit", "/analyses?limit=zero", http.StatusBadRequest},
		{"bad id", "/analyses/nope", http.StatusBadRequest},
		{"missing", "/analyses/00000000-0000-0000-0000-000000000001", http.StatusNotFound},
		{"health", "/health", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyses/"+stored.ID.String(), nil))
	var got types.AnalysisResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != stored.ID || len(got.Analytics.AnomaliesByType[types.IS]) != 1 {
		t.Errorf("analysis = %+v", got)
	}

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Storage["sqlite"].Status != "healthy" {
		t.Errorf("health = %+v", health)
	}
}
