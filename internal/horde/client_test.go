package horde

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/VilotStar/StableHorder/internal/model"
)

func testIdentity(url string) *model.WorkerIdentity {
	return &model.WorkerIdentity{
		Payload: model.PopPayload{
			Name:      "test-worker",
			MaxPixels: 262144,
			Models:    []string{"stable_diffusion"},
			Threads:   1,
		},
		Reception:     model.ApiInfo{Key: "rec-key"},
		Generation:    model.ApiInfo{Key: "gen-key"},
		BridgeVersion: 3,
		BridgeAgent:   "StableHorder",
		HordeURL:      url,
	}
}

func newTestClients(t *testing.T, handler http.HandlerFunc) (*ReceptionClient, *GenerationClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rec, gen, err := NewClients(testIdentity(srv.URL))
	if err != nil {
		t.Fatalf("NewClients: %v", err)
	}
	return rec, gen
}

func TestNewClients_InvalidProxy(t *testing.T) {
	id := testIdentity("http://localhost:1")
	id.Generation.Proxy = "ftp://proxy.example:21"

	rec, gen, err := NewClients(id)
	if !errors.Is(err, ErrInvalidProxy) {
		t.Fatalf("expected ErrInvalidProxy, got %v", err)
	}
	if rec != nil || gen != nil {
		t.Fatal("expected no clients on failure")
	}
}

func TestNewClients_UnparseableProxy(t *testing.T) {
	id := testIdentity("http://localhost:1")
	id.Reception.Proxy = "http://[::1"

	if _, _, err := NewClients(id); !errors.Is(err, ErrInvalidProxy) {
		t.Fatalf("expected ErrInvalidProxy, got %v", err)
	}
}

func TestNewClients_MissingKeys(t *testing.T) {
	id := testIdentity("http://localhost:1")
	id.Reception.Key = ""

	if _, _, err := NewClients(id); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestNewClients_BadHordeURL(t *testing.T) {
	if _, _, err := NewClients(testIdentity("horde.example")); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestNewClients_SeparateTransports(t *testing.T) {
	id := testIdentity("http://localhost:1")
	id.Reception.Proxy = "http://rec-proxy:3128"
	id.Generation.Proxy = "socks5://gen-proxy:1080"

	rec, gen, err := NewClients(id)
	if err != nil {
		t.Fatalf("NewClients: %v", err)
	}
	if rec.rc.httpClient == gen.rc.httpClient || rec.rc.httpClient.Transport == gen.rc.httpClient.Transport {
		t.Fatal("roles share an HTTP client or transport")
	}

	req, _ := http.NewRequest("GET", "http://horde.example/", nil)
	recProxy, _ := rec.rc.httpClient.Transport.(*http.Transport).Proxy(req)
	genProxy, _ := gen.rc.httpClient.Transport.(*http.Transport).Proxy(req)
	if recProxy.Host != "rec-proxy:3128" || genProxy.Host != "gen-proxy:1080" {
		t.Fatalf("proxies = %v / %v", recProxy, genProxy)
	}
}

func TestPopJob_UsesReceptionKey(t *testing.T) {
	var gotKey, gotAgent string
	var gotBody model.PopPayload
	rec, _ := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != popPath {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("apikey")
		gotAgent = r.Header.Get("Client-Agent")
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"id":"job-1","model":"stable_diffusion","payload":{"prompt":"p","ddim_steps":20,"n_iter":1,"seed":"7"},"skipped":{"max_pixels": 2},"source_processing":"img2img"}`)
	})

	job, err := rec.PopJob(context.Background())
	if err != nil {
		t.Fatalf("PopJob: %v", err)
	}
	if gotKey != "rec-key" {
		t.Errorf("apikey = %q, want reception key", gotKey)
	}
	if gotAgent != "StableHorder:3" {
		t.Errorf("Client-Agent = %q", gotAgent)
	}
	if gotBody.Name != "test-worker" || gotBody.MaxPixels != 262144 {
		t.Errorf("pop body = %+v", gotBody)
	}
	if job.ID != "job-1" || job.Payload.DDIMSteps != 20 || job.Payload.Seed != "7" {
		t.Errorf("job = %+v", job)
	}
	if string(job.Skipped) != `{"max_pixels": 2}` {
		t.Errorf("skipped not preserved verbatim: %s", job.Skipped)
	}
}

func TestPopJob_EmptyQueue(t *testing.T) {
	rec, _ := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"payload":{},"id":null,"skipped":{"worker_id":1},"model":null}`)
	})

	job, err := rec.PopJob(context.Background())
	if !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
	if job != nil {
		t.Fatal("expected nil job on empty queue")
	}
}

func TestPopJob_MalformedBody(t *testing.T) {
	for name, body := range map[string]string{
		"garbage":    `{"id": "job-1", "payload": `,
		"wrong type": `{"id": 42}`,
		"null":       `null`,
		"no model":   `{"id":"job-1","payload":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec, _ := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			})
			_, err := rec.PopJob(context.Background())
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
		})
	}
}

func TestPopJob_HTTPError(t *testing.T) {
	rec, _ := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"Wrong API Key"}`)
	})

	_, err := rec.PopJob(context.Background())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusUnauthorized || reqErr.Message != "Wrong API Key" {
		t.Errorf("request error = %+v", reqErr)
	}
	if Retryable(err) {
		t.Error("401 must not be retryable")
	}
}

func TestSubmit_UsesGenerationKey(t *testing.T) {
	var gotKey string
	var gotReq map[string]any
	_, gen := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != asyncPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotKey = r.Header.Get("apikey")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"id":"gen-9","kudos":12.5}`)
	})

	id, err := gen.Submit(context.Background(), &model.GenerationRequest{Prompt: "p", Models: []string{"m"}, UseR2: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "gen-9" {
		t.Errorf("id = %q", id)
	}
	if gotKey != "gen-key" {
		t.Errorf("apikey = %q, want generation key", gotKey)
	}
	if gotReq["r2"] != true || gotReq["jobId"] != "" {
		t.Errorf("request body = %v", gotReq)
	}
}

func TestSubmit_MissingID(t *testing.T) {
	for _, body := range []string{`{}`, `{"id":""}`, `{"id":5}`, `<html>`} {
		_, gen := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		})
		_, err := gen.Submit(context.Background(), &model.GenerationRequest{})
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Errorf("body %s: expected SchemaError, got %v", body, err)
		}
	}
}

func TestCheck_RequiresFinished(t *testing.T) {
	_, gen := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "" {
			t.Error("check must not send an api key")
		}
		if !strings.HasPrefix(r.URL.Path, checkPath) {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"done":false,"waiting":1}`)
	})

	_, err := gen.Check(context.Background(), "gen-1")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestStatus_Decodes(t *testing.T) {
	_, gen := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != statusPath+"gen-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"generations":[{"img":"https://r2/x.webp","seed":"1","id":"g","censored":false,"worker_id":"w","worker_name":"n","model":"m","state":"ok"}],"finished":1,"done":true,"kudos":10,"is_possible":true}`)
	})

	status, err := gen.Status(context.Background(), "gen-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Done || len(status.Generations) != 1 || status.Generations[0].Image != "https://r2/x.webp" {
		t.Fatalf("status = %+v", status)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&RequestError{Op: "check", Err: errors.New("connection reset")}, true},
		{&RequestError{Op: "check", StatusCode: 503}, true},
		{&RequestError{Op: "check", StatusCode: 429}, true},
		{&RequestError{Op: "check", StatusCode: 404}, false},
		{&RequestError{Op: "check", Err: context.Canceled}, false},
		{&RequestError{Op: "check", Err: &url.Error{Op: "Get", URL: "u", Err: timeoutErr{}}}, true},
		{&RequestError{Op: "check", StatusCode: 200, Err: fmt.Errorf("%w: %w", errReadBody, io.ErrUnexpectedEOF)}, true},
		{context.DeadlineExceeded, false},
		{&SchemaError{Op: "check", Err: errors.New("bad")}, false},
		{nil, false},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Errorf("Retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCheck_TruncatedBodyIsRetryable(t *testing.T) {
	_, gen := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"finished":`)
	})

	_, err := gen.Check(context.Background(), "gen-1")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if !Retryable(err) {
		t.Errorf("truncated body should be retryable: %v", err)
	}
}
