package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"ambush/internal/eventbus"
	"ambush/internal/repo"
	"ambush/internal/storage"
	"ambush/pkg/logx"
)

func newTestServer(t *testing.T) (*httptest.Server, *repo.Sounds) {
	t.Helper()
	gw, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })

	bus := eventbus.New(logx.Nop())
	t.Cleanup(func() { _ = bus.Close(context.Background()) })

	sounds := repo.NewSounds(gw, bus, logx.Nop())
	conf := repo.NewConfig(gw, bus, logx.Nop(), repo.Defaults{Interval: 30, Volume: 100})
	if err := conf.Seed(context.Background()); err != nil {
		t.Fatalf("seeding config: %v", err)
	}

	srv := New(Config{Host: "127.0.0.1", Port: 0}, sounds, conf, logx.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, sounds
}

func uploadSound(t *testing.T, ts *httptest.Server, name string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	_ = mw.Close()

	resp, err := http.Post(ts.URL+"/api/sounds", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	return resp
}

func TestUploadListDownload(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := uploadSound(t, ts, "laugh.mp3", []byte("audio-bytes"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	if created.Name != "laugh.mp3" || created.ID == 0 {
		t.Fatalf("unexpected upload response: %+v", created)
	}

	listResp, err := http.Get(ts.URL + "/api/sounds")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	defer listResp.Body.Close()
	var listing []struct {
		Name string `json:"name"`
		Size int    `json:"size"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listing); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(listing) != 1 || listing[0].Name != "laugh.mp3" || listing[0].Size != len("audio-bytes") {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	dlResp, err := http.Get(fmt.Sprintf("%s/api/sounds/%d", ts.URL, created.ID))
	if err != nil {
		t.Fatalf("download request: %v", err)
	}
	defer dlResp.Body.Close()
	var body bytes.Buffer
	if _, err := body.ReadFrom(dlResp.Body); err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if body.String() != "audio-bytes" {
		t.Fatalf("download body = %q", body.String())
	}
}

func TestUploadDuplicateRejected(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := uploadSound(t, ts, "laugh.mp3", []byte("a"))
	resp.Body.Close()
	resp = uploadSound(t, ts, "Laugh.mp3", []byte("b"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate upload status = %d, want 400", resp.StatusCode)
	}
}

func TestRenameAndDelete(t *testing.T) {
	t.Parallel()
	ts, sounds := newTestServer(t)

	resp := uploadSound(t, ts, "old.mp3", []byte("x"))
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decoding upload: %v", err)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodPatch,
		fmt.Sprintf("%s/api/sounds/%d", ts.URL, created.ID),
		strings.NewReader(`{"name":"new.mp3"}`))
	req.Header.Set("Content-Type", "application/json")
	renameResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("rename request: %v", err)
	}
	renameResp.Body.Close()
	if renameResp.StatusCode != http.StatusNoContent {
		t.Fatalf("rename status = %d, want 204", renameResp.StatusCode)
	}

	snd, err := sounds.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get after rename: %v", err)
	}
	if snd.Name != "new.mp3" {
		t.Fatalf("name = %s, want new.mp3", snd.Name)
	}

	req, _ = http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/sounds/%d", ts.URL, created.ID), nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", delResp.StatusCode)
	}

	getResp, err := http.Get(fmt.Sprintf("%s/api/sounds/%d", ts.URL, created.ID))
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", getResp.StatusCode)
	}
}

func TestConfigEndpoints(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	put := func(path, body string) *http.Response {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT %s: %v", path, err)
		}
		return resp
	}

	resp := put("/api/config/interval", `{"interval":45}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set interval status = %d, want 204", resp.StatusCode)
	}

	resp = put("/api/config/interval", `{"interval":10}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range interval status = %d, want 400", resp.StatusCode)
	}

	getResp, err := http.Get(ts.URL + "/api/config/interval")
	if err != nil {
		t.Fatalf("get interval: %v", err)
	}
	defer getResp.Body.Close()
	var got map[string]int
	if err := json.NewDecoder(getResp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding interval: %v", err)
	}
	if got["interval"] != 45 {
		t.Fatalf("interval = %d, want 45 (rejected write must not stick)", got["interval"])
	}

	resp = put("/api/config/volume", `{"volume":101}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range volume status = %d, want 400", resp.StatusCode)
	}
}
