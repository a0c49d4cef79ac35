package media

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mural-app/birthday-wall/internal/event"
	"github.com/mural-app/birthday-wall/internal/model/wall"
	"github.com/mural-app/birthday-wall/internal/service/verify"
	wallservice "github.com/mural-app/birthday-wall/internal/service/wall"
	"github.com/mural-app/birthday-wall/internal/storage"
)

var gifHeader = []byte("GIF87a\x01\x00\x01\x00")

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()

	store, err := storage.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("NewSQLite err: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}

	svc := wallservice.NewService(store, files, event.NewBus(nil), nil)
	handler := New(svc, verify.New("", "", true), nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func multipartUpload(t *testing.T, name, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart err: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestUploadAndServeImage(t *testing.T) {
	r := setupRouter(t)

	body, contentType := multipartUpload(t, "party.gif", "image/gif", gifHeader)
	req := httptest.NewRequest(http.MethodPost, "/media/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var saved []wall.MediaWithURL
	if err := json.Unmarshal(resp.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 file, got %d", len(saved))
	}
	if saved[0].Type != wall.MediaImage {
		t.Fatalf("expected image, got %s", saved[0].Type)
	}

	serveReq := httptest.NewRequest(http.MethodGet, saved[0].URL[len("/api"):], nil)
	serveResp := httptest.NewRecorder()
	r.ServeHTTP(serveResp, serveReq)

	if serveResp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", serveResp.Code)
	}
	if got := serveResp.Header().Get("Content-Type"); got != "image/gif" {
		t.Fatalf("expected image/gif, got %s", got)
	}
	if got := serveResp.Header().Get("Cache-Control"); got != "public, max-age=31536000, immutable" {
		t.Fatalf("unexpected cache header: %s", got)
	}
	if served, _ := io.ReadAll(serveResp.Body); !bytes.Equal(served, gifHeader) {
		t.Fatal("served bytes differ from upload")
	}
}

func TestUploadRejectsNonMediaFile(t *testing.T) {
	r := setupRouter(t)

	body, contentType := multipartUpload(t, "notes.txt", "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/media/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestUploadRequiresFiles(t *testing.T) {
	r := setupRouter(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/media/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestServeUnknownID(t *testing.T) {
	r := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/media/serve/unknown-id", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestListMediaIncludesURLs(t *testing.T) {
	r := setupRouter(t)

	body, contentType := multipartUpload(t, "party.gif", "image/gif", gifHeader)
	req := httptest.NewRequest(http.MethodPost, "/media/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(httptest.NewRecorder(), req)

	listReq := httptest.NewRequest(http.MethodGet, "/media?page=1&limit=10", nil)
	listResp := httptest.NewRecorder()
	r.ServeHTTP(listResp, listReq)

	if listResp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listResp.Code)
	}

	var page wall.Page[wall.MediaWithURL]
	if err := json.Unmarshal(listResp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(page.Data) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Data))
	}
	if page.Data[0].URL != wall.ServeURL(page.Data[0].ID) {
		t.Fatalf("unexpected url: %s", page.Data[0].URL)
	}
}

func TestDeleteMediaRequiresID(t *testing.T) {
	r := setupRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/media", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
