package drive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/teemow/gistflow/internal/gist"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), "default", nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestCreate(t *testing.T) {
	var body string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, "/upload/drive/v3/files") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"file-1","name":"gist.md","mimeType":"text/markdown",
			"createdTime":"2026-03-02T09:00:00Z","webViewLink":"https://drive.google.com/file/d/file-1/view",
			"parents":["folder-1"]}`))
	})

	f, err := client.Create(context.Background(), Upload{
		Name:       "gist.md",
		Body:       strings.NewReader("# Title"),
		MimeType:   "text/markdown",
		FolderID:   "folder-1",
		ModifiedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if f.ID != "file-1" || f.Link != "https://drive.google.com/file/d/file-1/view" {
		t.Errorf("unexpected file %+v", f)
	}
	if f.CreatedAt.IsZero() {
		t.Error("CreatedAt should be parsed")
	}
	for _, want := range []string{"# Title", "folder-1", "2026-03-02T09:00:00Z"} {
		if !strings.Contains(body, want) {
			t.Errorf("multipart body missing %q: %q", want, body)
		}
	}
}

func TestCreateClassifiesErrors(t *testing.T) {
	tests := []struct {
		status int
		want   gist.Category
	}{
		{http.StatusServiceUnavailable, gist.CategoryTransient},
		{http.StatusTooManyRequests, gist.CategoryTransient},
		{http.StatusNotFound, gist.CategoryConfiguration},
		{http.StatusUnauthorized, gist.CategoryConfiguration},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"code":0,"message":"failed"}}`))
			})

			_, err := client.Create(context.Background(), Upload{Name: "gist.md", Body: strings.NewReader("x")})
			if got := gist.CategoryOf(err); got != tt.want {
				t.Errorf("category = %q, want %q (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestCreateRequiresNameAndBody(t *testing.T) {
	client := &Client{}
	if _, err := client.Create(context.Background(), Upload{Body: strings.NewReader("x")}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := client.Create(context.Background(), Upload{Name: "a.md"}); err == nil {
		t.Error("expected error for nil body")
	}
}

func TestFromAPI(t *testing.T) {
	f := fromAPI(&drive.File{
		Id:           "file123",
		Name:         "test.md",
		Size:         1024,
		CreatedTime:  "2023-01-01T10:00:00Z",
		ModifiedTime: "not a time",
		Parents:      []string{"parent1"},
	})

	if f.ID != "file123" || f.Name != "test.md" || f.Size != 1024 {
		t.Errorf("unexpected file %+v", f)
	}
	if f.CreatedAt.Year() != 2023 {
		t.Errorf("CreatedAt not parsed: %v", f.CreatedAt)
	}
	if !f.ModifiedAt.IsZero() {
		t.Error("invalid ModifiedTime should stay zero")
	}
}

func TestAccount(t *testing.T) {
	if got := (&Client{account: "work"}).Account(); got != "work" {
		t.Errorf("Account() = %q, want work", got)
	}
}
