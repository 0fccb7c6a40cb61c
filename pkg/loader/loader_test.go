package loader_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavalabs/raft/pkg/loader"
)

func TestFSLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "returns.md"), []byte("# Returns\nItems can be returned within 30 days."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shipping.txt"), []byte("Standard shipping takes 5 business days."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte{0x89, 0x50}, 0o644))

	sub := filepath.Join(dir, "policies")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "warranty.md"), []byte("All tents carry a two year warranty."), 0o644))

	var seen []string
	l, err := loader.NewFSLoader(loader.FSLoaderConfig{
		Path:       dir,
		OnProgress: func(path string) { seen = append(seen, path) },
	})
	require.NoError(t, err)

	docs, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 3, "binary files should be skipped")
	assert.Len(t, seen, 3)

	titles := make(map[string]bool)
	for _, doc := range docs {
		titles[doc.Title] = true
		assert.NotEmpty(t, doc.ID)
		assert.NotEmpty(t, doc.Content)
	}
	assert.True(t, titles["returns"])
	assert.True(t, titles["warranty"])
}

func TestFSLoaderSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.md")
	require.NoError(t, os.WriteFile(path, []byte("Q: How do I pitch the tent?"), 0o644))

	l, err := loader.NewFSLoader(loader.FSLoaderConfig{Path: path})
	require.NoError(t, err)

	docs, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, path, docs[0].Source)
}

func TestFSLoaderMissingPath(t *testing.T) {
	l, err := loader.NewFSLoader(loader.FSLoaderConfig{Path: "/nonexistent/docs"})
	require.NoError(t, err)

	_, err = l.Load(context.Background())
	assert.Error(t, err)
}

func TestWebLoader(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/":
			fmt.Fprint(w, `<html><head><title>Guide</title></head><body>
				<nav>ignore me</nav>
				<main>Welcome to the product guide.</main>
				<a href="/docs/setup">Setup</a>
				<a href="/docs/image.png">Image</a>
				<a href="https://elsewhere.example.com/docs/">External</a>
			</body></html>`)
		case "/docs/setup":
			fmt.Fprint(w, `<html><head><title>Setup</title></head><body>
				<article>Unfold the poles and stake the corners.</article>
				<a href="/docs/">Back</a>
			</body></html>`)
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	l, err := loader.NewWebLoader(loader.WebLoaderConfig{
		BaseURL:   server.URL + "/docs/",
		MaxDepth:  2,
		RateLimit: 100,
	})
	require.NoError(t, err)

	docs, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Guide", docs[0].Title)
	assert.Contains(t, docs[0].Content, "product guide")
	assert.NotContains(t, docs[0].Content, "ignore me")
	assert.Equal(t, "Setup", docs[1].Title)
}

func TestWebLoaderIgnorePatterns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/archive/old" {
			fmt.Fprint(w, `<html><head><title>Old</title></head><body><main>stale</main></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><head><title>Home</title></head><body>
			<main>fresh content</main>
			<a href="/archive/old">Old</a>
		</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	l, err := loader.NewWebLoader(loader.WebLoaderConfig{
		BaseURL:   server.URL + "/",
		RateLimit: 100,
		Ignore:    []string{"/archive/"},
	})
	require.NoError(t, err)

	docs, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Home", docs[0].Title)
}

func TestWebLoaderInvalidURL(t *testing.T) {
	_, err := loader.NewWebLoader(loader.WebLoaderConfig{BaseURL: "://bad"})
	assert.Error(t, err)
}
