package resource

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/albertocavalcante/assetpipe/internal/metrics"
	"github.com/albertocavalcante/assetpipe/pkg/pack"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFileSystemProvider(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":          "alpha",
		"dir/b.txt":      "beta",
		"dir/deep/c.bin": "gamma",
	})

	p, err := NewFileSystemProvider(root, 7)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.txt", "dir/b.txt", "dir/deep/c.bin"}
	if got := p.ResourceList(); !slices.Equal(got, want) {
		t.Errorf("ResourceList() = %v, want %v", got, want)
	}
	if p.Priority() != 7 {
		t.Errorf("Priority() = %d, want 7", p.Priority())
	}

	d, err := p.Get("dir/b.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := d.(*StaticData); !ok || s.String() != "beta" {
		t.Errorf("Get(dir/b.txt) = %#v, want static beta", d)
	}

	d, err = p.Get("dir/deep/c.bin", true)
	if err != nil {
		t.Fatal(err)
	}
	s, ok := d.(*StreamData)
	if !ok {
		t.Fatalf("Get stream = %T, want *StreamData", d)
	}
	defer s.Close()
	if s.Size() != 5 {
		t.Errorf("stream Size() = %d, want 5", s.Size())
	}
	data, _ := io.ReadAll(s)
	if string(data) != "gamma" {
		t.Errorf("stream content = %q, want gamma", data)
	}

	info, err := os.Stat(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Timestamp("a.txt"); !got.Equal(info.ModTime()) {
		t.Errorf("Timestamp(a.txt) = %v, want %v", got, info.ModTime())
	}
	if got := p.Timestamp("missing"); !got.IsZero() {
		t.Errorf("Timestamp(missing) = %v, want zero", got)
	}
}

func TestFileSystemProvider_RejectsEscape(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "alpha"})
	p, err := NewFileSystemProvider(root, 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"../a.txt", "..", "", Wildcard, "dir/../../x"} {
		if _, err := p.Get(id, false); err == nil {
			t.Errorf("Get(%q) should fail", id)
		}
	}
}

func TestFileSystemProvider_MissingRoot(t *testing.T) {
	if _, err := NewFileSystemProvider(filepath.Join(t.TempDir(), "nope"), 0); err == nil {
		t.Error("NewFileSystemProvider on missing root should fail")
	}
}

func TestPackProvider(t *testing.T) {
	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	_, err := pack.Build(&buf, []pack.Entry{
		{ID: "levels/one.json", Data: []byte(`{"name":"one"}`), ModTime: stamp},
		{ID: "sounds/hit.wav", Data: bytes.Repeat([]byte{1, 2, 3}, 100), ModTime: stamp},
	})
	if err != nil {
		t.Fatal(err)
	}
	r, err := pack.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	p := NewPackProvider(r, 3)

	l := NewLocator()
	l.Add(p)

	got, err := l.Static("levels/one.json")
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != `{"name":"one"}` {
		t.Errorf("Static = %q", got.String())
	}

	s, err := l.Stream("sounds/hit.wav")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(s)
	_ = s.Close()
	if len(data) != 300 {
		t.Errorf("stream length = %d, want 300", len(data))
	}

	if ts := l.Timestamp("levels/one.json"); !ts.Equal(stamp) {
		t.Errorf("Timestamp = %v, want %v", ts, stamp)
	}
	if ts := p.Timestamp("missing"); !ts.IsZero() {
		t.Errorf("Timestamp(missing) = %v, want zero", ts)
	}
	if _, err := l.Resolve("missing", false); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("Resolve(missing) error = %v", err)
	}
}

func TestOpenPackProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.apk")
	if _, err := pack.WriteFile(path, []pack.Entry{{ID: "a.txt", Data: []byte("alpha")}}); err != nil {
		t.Fatal(err)
	}
	p, err := OpenPackProvider(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.ResourceList(); !slices.Equal(got, []string{"a.txt"}) {
		t.Errorf("ResourceList() = %v", got)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestFallbackProvider(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"late/added.txt": "late"})

	p := NewFallbackProvider(root, 0)
	if got := p.ResourceList(); !slices.Equal(got, []string{Wildcard}) {
		t.Errorf("ResourceList() = %v, want [*]", got)
	}

	l := NewLocator()
	l.Add(p)
	if got := mustStatic(t, l, "late/added.txt"); got != "late" {
		t.Errorf("Static = %q, want late", got)
	}
	if l.Timestamp("late/added.txt").IsZero() {
		t.Error("Timestamp should come from the file")
	}
	if ids := l.Enumerate("", false, ""); len(ids) != 0 {
		t.Errorf("Enumerate() = %v, wildcard must not be listed", ids)
	}
}

func TestFetchProvider(t *testing.T) {
	var asked []string
	p := NewFetchProvider(func(id string, stream bool) (Data, error) {
		asked = append(asked, id)
		return NewStaticData(id, []byte("generated:"+id)), nil
	}, 0)

	d, err := p.Get("x", false)
	if err != nil {
		t.Fatal(err)
	}
	if d.(*StaticData).String() != "generated:x" {
		t.Errorf("Get(x) = %q", d.(*StaticData).String())
	}
	if !p.Timestamp("x").IsZero() {
		t.Error("fetch provider has no timestamps")
	}
	if !slices.Equal(asked, []string{"x"}) {
		t.Errorf("fetch calls = %v", asked)
	}
}

// countingProvider counts Get calls.
type countingProvider struct {
	memProvider
	gets int
}

func (p *countingProvider) Get(id string, stream bool) (Data, error) {
	p.gets++
	return p.memProvider.Get(id, stream)
}

func TestCachedProvider(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewResolve(reg)
	inner := &countingProvider{memProvider: memProvider{name: "payload", priority: 4, ids: []string{"a"}}}

	c, err := NewCachedProvider(context.Background(), inner, CacheOptions{Life: time.Minute, MaxSizeMB: 8, Metrics: m})
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		d, err := c.Get("a", false)
		if err != nil {
			t.Fatal(err)
		}
		if d.(*StaticData).String() != "payload" {
			t.Errorf("cached Get = %q", d.(*StaticData).String())
		}
	}
	if inner.gets != 1 {
		t.Errorf("inner Get calls = %d, want 1", inner.gets)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	s, err := c.Get("a", true)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*StreamData); !ok {
		t.Errorf("stream Get = %T, want *StreamData", s)
	}
	if inner.gets != 2 {
		t.Errorf("streams should bypass the cache, inner Get calls = %d", inner.gets)
	}

	c.Invalidate("a")
	if _, err := c.Get("a", false); err != nil {
		t.Fatal(err)
	}
	if inner.gets != 3 {
		t.Errorf("Invalidate should force a reload, inner Get calls = %d", inner.gets)
	}

	if c.Priority() != 4 || !slices.Equal(c.ResourceList(), []string{"a"}) {
		t.Error("cached provider should delegate list and priority")
	}
	if got := testutil.CollectAndCount(reg, "assetpipe_resource_cache_requests_total"); got != 2 {
		t.Errorf("cache series = %d, want hit and miss", got)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if !inner.closed {
		t.Error("Close should close the wrapped provider")
	}
}
