// SPDX-License-Identifier: MPL-2.0

// Package registrytest provides an in-memory npm-compatible registry for tests.
package registrytest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha1" //nolint:gosec // npm shasum field
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type (
	// Version describes one published version of a fake package.
	Version struct {
		Version      string
		Main         string
		Dependencies map[string]string
		// Files maps paths relative to the package root to contents.
		// package.json is generated unless present.
		Files map[string]string
		// Integrity overrides the computed SRI digest.
		Integrity string
	}

	// Server is an httptest-backed registry. Packuments are served at
	// /{escapedName} and tarballs at /-/tarballs/{name}/{version}.tgz.
	Server struct {
		*httptest.Server

		mu       sync.Mutex
		packages map[string]*pkg

		packumentHits atomic.Int64
		tarballHits   atomic.Int64
	}

	pkg struct {
		readme   string
		tags     map[string]string
		versions map[string]Version
		tarballs map[string][]byte
	}
)

// NewServer starts a registry that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{packages: make(map[string]*pkg)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Publish adds a version of name and points the latest dist-tag at it
// unless the version is a prerelease.
func (s *Server) Publish(t testing.TB, name string, v Version) {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packages[name]
	if !ok {
		p = &pkg{tags: map[string]string{}, versions: map[string]Version{}, tarballs: map[string][]byte{}}
		s.packages[name] = p
	}

	tgz, err := buildTarball(name, v)
	if err != nil {
		t.Fatalf("building tarball for %s@%s: %v", name, v.Version, err)
	}
	p.versions[v.Version] = v
	p.tarballs[v.Version] = tgz
	if !strings.Contains(v.Version, "-") {
		p.tags["latest"] = v.Version
	}
}

// Tag points a dist-tag at an already published version.
func (s *Server) Tag(name, tag, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.packages[name]; ok {
		p.tags[tag] = version
	}
}

// SetReadme sets the README served in the full packument of name.
func (s *Server) SetReadme(name, readme string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.packages[name]; ok {
		p.readme = readme
	}
}

// PackumentHits returns how many packument requests were served.
func (s *Server) PackumentHits() int64 { return s.packumentHits.Load() }

// TarballHits returns how many tarball requests were served.
func (s *Server) TarballHits() int64 { return s.tarballHits.Load() }

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.EscapedPath()
	if rest, ok := strings.CutPrefix(path, "/-/tarballs/"); ok {
		s.serveTarball(w, rest)
		return
	}

	name, err := url.PathUnescape(strings.TrimPrefix(path, "/"))
	if err != nil {
		http.Error(w, "bad name", http.StatusBadRequest)
		return
	}
	s.servePackument(w, name)
}

func (s *Server) servePackument(w http.ResponseWriter, name string) {
	s.packumentHits.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packages[name]
	if !ok {
		http.Error(w, `{"error":"Not found"}`, http.StatusNotFound)
		return
	}

	versions := make(map[string]any, len(p.versions))
	for ver, v := range p.versions {
		tgz := p.tarballs[ver]
		integrity := v.Integrity
		if integrity == "" {
			sum := sha512.Sum512(tgz)
			integrity = "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
		}
		shasum := sha1.Sum(tgz) //nolint:gosec // npm shasum field
		versions[ver] = map[string]any{
			"name":         name,
			"version":      ver,
			"dependencies": v.Dependencies,
			"dist": map[string]string{
				"tarball":   s.URL + "/-/tarballs/" + url.PathEscape(name) + "/" + ver + ".tgz",
				"integrity": integrity,
				"shasum":    hex.EncodeToString(shasum[:]),
			},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"name":      name,
		"dist-tags": p.tags,
		"versions":  versions,
		"readme":    p.readme,
	})
}

func (s *Server) serveTarball(w http.ResponseWriter, rest string) {
	s.tarballHits.Add(1)

	escapedName, file, ok := strings.Cut(rest, "/")
	if !ok {
		http.NotFound(w, nil)
		return
	}
	name, err := url.PathUnescape(escapedName)
	if err != nil {
		http.NotFound(w, nil)
		return
	}
	version := strings.TrimSuffix(file, ".tgz")

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packages[name]
	if !ok {
		http.NotFound(w, nil)
		return
	}
	tgz, ok := p.tarballs[version]
	if !ok {
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(tgz)
}

// buildTarball packs files under the conventional "package/" prefix.
func buildTarball(name string, v Version) ([]byte, error) {
	files := make(map[string]string, len(v.Files)+1)
	for k, c := range v.Files {
		files[k] = c
	}
	if _, ok := files["package.json"]; !ok {
		manifest, err := json.Marshal(map[string]any{
			"name":         name,
			"version":      v.Version,
			"main":         v.Main,
			"dependencies": v.Dependencies,
		})
		if err != nil {
			return nil, err
		}
		files["package.json"] = string(manifest)
	}

	names := make([]string, 0, len(files))
	for k := range files {
		names = append(names, k)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, n := range names {
		body := files[n]
		mode := int64(0o644)
		if strings.HasSuffix(n, ".sh") {
			mode = 0o755
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:     "package/" + n,
			Mode:     mode,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
