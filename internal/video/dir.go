package video

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DirSource plays a directory of extracted frames (for example ffmpeg's frame_%04d.jpg output)
// in lexical order. It is finite and can be rewound.
type DirSource struct {
	dir string

	mu     sync.Mutex
	files  []string
	pos    int
	opened bool
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Open() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("open frame directory %s: %w", s.dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("open frame directory %s: no frames found", s.dir)
	}
	sort.Strings(files)

	s.mu.Lock()
	s.files = files
	s.pos = 0
	s.opened = true
	s.mu.Unlock()
	return nil
}

func (s *DirSource) Read() (image.Image, error) {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.pos >= len(s.files) {
		s.mu.Unlock()
		return nil, ErrEndOfStream
	}
	path := s.files[s.pos]
	s.pos++
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}

func (s *DirSource) Close() error {
	s.mu.Lock()
	s.opened = false
	s.mu.Unlock()
	return nil
}

func (s *DirSource) Finite() bool { return true }

func (s *DirSource) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return ErrClosed
	}
	s.pos = 0
	return nil
}

func (s *DirSource) String() string { return s.dir }
