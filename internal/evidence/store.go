// Package evidence keeps a bounded, file-backed record of saved detections.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/pranav24547/Ai-Surveillance-System/internal/logger"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
	"github.com/pranav24547/Ai-Surveillance-System/internal/video"
)

const (
	metadataFile = "metadata.json"
	imagesDir    = "images"
	annotatedDir = "annotated"

	mirrorTimeout = 30 * time.Second
)

var (
	ErrNotFound = errors.New("evidence: not found")
	ErrClosed   = errors.New("evidence: store closed")
)

// Mirror receives a copy of every artifact, keyed by its path relative to the store root.
type Mirror interface {
	Upload(ctx context.Context, key, path string) error
	Remove(ctx context.Context, key string) error
}

type Config struct {
	BasePath      string
	MaxFiles      int
	SaveAnnotated bool
	JPEGQuality   int
}

type Stats struct {
	Total            int            `json:"total_evidence"`
	ByWeaponType     map[string]int `json:"by_weapon_type"`
	StorageSizeBytes int64          `json:"storage_size_bytes"`
	StorageSizeMB    float64        `json:"storage_size_mb"`
	StoragePath      string         `json:"storage_path"`
	MaxFiles         int            `json:"max_files"`
}

// Store owns the evidence index, the image files and metadata.json. Records are kept oldest first.
type Store struct {
	cfg    Config
	mirror Mirror
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	records []models.EvidenceRecord
	lastTS  time.Time
	closed  bool

	mirrorOps  chan mirrorOp
	mirrorDone chan struct{}
}

// Open prepares the directory layout and loads the existing index. An unreadable or corrupt index
// is treated as empty. mirror may be nil.
func Open(cfg Config, mirror Mirror) (*Store, error) {
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 1000
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 95
	}

	for _, dir := range []string{imagesDir, annotatedDir} {
		if err := os.MkdirAll(filepath.Join(cfg.BasePath, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create evidence dir: %w", err)
		}
	}

	s := &Store{
		cfg:     cfg,
		mirror:  mirror,
		log:     logger.Component("evidence"),
		now:     time.Now,
		records: []models.EvidenceRecord{},
	}
	s.load()

	if mirror != nil {
		s.mirrorOps = make(chan mirrorOp, 256)
		s.mirrorDone = make(chan struct{})
		go s.runMirror()
	}

	s.log.Info().Str("path", cfg.BasePath).Int("records", len(s.records)).Msg("evidence store opened")
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.metadataPath())
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("could not read evidence metadata, starting empty")
		return
	}

	var records []models.EvidenceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.Warn().Err(err).Msg("corrupt evidence metadata, starting empty")
		return
	}
	if records == nil {
		records = []models.EvidenceRecord{}
	}
	s.records = records
	for _, r := range records {
		if r.Timestamp.After(s.lastTS) {
			s.lastTS = r.Timestamp
		}
	}
}

// Save writes the raw frame (and the annotated one when enabled), appends the record, persists
// the index and evicts the oldest records above MaxFiles. On failure nothing is kept.
func (s *Store) Save(raw, annotated image.Image, weaponType string, confidence float64, bbox models.BBox, location string) (models.EvidenceRecord, error) {
	rawJPEG, err := video.EncodeJPEG(raw, s.cfg.JPEGQuality)
	if err != nil {
		return models.EvidenceRecord{}, err
	}
	var annotatedJPEG []byte
	if s.cfg.SaveAnnotated && annotated != nil {
		if annotatedJPEG, err = video.EncodeJPEG(annotated, s.cfg.JPEGQuality); err != nil {
			return models.EvidenceRecord{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.EvidenceRecord{}, ErrClosed
	}

	ts := s.nextTimestamp()
	id := newID(ts)
	rec := models.EvidenceRecord{
		ID:         id,
		WeaponType: weaponType,
		Confidence: math.Round(confidence*1000) / 1000,
		Timestamp:  ts,
		Location:   location,
		BBox:       bbox,
		ImagePath:  filepath.Join(s.cfg.BasePath, imagesDir, id+".jpg"),
	}

	if err := os.WriteFile(rec.ImagePath, rawJPEG, 0o644); err != nil {
		removeQuietly(rec.ImagePath)
		return models.EvidenceRecord{}, fmt.Errorf("write evidence image: %w", err)
	}
	if annotatedJPEG != nil {
		rec.AnnotatedPath = filepath.Join(s.cfg.BasePath, annotatedDir, id+"_annotated.jpg")
		if err := os.WriteFile(rec.AnnotatedPath, annotatedJPEG, 0o644); err != nil {
			s.removeFiles(rec)
			return models.EvidenceRecord{}, fmt.Errorf("write annotated image: %w", err)
		}
	}

	s.records = append(s.records, rec)
	if err := s.persist(); err != nil {
		s.records = s.records[:len(s.records)-1]
		s.removeFiles(rec)
		return models.EvidenceRecord{}, err
	}

	evicted := s.evict()
	s.syncMirror(rec, evicted)

	s.log.Debug().Str("id", id).Str("class", weaponType).Msg("evidence saved")
	return rec, nil
}

// evict drops the oldest records above MaxFiles and persists the index once. Callers hold s.mu.
func (s *Store) evict() []models.EvidenceRecord {
	if len(s.records) <= s.cfg.MaxFiles {
		return nil
	}

	n := len(s.records) - s.cfg.MaxFiles
	evicted := make([]models.EvidenceRecord, n)
	copy(evicted, s.records[:n])
	s.records = append([]models.EvidenceRecord{}, s.records[n:]...)

	for _, rec := range evicted {
		s.removeFiles(rec)
	}
	if err := s.persist(); err != nil {
		s.log.Error().Err(err).Msg("persist index after eviction")
	}

	s.log.Info().Int("evicted", n).Str("oldest_kept", s.records[0].ID).Msg("old evidence cleaned up")
	return evicted
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (models.EvidenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := lo.Find(s.records, func(r models.EvidenceRecord) bool { return r.ID == id })
	if !ok {
		return models.EvidenceRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListRecent returns up to limit records, newest first, optionally only of one weapon type.
func (s *Store) ListRecent(limit int, weaponType string) []models.EvidenceRecord {
	s.mu.Lock()
	records := s.records
	if weaponType != "" {
		records = lo.Filter(records, func(r models.EvidenceRecord, _ int) bool {
			return r.WeaponType == weaponType
		})
	}
	if limit > 0 && limit < len(records) {
		records = records[len(records)-limit:]
	}
	out := lo.Reverse(append([]models.EvidenceRecord{}, records...))
	s.mu.Unlock()
	return out
}

// Image reads the raw or annotated JPEG of a record.
func (s *Store) Image(id string, annotated bool) ([]byte, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	path := rec.ImagePath
	if annotated {
		path = rec.AnnotatedPath
	}
	if path == "" {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read evidence image: %w", err)
	}
	return data, nil
}

func (s *Store) Statistics() Stats {
	s.mu.Lock()
	byType := lo.CountValuesBy(s.records, func(r models.EvidenceRecord) string { return r.WeaponType })
	total := len(s.records)
	s.mu.Unlock()

	var size int64
	_ = filepath.WalkDir(s.cfg.BasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".jpg") {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})

	abs, err := filepath.Abs(s.cfg.BasePath)
	if err != nil {
		abs = s.cfg.BasePath
	}

	return Stats{
		Total:            total,
		ByWeaponType:     byType,
		StorageSizeBytes: size,
		StorageSizeMB:    math.Round(float64(size)/(1024*1024)*100) / 100,
		StoragePath:      abs,
		MaxFiles:         s.cfg.MaxFiles,
	}
}

// ClearAll deletes every artifact and empties the index. It returns the number of records removed.
func (s *Store) ClearAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	removed := s.records
	for _, rec := range removed {
		s.removeFiles(rec)
	}
	s.records = []models.EvidenceRecord{}
	if err := s.persist(); err != nil {
		return 0, err
	}
	s.syncMirror(models.EvidenceRecord{}, removed)

	s.log.Info().Int("count", len(removed)).Msg("evidence cleared")
	return len(removed), nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Close rejects further writes with ErrClosed and drains pending mirror operations. Reads keep
// working. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.mirror != nil {
			close(s.mirrorOps)
		}
	}
	s.mu.Unlock()

	if s.mirror != nil {
		<-s.mirrorDone
	}
	return nil
}

// persist rewrites metadata.json through a temp file so a crash never leaves a truncated index.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal evidence index: %w", err)
	}

	tmp := s.metadataPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write evidence index: %w", err)
	}
	if err := os.Rename(tmp, s.metadataPath()); err != nil {
		removeQuietly(tmp)
		return fmt.Errorf("replace evidence index: %w", err)
	}
	return nil
}

// nextTimestamp returns the current time at microsecond precision, strictly after the previous
// one so ids stay unique and ordered. Callers hold s.mu.
func (s *Store) nextTimestamp() time.Time {
	ts := s.now().UTC().Truncate(time.Microsecond)
	if !ts.After(s.lastTS) {
		ts = s.lastTS.Add(time.Microsecond)
	}
	s.lastTS = ts
	return ts
}

func newID(ts time.Time) string {
	return fmt.Sprintf("EVD_%s_%06d", ts.Format("20060102_150405"), ts.Nanosecond()/1000)
}

func (s *Store) removeFiles(rec models.EvidenceRecord) {
	for _, path := range []string{rec.ImagePath, rec.AnnotatedPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", path).Msg("remove evidence file")
		}
	}
}

func (s *Store) metadataPath() string {
	return filepath.Join(s.cfg.BasePath, metadataFile)
}

type mirrorOp struct {
	upload bool
	path   string
}

// syncMirror queues uploads of added and removals of deleted artifacts. The queue is drained in
// order by a single worker; when it is full the operation is dropped. Callers hold s.mu.
func (s *Store) syncMirror(added models.EvidenceRecord, removed []models.EvidenceRecord) {
	if s.mirror == nil {
		return
	}

	var ops []mirrorOp
	for _, path := range []string{added.ImagePath, added.AnnotatedPath} {
		if path != "" {
			ops = append(ops, mirrorOp{upload: true, path: path})
		}
	}
	for _, rec := range removed {
		for _, path := range []string{rec.ImagePath, rec.AnnotatedPath} {
			if path != "" {
				ops = append(ops, mirrorOp{path: path})
			}
		}
	}

	for _, op := range ops {
		select {
		case s.mirrorOps <- op:
		default:
			s.log.Warn().Str("path", op.path).Msg("mirror queue full, dropping operation")
		}
	}
}

func (s *Store) runMirror() {
	defer close(s.mirrorDone)
	for op := range s.mirrorOps {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		var err error
		if op.upload {
			err = s.mirror.Upload(ctx, s.key(op.path), op.path)
		} else {
			err = s.mirror.Remove(ctx, s.key(op.path))
		}
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Str("path", op.path).Bool("upload", op.upload).Msg("mirror operation failed")
		}
	}
}

func (s *Store) key(path string) string {
	rel, err := filepath.Rel(s.cfg.BasePath, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}
