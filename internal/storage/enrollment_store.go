package storage

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"facegate-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

const formatVersion = "1.0"

const (
	embeddingsFile = "embeddings.json.gz"
	metadataFile   = "metadata.json"
)

// embeddingsPayload is the on-disk representation of the embedding matrix.
type embeddingsPayload struct {
	Version    string      `json:"version"`
	Timestamp  time.Time   `json:"timestamp"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Metadata is the on-disk representation of the enrollment metadata.
type Metadata struct {
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Count     int                    `json:"count"`
	Frames    []models.FrameMetadata `json:"frames"`
}

// EnrollmentStore persists face embeddings as a gzip-compressed array plus a
// metadata JSON file, both under a single directory. At most one enrollment
// exists at a time; saving replaces the previous one.
type EnrollmentStore struct {
	dir            string
	embeddingsPath string
	metadataPath   string
}

// NewEnrollmentStore creates the storage directory if needed.
func NewEnrollmentStore(dir string) (*EnrollmentStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &EnrollmentStore{
		dir:            dir,
		embeddingsPath: filepath.Join(dir, embeddingsFile),
		metadataPath:   filepath.Join(dir, metadataFile),
	}, nil
}

// SaveEnrollment writes embeddings and metadata to disk, replacing any
// previous enrollment. Both files are written via temp file + rename so a
// crash cannot leave a half-written enrollment behind.
func (s *EnrollmentStore) SaveEnrollment(embeddings [][]float32, frames []models.FrameMetadata) error {
	now := time.Now().UTC()

	payload := embeddingsPayload{
		Version:    formatVersion,
		Timestamp:  now,
		Embeddings: embeddings,
	}
	if err := s.writeGzipJSON(s.embeddingsPath, payload); err != nil {
		return fmt.Errorf("failed to save embeddings: %w", err)
	}

	meta := Metadata{
		Version:   formatVersion,
		Timestamp: now,
		Count:     len(embeddings),
		Frames:    frames,
	}
	if err := s.writeJSON(s.metadataPath, meta); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	log.Infof("Saved enrollment with %d embeddings to %s", len(embeddings), s.dir)
	return nil
}

// LoadEmbeddings reads the stored embedding matrix. Returns nil without an
// error when no enrollment exists.
func (s *EnrollmentStore) LoadEmbeddings() ([][]float32, error) {
	f, err := os.Open(s.embeddingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open embeddings file: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read compressed embeddings: %w", err)
	}
	defer gz.Close()

	var payload embeddingsPayload
	if err := json.NewDecoder(gz).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings: %w", err)
	}

	return payload.Embeddings, nil
}

// LoadMetadata reads the stored metadata. Returns nil without an error when
// no enrollment exists.
func (s *EnrollmentStore) LoadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(s.metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &meta, nil
}

// IsEnrolled reports whether both the embeddings and metadata files exist.
func (s *EnrollmentStore) IsEnrolled() bool {
	if _, err := os.Stat(s.embeddingsPath); err != nil {
		return false
	}
	if _, err := os.Stat(s.metadataPath); err != nil {
		return false
	}
	return true
}

// Clear deletes both enrollment files. Missing files are not an error.
func (s *EnrollmentStore) Clear() error {
	for _, path := range []string{s.embeddingsPath, s.metadataPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	log.Info("Enrollment data cleared")
	return nil
}

func (s *EnrollmentStore) writeGzipJSON(path string, v interface{}) error {
	return s.writeAtomic(path, func(f *os.File) error {
		gz := gzip.NewWriter(f)
		if err := json.NewEncoder(gz).Encode(v); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	})
}

func (s *EnrollmentStore) writeJSON(path string, v interface{}) error {
	return s.writeAtomic(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// writeAtomic writes via a temp file in the same directory and renames it
// into place.
func (s *EnrollmentStore) writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
