package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	entriesDirName = "entries"
	audioDirName   = "audio"

	// DefaultExtension is used when the requested format is not recognized.
	DefaultExtension = "mp3"
)

// knownExtensions are matched as substrings of the requested format, so
// "mp3_44100_128" still maps to "mp3".
var knownExtensions = []string{"opus", "aac", "flac", "wav", "pcm", "ulaw", "alaw", "mp3"}

// Metadata describes one cached synthesis result. It is immutable once
// written; a full re-Set replaces it wholesale.
type Metadata struct {
	Provider      string  `json:"provider"`
	Voice         string  `json:"voice"`
	Model         string  `json:"model,omitempty"`
	Speed         float64 `json:"speed,omitempty"`
	Format        string  `json:"format,omitempty"`
	Text          string  `json:"text,omitempty"`
	CreatedAt     int64   `json:"createdAt"`
	SizeBytes     int64   `json:"sizeBytes"`
	CorrelationID string  `json:"correlationId"`
}

// entryFile is the JSON record stored under entries/<key>.json.
type entryFile struct {
	Timestamp int64    `json:"timestamp"`
	Metadata  Metadata `json:"metadata"`
	AudioFile string   `json:"audioFile"`
	Key       string   `json:"key"`
}

// valid checks the structural shape of a decoded entry. A file that
// parses as JSON but is missing required fields is treated as corrupt.
func (e *entryFile) valid() bool {
	return e.Key != "" &&
		e.AudioFile != "" &&
		e.Timestamp > 0 &&
		e.Metadata.Provider != "" &&
		e.Metadata.Voice != "" &&
		e.Metadata.SizeBytes >= 0
}

// Entry is the runtime view of a cached result produced by Get.
type Entry struct {
	Data     []byte
	Metadata Metadata
}

// ExtensionForFormat maps a requested audio format to a file extension.
// Unrecognized formats fall back to DefaultExtension.
func ExtensionForFormat(format string) string {
	f := strings.ToLower(format)
	for _, ext := range knownExtensions {
		if strings.Contains(f, ext) {
			return ext
		}
	}
	return DefaultExtension
}

// contentStore owns the entries/ and audio/ trees under a cache root.
// No other component writes there.
type contentStore struct {
	root     string
	fileMode os.FileMode
	dirMode  os.FileMode
}

func newContentStore(root string, fileMode, dirMode os.FileMode) *contentStore {
	return &contentStore{root: root, fileMode: fileMode, dirMode: dirMode}
}

func (s *contentStore) entriesDir() string { return filepath.Join(s.root, entriesDirName) }
func (s *contentStore) audioDir() string   { return filepath.Join(s.root, audioDirName) }

func (s *contentStore) entryPath(key string) string {
	return filepath.Join(s.entriesDir(), key+".json")
}

func (s *contentStore) audioPath(audioFile string) string {
	return filepath.Join(s.audioDir(), audioFile)
}

// init creates the two on-disk subdirectories. Idempotent.
func (s *contentStore) init() error {
	if err := os.MkdirAll(s.entriesDir(), s.dirMode); err != nil {
		return fmt.Errorf("failed to create entries directory: %w", err)
	}
	if err := os.MkdirAll(s.audioDir(), s.dirMode); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}
	return nil
}

// readEntry loads and validates the metadata record for key.
func (s *contentStore) readEntry(key string) (*entryFile, error) {
	raw, err := os.ReadFile(s.entryPath(key))
	if err != nil {
		return nil, err
	}

	var entry entryFile
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("corrupt entry %s: %w", key, err)
	}
	if !entry.valid() {
		return nil, fmt.Errorf("corrupt entry %s: missing required fields", key)
	}
	return &entry, nil
}

// readAudio loads the payload paired with an entry record.
func (s *contentStore) readAudio(entry *entryFile) ([]byte, error) {
	return os.ReadFile(s.audioPath(entry.AudioFile))
}

// writeEntry persists the payload and then the metadata record, each
// through an atomic temp-file rename. Metadata lands last, so a reader
// that finds an entry file always finds a complete payload; a crash in
// between leaves a stray audio file that is swept lazily.
func (s *contentStore) writeEntry(key string, data []byte, meta Metadata) error {
	audioFile := key + "." + ExtensionForFormat(meta.Format)

	entry := entryFile{
		Timestamp: time.Now().UnixMilli(),
		Metadata:  meta,
		AudioFile: audioFile,
		Key:       key,
	}

	raw, err := json.MarshalIndent(&entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", key, err)
	}

	if err := s.atomicWrite(s.audioPath(audioFile), data); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := s.atomicWrite(s.entryPath(key), raw); err != nil {
		return fmt.Errorf("failed to write entry file: %w", err)
	}
	return nil
}

// atomicWrite writes to a temp file and renames it into place.
func (s *contentStore) atomicWrite(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, s.fileMode); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

// remove deletes both halves of an entry. Missing files are not errors;
// remove is used for healing as well as eviction.
func (s *contentStore) remove(key string) {
	if entry, err := s.readEntry(key); err == nil {
		_ = os.Remove(s.audioPath(entry.AudioFile))
	} else {
		// Entry file unreadable; sweep any payload left behind under a
		// known extension.
		for _, ext := range knownExtensions {
			_ = os.Remove(s.audioPath(key + "." + ext))
		}
	}
	_ = os.Remove(s.entryPath(key))
}

// storedEntry is one row of a directory scan.
type storedEntry struct {
	key     string
	size    int64
	modTime time.Time
}

// list scans the entries directory and returns one row per entry file,
// sorted by modification time ascending (oldest first). Size covers the
// entry file plus its payload when the payload is present.
func (s *contentStore) list() ([]storedEntry, error) {
	dirents, err := os.ReadDir(s.entriesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]storedEntry, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}

		key := strings.TrimSuffix(d.Name(), ".json")
		size := info.Size()
		if entry, err := s.readEntry(key); err == nil {
			if audioInfo, err := os.Stat(s.audioPath(entry.AudioFile)); err == nil {
				size += audioInfo.Size()
			}
		}

		entries = append(entries, storedEntry{key: key, size: size, modTime: info.ModTime()})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, nil
}

// removeAll deletes both directory trees. Used by Clear.
func (s *contentStore) removeAll() error {
	if err := os.RemoveAll(s.entriesDir()); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	if err := os.RemoveAll(s.audioDir()); err != nil {
		return fmt.Errorf("failed to clear audio: %w", err)
	}
	return nil
}
