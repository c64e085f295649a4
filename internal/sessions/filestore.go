package sessions

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// On-disk layout: <dir>/<id>/session.json and <dir>/<id>/transcript.jsonl.
const (
	metaFile       = "session.json"
	transcriptFile = "transcript.jsonl"
	idPrefix       = "sess_"
	maxTitleLen    = 60
)

// FileStore keeps one directory per session.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// NewID returns a fresh session identifier. Shells running without
// persistence use it too, so their events still carry an id.
func NewID() string {
	u := uuid.New()
	return fmt.Sprintf("%s%x", idPrefix, u[:4])
}

func (s *FileStore) path(id, name string) string {
	return filepath.Join(s.dir, id, name)
}

// Create makes the session directory and its metadata.
func (s *FileStore) Create(backend string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &Session{
		ID:        NewID(),
		CreatedAt: now,
		UpdatedAt: now,
		Status:    SessionActive,
		Backend:   backend,
	}
	if err := os.MkdirAll(filepath.Join(s.dir, sess.ID), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get reads session metadata by ID.
func (s *FileStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(id)
}

// Resolve expands a unique id prefix, with or without "sess_", to a full
// session id.
func (s *FileStore) Resolve(prefix string) (string, error) {
	if !strings.HasPrefix(prefix, idPrefix) {
		prefix = idPrefix + prefix
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.ids()
	if err != nil {
		return "", err
	}
	var match string
	for _, id := range ids {
		if id == prefix {
			return id, nil
		}
		if strings.HasPrefix(id, prefix) {
			if match != "" {
				return "", fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
			}
			match = id
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	}
	return match, nil
}

// List returns readable sessions, most recently updated first. Directories
// without valid metadata are skipped.
func (s *FileStore) List() ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.ids()
	if err != nil {
		return nil, err
	}
	var list []*Session
	for _, id := range ids {
		if sess, err := s.load(id); err == nil {
			list = append(list, sess)
		}
	}
	slices.SortFunc(list, func(a, b *Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return list, nil
}

// Update applies fn to the metadata of id under the store lock.
func (s *FileStore) Update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(id, fn)
}

// Close marks a session as closed.
func (s *FileStore) Close(id string) error {
	return s.Update(id, func(sess *Session) { sess.Status = SessionClosed })
}

// AppendMessage adds msg to the transcript file and bumps the message
// count. The first user message becomes the title.
func (s *FileStore) AppendMessage(id string, msg Message) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(id, transcriptFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	_, werr := f.Write(append(line, '\n'))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("write transcript: %w", werr)
	}

	return s.update(id, func(sess *Session) {
		sess.MessageCount++
		if sess.Title == "" && msg.Author == "user" {
			sess.Title = titleFrom(msg.Text)
		}
	})
}

// LoadMessages reads the transcript of id. Corrupt lines are skipped; a
// missing file is an empty transcript.
func (s *FileStore) LoadMessages(id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path(id, transcriptFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var msgs []Message
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var m Message
		if err := json.Unmarshal(sc.Bytes(), &m); err == nil {
			msgs = append(msgs, m)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return msgs, nil
}

func (s *FileStore) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

func (s *FileStore) update(id string, fn func(*Session)) error {
	sess, err := s.load(id)
	if err != nil {
		return err
	}
	fn(sess)
	sess.UpdatedAt = time.Now()
	return s.save(sess)
}

// save writes the metadata through a temp file so readers never see a
// partial file.
func (s *FileStore) save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	path := s.path(sess.ID, metaFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *FileStore) load(id string) (*Session, error) {
	data, err := os.ReadFile(s.path(id, metaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func titleFrom(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= maxTitleLen {
		return text
	}
	return string(r[:maxTitleLen-1]) + "…"
}
