// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package chatstore persists chat sessions as JSON documents on disk, one
// document per user. Generated images and thumbnails live next to the
// documents in dedicated directories and are referenced by file name.
package chatstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id does not exist for the
// given user.
var ErrSessionNotFound = errors.New("session not found")

const titleMaxLength = 20

// Settings holds the generation settings of a session. They are locked in
// place once the first exchange has been stored.
type Settings struct {
	AspectRatio string `json:"aspect_ratio"`
	ImageSize   string `json:"image_size"`
	Model       string `json:"model"`
}

// Message is a single chat turn. Role is "user" or "assistant". Image and
// Thumbnail are URL paths, ReferenceImages are bare file names inside the
// images directory.
type Message struct {
	Role            string   `json:"role"`
	Content         string   `json:"content"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	Image           string   `json:"image,omitempty"`
	Thumbnail       string   `json:"thumbnail,omitempty"`
	Timestamp       string   `json:"timestamp"`
}

// Session is a chat session as stored in the user document.
type Session struct {
	Title     string    `json:"title"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
	Settings  *Settings `json:"settings,omitempty"`
	Messages  []Message `json:"messages"`
}

// SettingsLocked reports whether the session settings may still be changed.
// Settings freeze once the first exchange is stored.
func (s *Session) SettingsLocked() bool {
	return len(s.Messages) >= 2
}

// Summary is the listing view of a session.
type Summary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	MessageCount int    `json:"message_count"`
}

// CleanupStats reports what a cleanup run removed.
type CleanupStats struct {
	Sessions         int `json:"sessions"`
	Messages         int `json:"messages"`
	Images           int `json:"images"`
	OrphanImages     int `json:"orphan_images"`
	OrphanThumbnails int `json:"orphan_thumbnails"`
}

// Store reads and writes user session documents. All mutations of a user's
// document go through a per-user mutex so concurrent requests cannot lose
// updates.
type Store struct {
	sessionsDir   string
	imagesDir     string
	thumbnailsDir string

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a store rooted at the given directories, creating them if
// needed.
func New(sessionsDir, imagesDir, thumbnailsDir string) (*Store, error) {
	for _, dir := range []string{sessionsDir, imagesDir, thumbnailsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Store{
		sessionsDir:   sessionsDir,
		imagesDir:     imagesDir,
		thumbnailsDir: thumbnailsDir,
		locks:         make(map[int64]*sync.Mutex),
	}, nil
}

// ImagesDir returns the directory generated images are stored in.
func (s *Store) ImagesDir() string { return s.imagesDir }

// ThumbnailsDir returns the directory thumbnails are stored in.
func (s *Store) ThumbnailsDir() string { return s.thumbnailsDir }

func (s *Store) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

func (s *Store) docPath(userID int64) string {
	return filepath.Join(s.sessionsDir, fmt.Sprintf("user_%d.json", userID))
}

func (s *Store) loadDoc(userID int64) (map[string]*Session, error) {
	data, err := os.ReadFile(s.docPath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*Session), nil
		}
		return nil, fmt.Errorf("failed to read session document: %w", err)
	}

	doc := make(map[string]*Session)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse session document: %w", err)
	}
	return doc, nil
}

func (s *Store) saveDoc(userID int64, doc map[string]*Session) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session document: %w", err)
	}

	path := s.docPath(userID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session document: %w", err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// TitleFromPrompt derives a session title from the first prompt.
func TitleFromPrompt(prompt string) string {
	title := strings.TrimSpace(prompt)
	runes := []rune(title)
	if len(runes) > titleMaxLength {
		return string(runes[:titleMaxLength]) + "..."
	}
	return title
}

// List returns the user's sessions as summaries, most recently updated
// first.
func (s *Store) List(userID int64) ([]Summary, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.loadDoc(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(doc))
	for id, session := range doc {
		summaries = append(summaries, Summary{
			ID:           id,
			Title:        session.Title,
			CreatedAt:    session.CreatedAt,
			UpdatedAt:    session.UpdatedAt,
			MessageCount: len(session.Messages),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt != summaries[j].UpdatedAt {
			return summaries[i].UpdatedAt > summaries[j].UpdatedAt
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// Create adds a new empty session for the user and returns its id.
func (s *Store) Create(userID int64) (string, *Session, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.loadDoc(userID)
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	ts := now()
	session := &Session{
		Title:     "New Chat",
		CreatedAt: ts,
		UpdatedAt: ts,
		Messages:  []Message{},
	}
	doc[id] = session

	if err := s.saveDoc(userID, doc); err != nil {
		return "", nil, err
	}
	return id, session, nil
}

// Get returns a single session.
func (s *Store) Get(userID int64, sessionID string) (*Session, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.loadDoc(userID)
	if err != nil {
		return nil, err
	}
	session, ok := doc[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Rename sets the session title.
func (s *Store) Rename(userID int64, sessionID, title string) error {
	return s.Update(userID, sessionID, func(session *Session) error {
		session.Title = title
		return nil
	})
}

// Update applies fn to the session under the user's lock and persists the
// result. fn runs against the freshly loaded document, so the full
// read-modify-write cycle is atomic with respect to other mutations for the
// same user.
func (s *Store) Update(userID int64, sessionID string, fn func(*Session) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.loadDoc(userID)
	if err != nil {
		return err
	}
	session, ok := doc[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if err := fn(session); err != nil {
		return err
	}
	session.UpdatedAt = now()
	return s.saveDoc(userID, doc)
}

// Delete removes a session and its image files.
func (s *Store) Delete(userID int64, sessionID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.loadDoc(userID)
	if err != nil {
		return err
	}
	session, ok := doc[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	for i := range session.Messages {
		s.removeMessageFiles(&session.Messages[i])
	}
	delete(doc, sessionID)
	return s.saveDoc(userID, doc)
}

// removeMessageFiles deletes the image, thumbnail and reference images of a
// message. Missing files are ignored.
func (s *Store) removeMessageFiles(msg *Message) (images int) {
	if msg.Image != "" {
		if s.removeFile(s.imagesDir, filepath.Base(msg.Image)) {
			images++
		}
	}
	if msg.Thumbnail != "" {
		s.removeFile(s.thumbnailsDir, filepath.Base(msg.Thumbnail))
	}
	for _, ref := range msg.ReferenceImages {
		if s.removeFile(s.imagesDir, filepath.Base(ref)) {
			images++
		}
	}
	return images
}

func (s *Store) removeFile(dir, name string) bool {
	if name == "" || name == "." || name == string(filepath.Separator) {
		return false
	}
	err := os.Remove(filepath.Join(dir, name))
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove image file", "file", name, "error", err)
		return false
	}
	return err == nil
}

// DeleteUserData removes the user's session document and every file it
// references. Used when an account is deleted.
func (s *Store) DeleteUserData(userID int64) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.loadDoc(userID)
	if err != nil {
		return err
	}
	for _, session := range doc {
		for i := range session.Messages {
			s.removeMessageFiles(&session.Messages[i])
		}
	}

	if err := os.Remove(s.docPath(userID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session document: %w", err)
	}
	return nil
}

// CountForUser returns the number of sessions and messages of a user.
func (s *Store) CountForUser(userID int64) (sessions, messages int, err error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.loadDoc(userID)
	if err != nil {
		return 0, 0, err
	}
	for _, session := range doc {
		sessions++
		messages += len(session.Messages)
	}
	return sessions, messages, nil
}

// CleanupBefore removes messages older than cutoff from all user documents,
// drops sessions that end up empty and were last updated before the cutoff,
// and finally sweeps the image directories for files no surviving message
// references.
func (s *Store) CleanupBefore(cutoff time.Time) (CleanupStats, error) {
	var stats CleanupStats

	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return stats, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	referenced := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "user_") || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var userID int64
		if _, err := fmt.Sscanf(entry.Name(), "user_%d.json", &userID); err != nil {
			continue
		}

		userStats, refs, err := s.cleanupUser(userID, cutoff)
		if err != nil {
			slog.Warn("cleanup failed for user document", "file", entry.Name(), "error", err)
			continue
		}
		stats.Sessions += userStats.Sessions
		stats.Messages += userStats.Messages
		stats.Images += userStats.Images
		for name := range refs {
			referenced[name] = true
		}
	}

	stats.OrphanImages = s.sweepOrphans(s.imagesDir, referenced)
	stats.OrphanThumbnails = s.sweepOrphans(s.thumbnailsDir, referenced)
	return stats, nil
}

// cleanupUser prunes one user document and returns the file names still
// referenced by its surviving messages.
func (s *Store) cleanupUser(userID int64, cutoff time.Time) (CleanupStats, map[string]bool, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var stats CleanupStats

	doc, err := s.loadDoc(userID)
	if err != nil {
		return stats, nil, err
	}

	changed := false
	for id, session := range doc {
		kept := session.Messages[:0]
		for i := range session.Messages {
			msg := &session.Messages[i]
			if timestampBefore(msg.Timestamp, cutoff) {
				stats.Messages++
				stats.Images += s.removeMessageFiles(msg)
				changed = true
				continue
			}
			kept = append(kept, *msg)
		}
		session.Messages = kept

		if len(session.Messages) == 0 && timestampBefore(session.UpdatedAt, cutoff) {
			delete(doc, id)
			stats.Sessions++
			changed = true
		}
	}

	if changed {
		if err := s.saveDoc(userID, doc); err != nil {
			return stats, nil, err
		}
	}

	referenced := make(map[string]bool)
	for _, session := range doc {
		for _, msg := range session.Messages {
			if msg.Image != "" {
				referenced[filepath.Base(msg.Image)] = true
			}
			if msg.Thumbnail != "" {
				referenced[filepath.Base(msg.Thumbnail)] = true
			}
			for _, ref := range msg.ReferenceImages {
				referenced[filepath.Base(ref)] = true
			}
		}
	}
	return stats, referenced, nil
}

// timestampBefore reports whether a stored timestamp is older than the
// cutoff. Unparseable timestamps count as recent so nothing is deleted by
// accident.
func timestampBefore(ts string, cutoff time.Time) bool {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return false
	}
	return t.Before(cutoff)
}

// sweepOrphans removes files in dir that no surviving message references.
func (s *Store) sweepOrphans(dir string, referenced map[string]bool) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read image directory", "dir", dir, "error", err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if referenced[name] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			slog.Warn("failed to remove orphaned file", "file", name, "error", err)
			continue
		}
		removed++
	}
	return removed
}
