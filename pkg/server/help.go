package server

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// HelpSystem serves indexed help topics and the MOTD from text files.
// The help file uses the classic "& topic" format: entries begin with a
// line "& topicname"; several "& name" lines in a row alias one body.
// An fsnotify watcher reloads either file when it changes on disk.
type HelpSystem struct {
	mu       sync.RWMutex
	helpPath string
	motdPath string
	entries  map[string]string
	motd     string
	watcher  *fsnotify.Watcher
}

// NewHelpSystem loads the help and MOTD files. Missing files are
// tolerated: the system starts empty and fills in on the next Reload.
func NewHelpSystem(helpPath, motdPath string) *HelpSystem {
	h := &HelpSystem{
		helpPath: helpPath,
		motdPath: motdPath,
		entries:  make(map[string]string),
	}
	if err := h.Reload(); err != nil {
		log.Printf("HELP: initial load: %v", err)
	}
	return h
}

// Reload re-reads both files from disk.
func (h *HelpSystem) Reload() error {
	entries, err := parseHelpFile(h.helpPath)
	if err != nil {
		return err
	}

	motd := ""
	if h.motdPath != "" {
		if data, err := os.ReadFile(h.motdPath); err == nil {
			motd = string(data)
		}
	}

	h.mu.Lock()
	h.entries = entries
	h.motd = motd
	h.mu.Unlock()

	log.Printf("HELP: loaded %d topics from %s", len(entries), h.helpPath)
	return nil
}

// parseHelpFile reads a "& topic" indexed text file. A missing file is
// not an error; it yields an empty topic table.
func parseHelpFile(path string) (map[string]string, error) {
	entries := make(map[string]string)
	if path == "" {
		return entries, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	defer f.Close()

	var currentTopics []string
	var buf strings.Builder

	saveEntry := func() {
		if len(currentTopics) == 0 {
			return
		}
		text := strings.TrimRight(buf.String(), "\n ")
		for _, topic := range currentTopics {
			entries[strings.ToLower(topic)] = text
		}
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "& ") {
			topic := strings.TrimSpace(line[2:])
			if buf.Len() == 0 && len(currentTopics) > 0 {
				// Another alias for the same entry
				currentTopics = append(currentTopics, topic)
			} else {
				saveEntry()
				currentTopics = []string{topic}
				buf.Reset()
			}
		} else if len(currentTopics) > 0 {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	saveEntry()

	return entries, scanner.Err()
}

// Lookup finds a help entry: exact match first, then the shortest
// topic the query is a prefix of.
func (h *HelpSystem) Lookup(topic string) (string, bool) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return "", false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if text, ok := h.entries[topic]; ok {
		return text, true
	}

	var bestKey string
	for key := range h.entries {
		if strings.HasPrefix(key, topic) {
			if bestKey == "" || len(key) < len(bestKey) {
				bestKey = key
			}
		}
	}
	if bestKey != "" {
		return h.entries[bestKey], true
	}
	return "", false
}

// MOTD returns the message-of-the-day text, empty if none.
func (h *HelpSystem) MOTD() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.motd
}

// Topics returns the number of loaded help topics.
func (h *HelpSystem) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Watch starts an fsnotify watcher that reloads the help and MOTD files
// when they change on disk.
func (h *HelpSystem) Watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("HELP: could not start file watcher: %v", err)
		return
	}

	tracked := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range []string{h.helpPath, h.motdPath} {
		if p == "" {
			continue
		}
		tracked[filepath.Base(p)] = true
		dirs[filepath.Dir(p)] = true
	}
	if len(dirs) == 0 {
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !tracked[filepath.Base(event.Name)] {
					continue
				}
				log.Printf("HELP: %s changed on disk, reloading", filepath.Base(event.Name))
				if err := h.Reload(); err != nil {
					log.Printf("HELP: reload: %v", err)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("HELP: watcher error: %v", err)
			}
		}
	}()

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			log.Printf("HELP: could not watch %s: %v", dir, err)
		}
	}
	h.watcher = watcher
}

// Close stops the file watcher, if one is running.
func (h *HelpSystem) Close() {
	if h.watcher != nil {
		h.watcher.Close()
	}
}
