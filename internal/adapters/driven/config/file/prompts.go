package file

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

//go:embed defaults/*.txt
var defaultsFS embed.FS

// PromptStore loads prompts from user-editable files in a directory, falling
// back to the defaults compiled into the binary.
//
// Nothing touches the disk until the first Load.
type PromptStore struct {
	promptDir string

	mu    sync.RWMutex
	cache map[string]string

	initOnce sync.Once
	initErr  error
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.bilgi/prompts/.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		promptDir = filepath.Join(dir, "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// DefaultPrompt returns the built-in text of a prompt.
func DefaultPrompt(name string) (string, bool) {
	data, err := defaultsFS.ReadFile("defaults/" + name + ".txt")
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Load returns the prompt with the given name.
// The user's file wins; a missing or unreadable file falls back to the default.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)

	s.mu.RLock()
	prompt, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return prompt, nil
	}

	prompt, err := s.read(name)
	if err != nil {
		def, ok := DefaultPrompt(name)
		if !ok {
			return "", fmt.Errorf("load prompt %q: %w", name, err)
		}
		prompt = def
	}

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// InitErr reports why the prompt directory could not be prepared, if it could not.
func (s *PromptStore) InitErr() error {
	s.initOnce.Do(s.initialise)
	return s.initErr
}

// initialise creates the prompt directory and writes any default prompt
// that has no file yet. Existing files are never overwritten.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	entries, err := fs.ReadDir(defaultsFS, "defaults")
	if err != nil {
		s.initErr = err
		return
	}
	for _, entry := range entries {
		data, err := defaultsFS.ReadFile("defaults/" + entry.Name())
		if err != nil {
			s.initErr = err
			return
		}
		if err := writeIfMissing(filepath.Join(s.promptDir, entry.Name()), data); err != nil {
			s.initErr = fmt.Errorf("create default prompt %s: %w", entry.Name(), err)
			return
		}
	}

	if err := writeIfMissing(filepath.Join(s.promptDir, "README.md"), []byte(readme)); err != nil {
		s.initErr = err
	}
}

func (s *PromptStore) read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.promptDir, name+".txt"))
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s.txt is empty", name)
	}
	return prompt, nil
}

func writeIfMissing(path string, data []byte) error {
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return os.WriteFile(path, data, 0600)
}

const readme = `# bilgi prompts

Prompts used when answering questions. Edit a file to change the wording;
delete it to restore the built-in default on the next run.

- answer_system.txt: system prompt for grounded answers
- web_header.txt: notice placed above web search results
- no_information.txt: reply when nothing relevant was found
- degraded.txt: reply when the language model is unreachable

None of these prompts take format placeholders.
`
