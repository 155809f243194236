package constitution

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileStore persists the constitution as YAML, or JSON when the path ends in
// .json. Unknown keys are rejected on load.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) isJSON() bool {
	return strings.EqualFold(filepath.Ext(f.path), ".json")
}

func (f *FileStore) Load() (UserConstitution, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return UserConstitution{}, ErrNotFound
	}
	if err != nil {
		return UserConstitution{}, fmt.Errorf("read constitution file: %w", err)
	}

	if f.isJSON() {
		return DecodeJSON(data)
	}

	var c UserConstitution
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return UserConstitution{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConstitution, f.path, err)
	}
	if err := c.Validate(); err != nil {
		return UserConstitution{}, err
	}
	return c, nil
}

// Save writes to a temp file and renames it over the target so a crash never
// leaves a truncated constitution behind.
func (f *FileStore) Save(c UserConstitution) error {
	var (
		data []byte
		err  error
	)
	if f.isJSON() {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal constitution: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create constitution dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".constitution-*")
	if err != nil {
		return fmt.Errorf("write constitution file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write constitution file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write constitution file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write constitution file: %w", err)
	}
	return nil
}
