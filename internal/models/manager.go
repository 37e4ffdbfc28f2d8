// Package models manages the Vosk speech models voice commands are
// recognized with.
package models

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnknownModel is returned for names missing from the catalog
var ErrUnknownModel = errors.New("unknown model")

// Model represents a Vosk model
type Model struct {
	Name        string
	Alias       string
	Language    string
	Size        string
	URL         string
	Description string
}

// Catalog lists the models that can be downloaded. Small models suit
// short commands best.
var Catalog = []Model{
	{
		Name:        "vosk-model-small-en-us-0.15",
		Alias:       "small-en-us",
		Language:    "en-US",
		Size:        "40M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-small-en-us-0.15.zip",
		Description: "Lightweight English model, fast but less accurate",
	},
	{
		Name:        "vosk-model-en-us-0.22-lgraph",
		Alias:       "en-us",
		Language:    "en-US",
		Size:        "128M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-en-us-0.22-lgraph.zip",
		Description: "Medium English model, balanced speed and accuracy",
	},
	{
		Name:        "vosk-model-small-de-0.15",
		Alias:       "small-de",
		Language:    "de-DE",
		Size:        "45M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-small-de-0.15.zip",
		Description: "Lightweight German model",
	},
	{
		Name:        "vosk-model-small-fr-0.22",
		Alias:       "small-fr",
		Language:    "fr-FR",
		Size:        "41M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-small-fr-0.22.zip",
		Description: "Lightweight French model",
	},
	{
		Name:        "vosk-model-small-es-0.42",
		Alias:       "small-es",
		Language:    "es-ES",
		Size:        "39M",
		URL:         "https://alphacephei.com/vosk/models/vosk-model-small-es-0.42.zip",
		Description: "Lightweight Spanish model",
	},
}

// DefaultModelName is the default model to use
const DefaultModelName = "vosk-model-small-en-us-0.15"

// Find looks a model up by full name or alias
func Find(name string) (Model, error) {
	for _, m := range Catalog {
		if m.Name == name || (m.Alias != "" && m.Alias == name) {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %s", ErrUnknownModel, name)
}

// ForLanguage returns the first catalog model for a locale such as
// "en-US"; a bare language ("de") matches any region
func ForLanguage(locale string) (Model, error) {
	locale = strings.ToLower(locale)
	lang, _, _ := strings.Cut(locale, "-")
	for _, m := range Catalog {
		if strings.ToLower(m.Language) == locale {
			return m, nil
		}
	}
	for _, m := range Catalog {
		l, _, _ := strings.Cut(strings.ToLower(m.Language), "-")
		if l == lang {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: no model for language %s", ErrUnknownModel, locale)
}

// Manager stores models under one directory
type Manager struct {
	dir    string
	client *http.Client
}

// DefaultDir returns ~/.voxtask/models
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "models"
	}
	return filepath.Join(home, ".voxtask", "models")
}

// NewManager manages models in dir; an empty dir uses DefaultDir
func NewManager(dir string, client *http.Client) *Manager {
	if dir == "" {
		dir = DefaultDir()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{dir: dir, client: client}
}

// Dir returns the models directory
func (m *Manager) Dir() string {
	return m.dir
}

// IsDownloaded checks if a model is already downloaded
func (m *Manager) IsDownloaded(name string) bool {
	info, err := os.Stat(filepath.Join(m.dir, name))
	return err == nil && info.IsDir()
}

// Path returns the directory of a downloaded model. Aliases are accepted.
func (m *Manager) Path(name string) (string, error) {
	if model, err := Find(name); err == nil {
		name = model.Name
	}
	if !m.IsDownloaded(name) {
		return "", fmt.Errorf("model not found: %s (run 'voxtask models download %s')", name, name)
	}
	return filepath.Join(m.dir, name), nil
}

// Default returns the model chosen with SetDefault, or DefaultModelName
func (m *Manager) Default() string {
	data, err := os.ReadFile(filepath.Join(m.dir, ".default_model"))
	if err != nil {
		return DefaultModelName
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return DefaultModelName
	}
	return name
}

// SetDefault records the default model
func (m *Manager) SetDefault(name string) error {
	model, err := Find(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, ".default_model"), []byte(model.Name), 0644); err != nil {
		return fmt.Errorf("failed to save default model: %w", err)
	}
	return nil
}

// ListDownloaded lists all downloaded models
func (m *Manager) ListDownloaded() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "vosk-model-") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Download fetches and unpacks a catalog model. progress may be nil.
func (m *Manager) Download(ctx context.Context, name string, progress func(downloaded, total int64)) error {
	model, err := Find(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	zipPath := filepath.Join(m.dir, model.Name+".zip")
	defer os.Remove(zipPath)

	if err := m.fetch(ctx, model.URL, zipPath, progress); err != nil {
		return err
	}

	if err := extractZip(zipPath, m.dir); err != nil {
		return fmt.Errorf("failed to extract model: %w", err)
	}
	if !m.IsDownloaded(model.Name) {
		return fmt.Errorf("archive did not contain %s", model.Name)
	}
	return nil
}

func (m *Manager) fetch(ctx context.Context, url, dest string, progress func(downloaded, total int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	var body io.Reader = resp.Body
	if progress != nil {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, progress: progress}
	}
	if _, err := io.Copy(out, body); err != nil {
		return fmt.Errorf("download error: %w", err)
	}
	return out.Close()
}

type progressReader struct {
	r        io.Reader
	read     int64
	total    int64
	progress func(downloaded, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.progress(p.read, p.total)
	}
	return n, err
}

// extractZip extracts a zip file to the specified directory
func extractZip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		fpath := filepath.Join(destDir, f.Name)

		// Check for ZipSlip vulnerability
		if !strings.HasPrefix(fpath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path: %s", fpath)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return err
			}
			continue
		}

		if err := extractFile(f, fpath); err != nil {
			return err
		}
	}

	return nil
}

func extractFile(f *zip.File, fpath string) error {
	if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
		return err
	}

	outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer outFile.Close()

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(outFile, rc)
	return err
}
