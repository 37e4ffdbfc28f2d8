package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emmett/voxtask/internal/models"
)

// ModelManager prints model listings and drives downloads for the CLI
type ModelManager struct {
	models *models.Manager
	out    io.Writer
	in     io.Reader
}

// NewModelManager creates a ModelManager over mgr. Prompts read from in;
// a nil in never prompts.
func NewModelManager(mgr *models.Manager, out io.Writer, in io.Reader) *ModelManager {
	return &ModelManager{models: mgr, out: out, in: in}
}

// ListModels prints the catalog with download status
func (m *ModelManager) ListModels() error {
	fmt.Fprintln(m.out, "Available models for download:")
	fmt.Fprintln(m.out)

	def := m.models.Default()
	for i, model := range models.Catalog {
		marker := ""
		if model.Name == def {
			marker = " [DEFAULT]"
		}
		fmt.Fprintf(m.out, "%d. %s (%s)%s\n", i+1, model.Name, model.Alias, marker)
		fmt.Fprintf(m.out, "   Language: %s\n", model.Language)
		fmt.Fprintf(m.out, "   Size:     %s\n", model.Size)
		fmt.Fprintf(m.out, "   Info:     %s\n", model.Description)

		status := "Not downloaded"
		if m.models.IsDownloaded(model.Name) {
			status = "Downloaded"
		}
		fmt.Fprintf(m.out, "   Status:   %s\n\n", status)
	}

	fmt.Fprintln(m.out, "To download a model, use:")
	fmt.Fprintln(m.out, "  voxtask models download <model-name>")
	return nil
}

// ListDownloaded prints the models present on disk
func (m *ModelManager) ListDownloaded() error {
	downloaded, err := m.models.ListDownloaded()
	if err != nil {
		return fmt.Errorf("error listing models: %w", err)
	}

	if len(downloaded) == 0 {
		fmt.Fprintln(m.out, "No models downloaded yet.")
		fmt.Fprintln(m.out, "Use 'voxtask models download <name>' to download a model")
		return nil
	}

	fmt.Fprintf(m.out, "Downloaded models (%d):\n\n", len(downloaded))
	def := m.models.Default()
	for i, name := range downloaded {
		marker := ""
		if name == def {
			marker = " [DEFAULT]"
		}
		fmt.Fprintf(m.out, "%d. %s%s\n", i+1, name, marker)
	}
	return nil
}

// Download fetches a model unless it is already present
func (m *ModelManager) Download(ctx context.Context, name string) error {
	model, err := models.Find(name)
	if err != nil {
		fmt.Fprintln(m.out, "Use 'voxtask models list' to see available models")
		return err
	}

	if m.models.IsDownloaded(model.Name) {
		path, _ := m.models.Path(model.Name)
		fmt.Fprintf(m.out, "Model '%s' is already downloaded.\nLocation: %s\n", model.Name, path)
		return nil
	}

	fmt.Fprintf(m.out, "Downloading model: %s (%s)\n", model.Name, model.Size)
	err = m.models.Download(ctx, model.Name, m.progress)
	fmt.Fprintln(m.out)
	if err != nil {
		return fmt.Errorf("error downloading model: %w", err)
	}

	fmt.Fprintf(m.out, "Model '%s' downloaded successfully\n", model.Name)
	return nil
}

// SetDefault records name as the default model
func (m *ModelManager) SetDefault(name string) error {
	if err := m.models.SetDefault(name); err != nil {
		return fmt.Errorf("error setting default model: %w", err)
	}

	def := m.models.Default()
	fmt.Fprintf(m.out, "Default model set to: %s\n", def)
	if !m.models.IsDownloaded(def) {
		fmt.Fprintf(m.out, "Note: this model is not downloaded yet. Run 'voxtask models download %s'.\n", def)
	}
	return nil
}

// SelectModel picks the model to recognize with: an explicit name, else
// the catalog model for the configured language when one matches the
// recorded default's language, else the recorded default
func (m *ModelManager) SelectModel(name, language string) string {
	if name != "" {
		if model, err := models.Find(name); err == nil {
			return model.Name
		}
		return name
	}

	def := m.models.Default()
	if language == "" {
		return def
	}
	if current, err := models.Find(def); err == nil && sameLanguage(current.Language, language) {
		return def
	}
	if model, err := models.ForLanguage(language); err == nil {
		return model.Name
	}
	return def
}

// EnsureModel makes sure name is downloaded, asking first unless
// autoDownload is set, and returns its path
func (m *ModelManager) EnsureModel(ctx context.Context, name string, autoDownload bool) (string, error) {
	if path, err := m.models.Path(name); err == nil {
		return path, nil
	}

	if !autoDownload {
		if !m.confirm(fmt.Sprintf("Model '%s' not found. Download it now? (y/n): ", name)) {
			return "", fmt.Errorf("model download declined: %s", name)
		}
	} else {
		fmt.Fprintf(m.out, "Model '%s' not found. Downloading automatically...\n", name)
	}

	if err := m.models.Download(ctx, name, m.progress); err != nil {
		fmt.Fprintln(m.out)
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	fmt.Fprintln(m.out)
	return m.models.Path(name)
}

func (m *ModelManager) confirm(prompt string) bool {
	if m.in == nil {
		return false
	}
	fmt.Fprint(m.out, prompt)
	response, err := bufio.NewReader(m.in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func (m *ModelManager) progress(downloaded, total int64) {
	if total <= 0 {
		fmt.Fprintf(m.out, "\rProgress: %d bytes", downloaded)
		return
	}
	percent := float64(downloaded) / float64(total) * 100
	fmt.Fprintf(m.out, "\rProgress: %.1f%% (%d/%d bytes)", percent, downloaded, total)
}

func sameLanguage(a, b string) bool {
	la, _, _ := strings.Cut(strings.ToLower(a), "-")
	lb, _, _ := strings.Cut(strings.ToLower(b), "-")
	return la == lb
}
