package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wonny/tradeops/backend/pkg/logger"
)

// Directory layout under the artifacts root
const (
	RunsDir    = "runs"
	TicketsDir = "tickets"
	AlertsDir  = "alerts"
	ReportsDir = "reports"
)

// Writer writes JSON/text artifacts under one root directory
// ⭐ SSOT: 산출물 경로 규칙은 여기서만
type Writer struct {
	root   string
	logger *logger.Logger
}

// NewWriter creates a new artifact writer
func NewWriter(root string, log *logger.Logger) *Writer {
	return &Writer{root: root, logger: log}
}

// Root returns the artifacts root
func (w *Writer) Root() string {
	return w.root
}

// RunDir returns runs/<run_id>
func (w *Writer) RunDir(runID string) string {
	return filepath.Join(w.root, RunsDir, runID)
}

// TicketDir returns tickets/<ticket_id>
func (w *Writer) TicketDir(ticketID string) string {
	return filepath.Join(w.root, TicketsDir, ticketID)
}

// WriteRunJSON writes runs/<run_id>/<name>
func (w *Writer) WriteRunJSON(runID, name string, v any) (string, error) {
	dir, err := w.dir(RunsDir, runID)
	if err != nil {
		return "", err
	}
	return w.writeJSON(dir, name, v)
}

// ReadRunJSON decodes runs/<run_id>/<name> into v
func (w *Writer) ReadRunJSON(runID, name string, v any) error {
	dir, err := w.dir(RunsDir, runID)
	if err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// RemoveRunFile deletes runs/<run_id>/<name>; a missing file is not an error
func (w *Writer) RemoveRunFile(runID, name string) error {
	dir, err := w.dir(RunsDir, runID)
	if err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}

	err = os.Remove(filepath.Join(dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// WriteTicketJSON writes tickets/<ticket_id>/<name>
func (w *Writer) WriteTicketJSON(ticketID, name string, v any) (string, error) {
	dir, err := w.dir(TicketsDir, ticketID)
	if err != nil {
		return "", err
	}
	return w.writeJSON(dir, name, v)
}

// WriteTicketText writes tickets/<ticket_id>/<name> verbatim
func (w *Writer) WriteTicketText(ticketID, name, text string) (string, error) {
	dir, err := w.dir(TicketsDir, ticketID)
	if err != nil {
		return "", err
	}
	return w.writeFile(dir, name, []byte(text))
}

// WriteAlertJSON writes alerts/<alert_id>.json
func (w *Writer) WriteAlertJSON(alertID string, v any) (string, error) {
	dir := filepath.Join(w.root, AlertsDir)
	return w.writeJSON(dir, alertID+".json", v)
}

func (w *Writer) dir(kind, id string) (string, error) {
	if err := checkName(id); err != nil {
		return "", fmt.Errorf("invalid %s id: %w", kind, err)
	}
	return filepath.Join(w.root, kind, id), nil
}

func (w *Writer) writeJSON(dir, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return w.writeFile(dir, name, append(data, '\n'))
}

// writeFile writes via temp file + rename so readers never see a partial artifact
func (w *Writer) writeFile(dir, name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to rename %s: %w", name, err)
	}

	w.logger.WithField("path", path).Debug("Artifact written")
	return path, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}
