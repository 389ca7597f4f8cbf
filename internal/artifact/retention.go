package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RunSummaryFile is written by the pipeline into every run directory
const RunSummaryFile = "run_summary.json"

// PlanAction is what retention does to a path
type PlanAction string

const (
	ActionDeleteDir  PlanAction = "DELETE_DIR"
	ActionDeleteFile PlanAction = "DELETE_FILE"
)

// PlanItem is one retention step
type PlanItem struct {
	Action PlanAction `json:"action"`
	Path   string     `json:"path"`
	Reason string     `json:"reason"`
}

// RetentionPolicy defines what is pruned
type RetentionPolicy struct {
	RunDays      int    // run dirs of PruneCadence older than N days
	ReportDays   int    // report/alert files older than N days
	PruneCadence string // 이 cadence 의 run 만 정리 (예: "0800")
}

// protected report names are never pruned (audit-critical)
func protectedReport(name string) bool {
	return strings.HasPrefix(name, "reconcile_") || name == "universe_validation.md"
}

// Plan builds the retention plan; nothing is deleted
func (w *Writer) Plan(policy RetentionPolicy, now time.Time) ([]PlanItem, error) {
	items := make([]PlanItem, 0)

	runCutoff := now.AddDate(0, 0, -max(0, policy.RunDays))
	fileCutoff := now.AddDate(0, 0, -max(0, policy.ReportDays))

	// 1. run 디렉토리
	runs, err := readDirSorted(filepath.Join(w.root, RunsDir))
	if err != nil {
		return nil, err
	}
	for _, entry := range runs {
		if !entry.IsDir() || policy.PruneCadence == "" {
			continue
		}
		dir := filepath.Join(w.root, RunsDir, entry.Name())
		if runCadence(dir) != policy.PruneCadence {
			continue
		}
		if olderThan(dir, runCutoff) {
			items = append(items, PlanItem{
				Action: ActionDeleteDir,
				Path:   dir,
				Reason: fmt.Sprintf("cadence-%s run older than %d days", policy.PruneCadence, policy.RunDays),
			})
		}
	}

	// 2. 리포트 / 알림 파일
	for _, kind := range []string{ReportsDir, AlertsDir} {
		entries, err := readDirSorted(filepath.Join(w.root, kind))
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || protectedReport(entry.Name()) {
				continue
			}
			path := filepath.Join(w.root, kind, entry.Name())
			if olderThan(path, fileCutoff) {
				items = append(items, PlanItem{
					Action: ActionDeleteFile,
					Path:   path,
					Reason: fmt.Sprintf("%s file older than %d days", strings.TrimSuffix(kind, "s"), policy.ReportDays),
				})
			}
		}
	}

	return items, nil
}

// Apply executes plan items and returns how many were removed
func (w *Writer) Apply(items []PlanItem) (int, error) {
	removed := 0
	for _, item := range items {
		var err error
		switch item.Action {
		case ActionDeleteDir:
			err = os.RemoveAll(item.Path)
		case ActionDeleteFile:
			err = os.Remove(item.Path)
			if os.IsNotExist(err) {
				err = nil
			}
		default:
			err = fmt.Errorf("unknown action %s", item.Action)
		}
		if err != nil {
			return removed, fmt.Errorf("failed to apply %s %s: %w", item.Action, item.Path, err)
		}
		removed++

		w.logger.WithFields(map[string]interface{}{
			"action": item.Action,
			"path":   item.Path,
			"reason": item.Reason,
		}).Info("Artifact pruned")
	}
	return removed, nil
}

func readDirSorted(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func runCadence(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, RunSummaryFile))
	if err != nil {
		return ""
	}
	var summary struct {
		Cadence string `json:"cadence"`
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return ""
	}
	return summary.Cadence
}

func olderThan(path string, cutoff time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.ModTime().Before(cutoff)
}
