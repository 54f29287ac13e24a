package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-selfheal/internal/models"
)

// FallbackAction is returned for labels outside the known set.
const FallbackAction = "Investigate unknown anomaly"

var defaultActions = map[models.AnomalyLabel]string{
	models.LabelCPUContention:    "Scale up CPU or increase service replicas",
	models.LabelMemoryContention: "Restart service or increase memory limit",
	models.LabelPodCrashFailure:  "Restart service or check application logs",
	models.LabelNormal:           "No action needed",
}

// KnowledgeBase maps anomaly labels to remediation text.
type KnowledgeBase struct {
	actions map[models.AnomalyLabel]string
}

// KnowledgeFile is the YAML root structure of an override file.
type KnowledgeFile struct {
	Actions map[string]string `yaml:"actions"`
}

// DefaultKnowledgeBase returns the built-in remediation table.
func DefaultKnowledgeBase() *KnowledgeBase {
	actions := make(map[models.AnomalyLabel]string, len(defaultActions))
	for label, action := range defaultActions {
		actions[label] = action
	}
	return &KnowledgeBase{actions: actions}
}

// LoadKnowledgeBase applies overrides from a YAML file on top of the defaults.
// An empty path or a missing file yields the defaults; unknown labels are rejected.
func LoadKnowledgeBase(path string, logger *slog.Logger) (*KnowledgeBase, error) {
	kb := DefaultKnowledgeBase()
	if path == "" {
		return kb, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("knowledge base override not found, using defaults", slog.String("path", path))
			return kb, nil
		}
		return nil, err
	}
	var file KnowledgeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse knowledge base %s: %w", path, err)
	}

	var unknown []string
	for raw, action := range file.Actions {
		label := models.AnomalyLabel(raw)
		if !label.IsKnown() {
			unknown = append(unknown, raw)
			continue
		}
		if strings.TrimSpace(action) == "" {
			return nil, fmt.Errorf("knowledge base %s: empty action for %s", path, raw)
		}
		kb.actions[label] = action
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("knowledge base %s: unknown labels %s", path, strings.Join(unknown, ", "))
	}
	logger.Info("knowledge base loaded", slog.String("path", path), slog.Int("overrides", len(file.Actions)))
	return kb, nil
}

// Resolve returns the action for label, or FallbackAction for anything unknown.
func (kb *KnowledgeBase) Resolve(label models.AnomalyLabel) string {
	if kb == nil {
		kb = DefaultKnowledgeBase()
	}
	if action, ok := kb.actions[label]; ok {
		return action
	}
	return FallbackAction
}
