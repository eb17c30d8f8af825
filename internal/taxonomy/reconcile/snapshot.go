package reconcile

import (
	"fmt"
	"strings"

	apperrors "github.com/yungbote/intentbase-backend/internal/pkg/errors"
	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/naming"
	"github.com/yungbote/intentbase-backend/internal/taxonomy/tags"
	"github.com/yungbote/intentbase-backend/internal/utils"
)

// Sheet is one top-level intent in a snapshot: its name, a description and
// the full training-phrase list for that intent.
type Sheet struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Phrases     []string `yaml:"phrases" json:"phrases"`
}

// Snapshot is a full per-tenant taxonomy export. Reconciliation treats it as
// the complete desired state: intents absent from it are deleted.
type Snapshot struct {
	Sheets []Sheet `yaml:"sheets" json:"sheets"`
}

// Limits are the snapshot validation tunables.
type Limits struct {
	MinPhrases   int
	MaxPhraseLen int
}

func LimitsFromEnv(log *logger.Logger) Limits {
	return Limits{
		MinPhrases:   utils.GetEnvAsInt("TAXONOMY_MIN_PHRASES", 3, log),
		MaxPhraseLen: utils.GetEnvAsInt("TAXONOMY_MAX_PHRASE_LEN", 256, log),
	}
}

// Validate checks every sheet before any mutation and reports all violations
// at once, so a caller can fix a bad export in one round trip.
func Validate(snap Snapshot, limits Limits) error {
	if len(snap.Sheets) == 0 {
		return apperrors.Validationf("snapshot has no sheets")
	}

	var problems []string
	seen := map[string]bool{}
	for i, sheet := range snap.Sheets {
		label := fmt.Sprintf("sheet %d (%q)", i+1, sheet.Name)

		name := strings.TrimSpace(sheet.Name)
		if !naming.IsValidName(name) {
			problems = append(problems, label+": invalid name")
		} else if key := tags.Normalize(name); seen[key] {
			problems = append(problems, label+": duplicate sheet name")
		} else {
			seen[key] = true
		}

		phrases := 0
		for _, p := range sheet.Phrases {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			phrases++
			if len(p) > limits.MaxPhraseLen {
				problems = append(problems, fmt.Sprintf("%s: phrase %q exceeds %d characters", label, truncate(p, 32), limits.MaxPhraseLen))
			}
		}
		if phrases < limits.MinPhrases {
			problems = append(problems, fmt.Sprintf("%s: %d phrases, need at least %d", label, phrases, limits.MinPhrases))
		}
	}

	if len(problems) > 0 {
		return apperrors.Validationf("snapshot rejected: %s", strings.Join(problems, "; "))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
