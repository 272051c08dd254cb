package progress

import (
	"context"
	"sort"

	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Catalog reports how many phases the system defines. Its size is the
// denominator of every project's completion rate.
type Catalog interface {
	CountPhases(ctx context.Context) (int64, error)
}

type GormCatalog struct {
	DB *gorm.DB
}

func (c GormCatalog) CountPhases(ctx context.Context) (int64, error) {
	var n int64
	err := c.DB.WithContext(ctx).Model(&models.Phase{}).Count(&n).Error
	return n, err
}

// ProjectCompletion sums the rate of the first entry of each distinct phase
// in the history and divides by the catalog size, so phases the project never
// entered count as 0. Revisits of a phase are not counted twice.
func ProjectCompletion(history []models.PhaseHistory, catalogSize int64) float64 {
	if catalogSize <= 0 {
		return 0
	}

	ordered := make([]models.PhaseHistory, len(history))
	copy(ordered, history)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})

	seen := make(map[uuid.UUID]bool, len(ordered))
	var total float64
	for _, h := range ordered {
		if seen[h.PhaseID] {
			continue
		}
		seen[h.PhaseID] = true
		total += h.CompletionRate
	}
	return total / float64(catalogSize)
}
