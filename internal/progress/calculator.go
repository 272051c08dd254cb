package progress

import "github.com/arnold/phasetrack-api/internal/models"

// PhaseCompletion returns the share of task weight that is Done, as a
// percentage. tasks must already be scoped to one project and one phase.
// Every non-Done status still counts toward the total, so a cancelled task
// caps the phase below 100 until it is removed. A phase whose total weight
// is zero is 0% complete.
func PhaseCompletion(tasks []models.Task) float64 {
	var completed, total float64
	for _, t := range tasks {
		total += t.Weight
		if t.Status == models.TaskDone {
			completed += t.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return completed / total * 100
}
