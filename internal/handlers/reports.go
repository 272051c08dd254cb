package handlers

import (
	"sort"
	"strings"
	"time"

	"github.com/arnold/phasetrack-api/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ReportTask struct {
	Name   string            `json:"taskName"`
	Status models.TaskStatus `json:"status"`
}

type ReportPhase struct {
	Name           string       `json:"phaseName"`
	Lead           string       `json:"phaseLead"`
	CompletionRate float64      `json:"phaseCompletionRate"`
	Tasks          []ReportTask `json:"tasks"`
}

type ReportProject struct {
	Name           string        `json:"projectName"`
	Description    string        `json:"projectDescription"`
	StartDate      time.Time     `json:"startDate"`
	EndDate        time.Time     `json:"endDate"`
	CompletionRate float64       `json:"projectCompletionRate"`
	Phases         []ReportPhase `json:"phases"`
	Remarks        []string      `json:"remarks"`
}

// buildProjectReport groups tasks by phase in first-seen order, labels each
// phase with the leads and rate of its latest history entry, and collects the
// remarks of Done tasks oldest first. Phases without tasks are left out.
func buildProjectReport(project models.Project, tasks []models.Task) ReportProject {
	report := ReportProject{
		Name:           project.Name,
		Description:    project.Description,
		StartDate:      project.StartDate,
		EndDate:        project.EstimatedEndDate,
		CompletionRate: project.CompletionRate,
		Phases:         []ReportPhase{},
		Remarks:        []string{},
	}
	if project.ActualEndDate != nil {
		report.EndDate = *project.ActualEndDate
	}

	index := map[uuid.UUID]int{}
	var remarks []models.TaskRemark
	for _, task := range tasks {
		i, ok := index[task.PhaseID]
		if !ok {
			name := ""
			if task.Phase != nil {
				name = task.Phase.Name
			}
			i = len(report.Phases)
			index[task.PhaseID] = i
			report.Phases = append(report.Phases, ReportPhase{Name: name, Tasks: []ReportTask{}})
		}
		report.Phases[i].Tasks = append(report.Phases[i].Tasks, ReportTask{Name: task.Name, Status: task.Status})
		if task.Status == models.TaskDone {
			remarks = append(remarks, task.Remarks...)
		}
	}

	for _, h := range project.PhasesHistory {
		i, ok := index[h.PhaseID]
		if !ok {
			continue
		}
		names := make([]string, len(h.Leads))
		for j, lead := range h.Leads {
			names[j] = lead.Name
		}
		report.Phases[i].Lead = strings.Join(names, ", ")
		report.Phases[i].CompletionRate = h.CompletionRate
	}

	sort.SliceStable(remarks, func(a, b int) bool {
		return remarks[a].CreatedAt.Before(remarks[b].CreatedAt)
	})
	for _, r := range remarks {
		report.Remarks = append(report.Remarks, r.CreatedAt.Format("2006-01-02")+" - "+r.Text)
	}
	return report
}

// GetReportOverview returns the per-project report rows.
func GetReportOverview(c *fiber.Ctx) error {
	var projects []models.Project
	if err := preloadProject(db(c)).Order("created_at ASC").Find(&projects).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load projects")
	}

	var tasks []models.Task
	if err := preloadTask(db(c)).Preload("Phase").Order("created_at ASC").Find(&tasks).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load tasks")
	}
	byProject := map[uuid.UUID][]models.Task{}
	for _, t := range tasks {
		byProject[t.ProjectID] = append(byProject[t.ProjectID], t)
	}

	report := make([]ReportProject, 0, len(projects))
	for _, p := range projects {
		report = append(report, buildProjectReport(p, byProject[p.ID]))
	}
	return c.JSON(report)
}
