package service

import (
	"regexp"

	"github.com/standupbot/report-server-go/internal/model"
)

const unknownTaskID = "unknown"

var taskIDPattern = regexp.MustCompile(`/t/([a-zA-Z0-9]+)`)

// EnrichTask derives the tracker id and label from the task URL.
func EnrichTask(in model.TaskInput) model.EnrichedTask {
	taskID := unknownTaskID
	if m := taskIDPattern.FindStringSubmatch(in.URL); m != nil {
		taskID = m[1]
	}
	return model.EnrichedTask{
		URL:         in.URL,
		Description: in.Description,
		TaskID:      taskID,
		TaskName:    "TASK " + taskID,
	}
}

func EnrichTasks(in []model.TaskInput) model.TaskList {
	out := make(model.TaskList, 0, len(in))
	for _, t := range in {
		out = append(out, EnrichTask(t))
	}
	return out
}
