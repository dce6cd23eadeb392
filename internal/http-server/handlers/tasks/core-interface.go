package tasks

import "OmniHub/entity"

type Core interface {
	ListTasks(companyID, status string, limit int) ([]entity.Task, error)
	CloseTask(taskID string) error
}
