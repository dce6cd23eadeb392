package threads

import "OmniHub/entity"

type Core interface {
	ListThreads(companyID string, limit int) ([]entity.Thread, error)
	ListThreadMessages(threadID string, limit, offset int) ([]entity.Message, error)
}
