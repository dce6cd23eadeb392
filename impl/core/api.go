package core

import (
	"context"
	"fmt"
	"io"

	"OmniHub/entity"
	"OmniHub/internal/service/ingest"
)

func (c *Core) AuthenticateByToken(token string) (string, error) {
	if c.authService == nil {
		return "", fmt.Errorf("authService is not set")
	}
	return c.authService.AuthenticateByToken(token)
}

func (c *Core) Ingest(ctx context.Context, ev entity.ChannelEvent) (*ingest.Result, error) {
	if c.ingestion == nil {
		return nil, fmt.Errorf("ingestion is not set")
	}
	return c.ingestion.Ingest(ctx, ev)
}

func (c *Core) IngestRaw(ctx context.Context, channel, companyID, connectionID string, body []byte) (int, error) {
	if c.ingestion == nil {
		return 0, fmt.Errorf("ingestion is not set")
	}
	return c.ingestion.IngestRaw(ctx, channel, companyID, connectionID, body)
}

func (c *Core) ListThreads(companyID string, limit int) ([]entity.Thread, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	return c.repo.ListThreads(companyID, limit)
}

func (c *Core) ListThreadMessages(threadID string, limit, offset int) ([]entity.Message, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	return c.repo.ListThreadMessages(threadID, limit, offset)
}

func (c *Core) ListTasks(companyID, status string, limit int) ([]entity.Task, error) {
	if c.repo == nil {
		return nil, fmt.Errorf("repository is not set")
	}
	return c.repo.ListTasks(companyID, status, limit)
}

func (c *Core) OpenFile(fileID string) (string, string, io.ReadCloser, error) {
	if c.repo == nil {
		return "", "", nil, fmt.Errorf("repository is not set")
	}
	return c.repo.OpenFile(fileID)
}

func (c *Core) CloseTask(taskID string) error {
	if c.conv == nil {
		return fmt.Errorf("conversations is not set")
	}
	return c.conv.CloseTask(taskID)
}

func (c *Core) GenerateApiKey(username string) (string, error) {
	if c.authService == nil {
		return "", fmt.Errorf("authService is not set")
	}
	if username == "" {
		return "", fmt.Errorf("username is required")
	}
	return c.authService.IssueKey(username)
}
