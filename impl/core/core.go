package core

import (
	"context"
	"io"
	"log/slog"

	"OmniHub/entity"
	"OmniHub/internal/lib/sl"
	"OmniHub/internal/service/ingest"
)

type Repository interface {
	ListThreads(companyID string, limit int) ([]entity.Thread, error)
	ListThreadMessages(threadID string, limit, offset int) ([]entity.Message, error)
	ListTasks(companyID, status string, limit int) ([]entity.Task, error)
	OpenFile(fileID string) (string, string, io.ReadCloser, error)
}

type Ingestion interface {
	Ingest(ctx context.Context, ev entity.ChannelEvent) (*ingest.Result, error)
	IngestRaw(ctx context.Context, channel, companyID, connectionID string, body []byte) (int, error)
}

type Conversations interface {
	CloseTask(taskID string) error
}

type AuthService interface {
	AuthenticateByToken(token string) (string, error)
	IssueKey(username string) (string, error)
}

// Core wires the services behind the single handler facade the API
// server expects.
type Core struct {
	repo        Repository
	ingestion   Ingestion
	conv        Conversations
	authService AuthService
	log         *slog.Logger
}

func New(log *slog.Logger) *Core {
	return &Core{
		log: log.With(sl.Module("core")),
	}
}

func (c *Core) SetRepository(repo Repository) {
	c.repo = repo
}

func (c *Core) SetIngestion(ingestion Ingestion) {
	c.ingestion = ingestion
}

func (c *Core) SetConversations(conv Conversations) {
	c.conv = conv
}

func (c *Core) SetAuthService(auth AuthService) {
	c.authService = auth
}
