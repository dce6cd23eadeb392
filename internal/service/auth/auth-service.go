package auth

import (
	"fmt"
	"log/slog"
	"sync"

	"OmniHub/internal/lib/sl"
)

type Repository interface {
	CheckApiKey(key string) (string, error)
	GenerateApiKey(username string) (string, error)
}

// Service resolves bearer tokens to caller names. The static key from
// config always works; everything else goes through the key store, with
// a small cache so repeated calls skip the round trip.
type Service struct {
	repository Repository
	staticKey  string
	cache      map[string]string
	mu         sync.RWMutex
	log        *slog.Logger
}

func NewAuthService(logger *slog.Logger, staticKey string) *Service {
	return &Service{
		repository: nil,
		staticKey:  staticKey,
		cache:      make(map[string]string),
		log:        logger.With(sl.Module("auth-service")),
	}
}

func (s *Service) SetRepository(repository Repository) {
	s.repository = repository
}

func (s *Service) AuthenticateByToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	if s.staticKey != "" && token == s.staticKey {
		return "service", nil
	}

	s.mu.RLock()
	username, ok := s.cache[token]
	s.mu.RUnlock()
	if ok {
		return username, nil
	}

	if s.repository == nil {
		return "", fmt.Errorf("token not found")
	}

	username, err := s.repository.CheckApiKey(token)
	if err != nil {
		return "", fmt.Errorf("token not found")
	}

	s.mu.Lock()
	s.cache[token] = username
	s.mu.Unlock()

	return username, nil
}

// IssueKey creates (or returns the existing) API key for a username.
func (s *Service) IssueKey(username string) (string, error) {
	if s.repository == nil {
		return "", fmt.Errorf("key store not configured")
	}
	key, err := s.repository.GenerateApiKey(username)
	if err != nil {
		s.log.Error("generating api key", sl.Err(err))
		return "", err
	}
	return key, nil
}
