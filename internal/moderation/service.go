package moderation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Service provides moderation functionality with role-based access control
type Service struct {
	mu         sync.RWMutex
	config     *Config
	configPath string

	// Quick lookup map built from config, keyed by lowercased username
	userRoles map[string]*Role
}

// NewService creates a new moderation service.
// If configPath is empty, the service will be in "disabled" mode
// where all permission checks return false.
func NewService(configPath string) (*Service, error) {
	s := &Service{
		configPath: configPath,
		userRoles:  make(map[string]*Role),
	}

	if configPath == "" {
		log.Info().Msg("moderation: no config path provided, service disabled")
		return s, nil
	}

	if err := s.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load moderation config: %w", err)
	}

	return s, nil
}

// loadConfig reads and parses the config file
func (s *Service) loadConfig() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", s.configPath).Msg("moderation: config file not found, service disabled")
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = &config
	s.rebuildLookupMaps()

	log.Info().
		Int("roles", len(config.Roles)).
		Int("users", len(config.Users)).
		Str("path", s.configPath).
		Msg("moderation: config loaded")

	return nil
}

// rebuildLookupMaps rebuilds the quick lookup maps from config
// Caller must hold the write lock
func (s *Service) rebuildLookupMaps() {
	s.userRoles = make(map[string]*Role)

	if s.config == nil {
		return
	}

	for i := range s.config.Users {
		user := &s.config.Users[i]
		role, ok := s.config.Roles[user.Role]
		if ok {
			s.userRoles[normalizeUsername(user.Username)] = role
		}
	}
}

// Reddit usernames are case-insensitive
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(username, "u/"))
}

// Reload reloads the configuration from disk
func (s *Service) Reload() error {
	if s.configPath == "" {
		return nil
	}
	return s.loadConfig()
}

// IsEnabled returns true if the moderation service is configured and enabled
func (s *Service) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config != nil && len(s.config.Users) > 0
}

// IsModerator returns true if the given username has any configured role
func (s *Service) IsModerator(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.userRoles[normalizeUsername(username)]
	return ok
}

// HasPermission returns true if the given username has the specified permission
func (s *Service) HasPermission(username string, permission Permission) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.userRoles[normalizeUsername(username)]
	if !ok {
		return false
	}
	return role.HasPermission(permission)
}
