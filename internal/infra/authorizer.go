package infra

import (
	"sync"

	"vault_go/internal/domain"
)

// RoleStore is an in-memory authorizer keyed by account and role.
type RoleStore struct {
	mu    sync.RWMutex
	roles map[domain.AccountID]map[domain.Role]bool
}

func NewRoleStore() *RoleStore {
	return &RoleStore{roles: make(map[domain.AccountID]map[domain.Role]bool)}
}

func (s *RoleStore) Grant(account domain.AccountID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[account] == nil {
		s.roles[account] = make(map[domain.Role]bool)
	}
	s.roles[account][role] = true
}

func (s *RoleStore) Revoke(account domain.AccountID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles[account], role)
}

func (s *RoleStore) HasRole(account domain.AccountID, role domain.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[account][role]
}
