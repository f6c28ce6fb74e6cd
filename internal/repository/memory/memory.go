// Package memory provides in-process repository.* implementations backed by
// plain maps, used by tests and by single-node demo runs that don't need a
// durable KV. Store holds the shared state; each repository.* interface is
// implemented by a thin wrapper type over *Store so identically-named
// methods (Get, List, ...) don't collide on one receiver.
package memory

import (
	"sync"

	"github.com/easynet-cn/batata/internal/db/models"
)

type configKey struct{ namespace, group, dataID string }

// Store is the single in-memory backing shared by every wrapper type,
// guarded by one mutex since it is purely a test/demo fixture.
type Store struct {
	mu sync.Mutex

	namespaces map[string]*models.Namespace

	users     map[string]*models.User
	roles     map[string]*models.Role
	userRoles map[string]map[string]bool // username -> role -> true
	perms     map[int64]*models.Permission
	permSeq   int64
	tokens    map[string]*models.AccessToken

	config  map[configKey]*models.ConfigEntry
	gray    map[configKey]*models.GrayEntry
	aggr    map[configKey]map[string]*models.AggregateDatum
	history map[configKey][]*models.ConfigHistory
	nidSeq  map[configKey]int64

	instances map[string]*models.PersistentInstance
}

func NewStore() *Store {
	return &Store{
		namespaces: map[string]*models.Namespace{},
		users:      map[string]*models.User{},
		roles:      map[string]*models.Role{},
		userRoles:  map[string]map[string]bool{},
		perms:      map[int64]*models.Permission{},
		tokens:     map[string]*models.AccessToken{},
		config:     map[configKey]*models.ConfigEntry{},
		gray:       map[configKey]*models.GrayEntry{},
		aggr:       map[configKey]map[string]*models.AggregateDatum{},
		history:    map[configKey][]*models.ConfigHistory{},
		nidSeq:     map[configKey]int64{},
		instances:  map[string]*models.PersistentInstance{},
	}
}

// Namespaces returns a repository.NamespaceRepository over the store.
func (s *Store) Namespaces() *NamespaceRepository { return &NamespaceRepository{s} }

// Users returns a repository.UserRepository over the store.
func (s *Store) Users() *UserRepository { return &UserRepository{s} }

// Roles returns a repository.RoleRepository over the store.
func (s *Store) Roles() *RoleRepository { return &RoleRepository{s} }

// Permissions returns a repository.PermissionRepository over the store.
func (s *Store) Permissions() *PermissionRepository { return &PermissionRepository{s} }

// Configs returns a repository.ConfigRepository over the store.
func (s *Store) Configs() *ConfigRepository { return &ConfigRepository{s} }

// Gray returns a repository.GrayRepository over the store.
func (s *Store) Gray() *GrayRepository { return &GrayRepository{s} }

// Aggregates returns a repository.AggregateRepository over the store.
func (s *Store) Aggregates() *AggregateRepository { return &AggregateRepository{s} }

// History returns a repository.HistoryRepository over the store.
func (s *Store) History() *HistoryRepository { return &HistoryRepository{s} }

// Instances returns a repository.InstanceRepository over the store.
func (s *Store) Instances() *InstanceRepository { return &InstanceRepository{s} }

// Tokens returns a repository.TokenRepository over the store.
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s} }
