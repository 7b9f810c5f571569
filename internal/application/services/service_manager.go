package services

import (
	"context"
	"fmt"

	"github.com/tenantcore/backend/internal/domain/schema"
	"github.com/tenantcore/backend/internal/infrastructure/database"
	"github.com/tenantcore/backend/internal/infrastructure/persistence"
)

// ServiceManager orchestrates all services with dependency injection
type ServiceManager struct {
	db *database.Connection

	Identity SystemIdentity

	// Core services
	TxManager   *persistence.TransactionManager
	Registry    *schema.Registry
	Records     *persistence.EntityRepository
	Auth        *persistence.AuthRepository
	Roles       *RoleHierarchyService
	Permissions *PermissionService
	Hooks       *HookRegistry
	Validation  *ValidationService
	Entities    *EntityService
	Supervisor  *Supervisor
	Extensions  *ExtensionLoader
	Seeder      *SeedService
}

// NewServiceManager creates a new service manager with all dependencies wired
func NewServiceManager(db *database.Connection) *ServiceManager {
	sm := &ServiceManager{
		db:       db,
		Identity: LoadSystemIdentity(),
	}

	// Initialize services in dependency order
	sm.TxManager = persistence.NewTransactionManager(db)
	sm.Registry = schema.NewRegistry()
	sm.Records = persistence.NewEntityRepository(sm.TxManager)
	sm.Auth = persistence.NewAuthRepository(sm.TxManager)
	sm.Roles = NewRoleHierarchyService(sm.Auth)
	sm.Permissions = NewPermissionService(sm.Identity, sm.Registry, sm.Records, sm.Auth, sm.Roles)
	sm.Hooks = NewHookRegistry()
	sm.Validation = NewValidationService()
	sm.Entities = NewEntityService(sm.Registry, sm.Records, sm.Permissions, sm.Hooks, sm.Validation, sm.TxManager, sm.Identity)
	sm.Supervisor = NewSupervisor(sm.Identity)
	sm.Extensions = NewExtensionLoader(sm.Entities, sm.Supervisor)
	sm.Seeder = NewSeedService(sm.Registry, sm.Records, sm.Identity)

	return sm
}

// CompileRules pre-compiles the validation rules of every registered kind.
// Called once after core registration and extension loading so bad rule
// syntax fails startup, not requests.
func (sm *ServiceManager) CompileRules() error {
	for _, def := range sm.Registry.All() {
		if err := sm.Validation.CompileRules(def); err != nil {
			return fmt.Errorf("failed to compile validation rules: %w", err)
		}
	}
	return nil
}

// RefreshRoleHierarchy reloads the role dominance cache from the database
func (sm *ServiceManager) RefreshRoleHierarchy(ctx context.Context) {
	sm.Roles.Refresh(ctx)
}

// Shutdown stops background services and runs outstanding cleanups
func (sm *ServiceManager) Shutdown(ctx context.Context) {
	sm.Supervisor.StopAll()
	sm.Supervisor.CleanupAll(ctx)
}
