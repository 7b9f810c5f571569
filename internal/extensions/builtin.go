package extensions

import (
	"github.com/tenantcore/backend/internal/application/services"
	"github.com/tenantcore/backend/internal/domain/ports"
)

// BuiltIn returns the extensions compiled into the server, ready for
// registration with the loader. APP_EXTENSIONS decides which of them load.
func BuiltIn(auth ports.AuthStore) []services.Extension {
	return []services.Extension{
		&ProjectsExtension{},
		&ConversationsExtension{},
		&AuditLogExtension{},
		NewGrantExpiryExtension(auth),
	}
}
