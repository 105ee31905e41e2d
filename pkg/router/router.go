package router

import (
	"github.com/glossa-app/glossa/pkg/config"
	"github.com/glossa-app/glossa/pkg/models"
)

// Router resolves a capability to the ordered backends to try.
type Router struct {
	defaultOrder []models.BackendID
	preferences  map[models.Capability][]models.BackendID
}

// New creates a Router from the coordinator configuration.
func New(cfg config.CoordinatorConfig) *Router {
	return &Router{
		defaultOrder: cfg.DefaultOrder,
		preferences:  cfg.Preferences,
	}
}

// Resolve returns the fallback chain for capability. A capability with a
// configured preference list uses it; otherwise the default order applies,
// and without a default order every backend is tried in declaration order.
// Unknown and repeated backends are dropped.
func (r *Router) Resolve(capability models.Capability) []models.BackendID {
	order, ok := r.preferences[capability]
	if !ok || len(order) == 0 {
		order = r.defaultOrder
	}
	if len(order) == 0 {
		order = models.BackendIDs
	}

	seen := make(map[models.BackendID]bool, len(order))
	chain := make([]models.BackendID, 0, len(order))
	for _, id := range order {
		if !id.Valid() || seen[id] {
			continue // skip unknown backends
		}
		seen[id] = true
		chain = append(chain, id)
	}
	return chain
}
