package tools

import (
	"sort"
	"sync"

	"github.com/perlica/perlica/internal/acp"
	"github.com/perlica/perlica/internal/policy"
)

// Catalog is the reference runner.ToolCatalog implementation: a static list
// of tool specs (for LLMRequest.Tools) paired with the risk tier the
// dispatcher should resolve policy against for each.
type Catalog struct {
	mu    sync.RWMutex
	specs map[string]acp.ToolSpec
	risk  map[string]policy.RiskTier
}

func NewCatalog() *Catalog {
	return &Catalog{
		specs: make(map[string]acp.ToolSpec),
		risk:  make(map[string]policy.RiskTier),
	}
}

// Register adds or replaces a tool's spec and risk tier.
func (c *Catalog) Register(spec acp.ToolSpec, tier policy.RiskTier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs[spec.ID] = spec
	c.risk[spec.ID] = tier
}

// Specs returns every registered tool spec, sorted by id for stable ordering
// across turns (the provider sees the same tool list shape every time).
func (c *Catalog) Specs() []acp.ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]acp.ToolSpec, 0, len(c.specs))
	for _, s := range c.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RiskTier reports the risk tier registered for toolID, defaulting to
// RiskHigh for an unregistered tool so an unknown tool never slips through
// at a lenient tier.
func (c *Catalog) RiskTier(toolID string) policy.RiskTier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tier, ok := c.risk[toolID]; ok {
		return tier
	}
	return policy.RiskHigh
}
