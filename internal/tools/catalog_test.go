package tools

import (
	"testing"

	"github.com/perlica/perlica/internal/acp"
	"github.com/perlica/perlica/internal/policy"
)

func TestCatalogSpecsSortedByID(t *testing.T) {
	c := NewCatalog()
	c.Register(acp.ToolSpec{ID: "zzz"}, policy.RiskLow)
	c.Register(acp.ToolSpec{ID: "aaa"}, policy.RiskLow)
	specs := c.Specs()
	if len(specs) != 2 || specs[0].ID != "aaa" || specs[1].ID != "zzz" {
		t.Fatalf("expected sorted [aaa zzz], got %+v", specs)
	}
}

func TestCatalogRiskTierDefaultsHighForUnknownTool(t *testing.T) {
	c := NewCatalog()
	if got := c.RiskTier("nope"); got != policy.RiskHigh {
		t.Fatalf("expected RiskHigh default, got %v", got)
	}
}

func TestCatalogRiskTierReturnsRegisteredTier(t *testing.T) {
	c := NewCatalog()
	c.Register(acp.ToolSpec{ID: ShellToolID}, policy.RiskHigh)
	if got := c.RiskTier(ShellToolID); got != policy.RiskHigh {
		t.Fatalf("expected RiskHigh, got %v", got)
	}
}
