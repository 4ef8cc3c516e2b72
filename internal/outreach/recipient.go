package outreach

import (
	"strings"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// RecipientResolver picks the address an outreach email goes to.
type RecipientResolver struct {
	// Override sends every email to one address (testing, seed lists).
	Override string
	// Pattern builds an address from the company domain, e.g. "hello@{domain}".
	Pattern string
	// DryRunAddress is used in dry-run when nothing else resolves.
	DryRunAddress string
}

// Resolve returns the recipient for lead, or false when none can be derived
// and the lead should be skipped.
func (r RecipientResolver) Resolve(lead model.Lead, dryRun bool) (string, bool) {
	if r.Override != "" {
		return r.Override, true
	}
	if r.Pattern != "" && lead.CompanyDomain != "" && strings.Contains(r.Pattern, "{domain}") {
		return strings.ReplaceAll(r.Pattern, "{domain}", lead.CompanyDomain), true
	}
	if dryRun && r.DryRunAddress != "" {
		return r.DryRunAddress, true
	}
	return "", false
}
