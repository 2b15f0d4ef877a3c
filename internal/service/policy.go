package service

import "github.com/tradielink/backend/internal/domain"

// UsagePolicyTable resolves the cost and cap windows per usage type.
type UsagePolicyTable struct {
	policies map[domain.UsageType]domain.UsagePolicy
}

// NewUsagePolicyTable creates the table with the marketplace defaults.
func NewUsagePolicyTable() *UsagePolicyTable {
	return &UsagePolicyTable{
		policies: map[domain.UsageType]domain.UsagePolicy{
			domain.UsageTypeJobApplication: {
				Type:            domain.UsageTypeJobApplication,
				CreditsRequired: 5,
				MaxPerDay:       10,
				MaxPerMonth:     100,
			},
			domain.UsageTypeProfileBoost: {
				Type:            domain.UsageTypeProfileBoost,
				CreditsRequired: 10,
				MaxPerDay:       1,
				MaxPerMonth:     10,
			},
			domain.UsageTypePremiumUnlock: {
				Type:            domain.UsageTypePremiumUnlock,
				CreditsRequired: 3,
				MaxPerDay:       20,
			},
		},
	}
}

// Lookup returns the policy for a usage type.
func (t *UsagePolicyTable) Lookup(usageType domain.UsageType) (domain.UsagePolicy, error) {
	policy, ok := t.policies[usageType]
	if !ok {
		return domain.UsagePolicy{}, domain.ErrUnknownUsageType
	}
	return policy, nil
}

// All returns every configured policy.
func (t *UsagePolicyTable) All() []domain.UsagePolicy {
	policies := make([]domain.UsagePolicy, 0, len(t.policies))
	for _, p := range t.policies {
		policies = append(policies, p)
	}
	return policies
}

// PackageCatalog resolves purchasable credit bundles by type.
type PackageCatalog struct {
	packages map[string]domain.CreditPackage
}

// NewPackageCatalog creates the catalog with the marketplace defaults.
func NewPackageCatalog() *PackageCatalog {
	return &PackageCatalog{
		packages: map[string]domain.CreditPackage{
			"starter": {
				Type:       "starter",
				Credits:    20,
				PriceCents: 2500,
				Currency:   "AUD",
			},
			"standard": {
				Type:         "standard",
				Credits:      50,
				BonusCredits: 5,
				PriceCents:   5500,
				Currency:     "AUD",
			},
			"pro": {
				Type:         "pro",
				Credits:      120,
				BonusCredits: 20,
				PriceCents:   12000,
				Currency:     "AUD",
			},
		},
	}
}

// Lookup returns the package for a package type.
func (c *PackageCatalog) Lookup(packageType string) (domain.CreditPackage, error) {
	pkg, ok := c.packages[packageType]
	if !ok {
		return domain.CreditPackage{}, domain.ErrUnknownPackage
	}
	return pkg, nil
}

// All returns every purchasable package.
func (c *PackageCatalog) All() []domain.CreditPackage {
	packages := make([]domain.CreditPackage, 0, len(c.packages))
	for _, p := range c.packages {
		packages = append(packages, p)
	}
	return packages
}
