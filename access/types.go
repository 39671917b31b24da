// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package access

import "time"

// PolicyStatus is the allowlist state of a source address.
type PolicyStatus string

const (
	PolicyActive  PolicyStatus = "active"
	PolicyBlocked PolicyStatus = "blocked"
)

// Mode is the declared usage mode of a policy or account.
type Mode string

const (
	ModeDemo       Mode = "demo"
	ModeProduction Mode = "production"
)

// AccountStatus is the lifecycle state of a tenant.
type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
	AccountExpired AccountStatus = "expired"
)

// AccessPolicy binds one source address to its owning account.
type AccessPolicy struct {
	ID           string       `json:"id"`
	Address      string       `json:"ip"`
	AccountID    string       `json:"clientId"`
	Status       PolicyStatus `json:"status"`
	Mode         Mode         `json:"mode"`
	HitsToday    int64        `json:"hitsToday"`
	BlockedToday int64        `json:"blockedToday"`
	Note         string       `json:"notes,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// ProviderPermission grants access to named APIs of one upstream provider.
type ProviderPermission struct {
	Provider string   `json:"provider"`
	Enabled  bool     `json:"enabled"`
	APIs     []string `json:"apis"`
}

// Allows reports whether apiID is a member of the permission's API set.
func (p ProviderPermission) Allows(apiID string) bool {
	for _, a := range p.APIs {
		if a == apiID {
			return true
		}
	}
	return false
}

// Account is a tenant of the gateway.
type Account struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	NumericID    int64                `json:"numericId,omitempty"`
	Status       AccountStatus        `json:"status"`
	Type         Mode                 `json:"clientType"`
	Permissions  []ProviderPermission `json:"apiPermissions"`
	HitsToday    int64                `json:"totalHitsToday"`
	BlockedToday int64                `json:"totalBlockedToday"`
	MonthlyHits  int64                `json:"monthlyHits"`
	StartDate    time.Time            `json:"startDate"`
	EndDate      *time.Time           `json:"endDate,omitempty"`
}

// Permission returns the account's permission entry for provider.
func (a *Account) Permission(provider string) (ProviderPermission, bool) {
	for _, p := range a.Permissions {
		if p.Provider == provider {
			return p, true
		}
	}
	return ProviderPermission{}, false
}

// EntityKind distinguishes the two counter-bearing documents.
type EntityKind string

const (
	KindPolicy  EntityKind = "policy"
	KindAccount EntityKind = "account"
)

// EntityRef identifies a policy or account for counter updates.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

// PolicyRef returns the reference for a policy id.
func PolicyRef(id string) EntityRef { return EntityRef{Kind: KindPolicy, ID: id} }

// AccountRef returns the reference for an account id.
func AccountRef(id string) EntityRef { return EntityRef{Kind: KindAccount, ID: id} }

// Counter names a per-entity usage counter.
type Counter string

const (
	CounterHits        Counter = "hits"
	CounterBlocked     Counter = "blocked"
	CounterMonthlyHits Counter = "monthly_hits"
)
