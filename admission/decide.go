// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package admission decides whether an inbound request may reach an upstream
// provider. Decisions read the access store only; counter and audit side
// effects run in the background.
package admission

import (
	"context"
	"errors"
	"fmt"

	"oddsgate/platform/access"
)

// Reason is the machine-readable cause of a denial.
type Reason string

const (
	ReasonNotWhitelisted    Reason = "not-whitelisted"
	ReasonAccountBlocked    Reason = "account-blocked"
	ReasonAccountExpired    Reason = "account-expired"
	ReasonAccountMissing    Reason = "account-missing"
	ReasonDemoLimitExceeded Reason = "demo-limit-exceeded"
	ReasonProviderDisabled  Reason = "provider-disabled"
	ReasonAPIDisabled       Reason = "api-disabled"
)

// Description is the human-readable text shown on the denial page.
func (r Reason) Description() string {
	switch r {
	case ReasonNotWhitelisted:
		return "IP Not Whitelisted"
	case ReasonAccountBlocked:
		return "Client Account Blocked"
	case ReasonAccountExpired:
		return "Client Account Expired"
	case ReasonAccountMissing:
		return "Client Account Not Found"
	case ReasonDemoLimitExceeded:
		return "Demo Limit Exceeded"
	case ReasonProviderDisabled:
		return "Provider Access Denied"
	case ReasonAPIDisabled:
		return "API Access Denied"
	}
	return string(r)
}

// DemoDailyLimit is the number of requests a demo account may make per day.
const DemoDailyLimit = 1000

// Route is the permission requirement attached to a route at registration.
// The zero value only requires an allowlisted address.
type Route struct {
	Provider string
	APIID    string
}

// Restricted reports whether the route names a provider API.
func (r Route) Restricted() bool {
	return r.Provider != "" && r.APIID != ""
}

// Request is what a decision is made on.
type Request struct {
	Address string
	Method  string
	Route   Route
}

// Decision is the result of Decide. Policy and Account are set whenever they
// could be resolved, including for denials, so callers can count against them.
type Decision struct {
	Allowed bool
	Reason  Reason
	Policy  *access.AccessPolicy
	Account *access.Account
}

// Denied is returned by Decide when the request must be refused.
type Denied struct {
	Reason  Reason
	Address string
}

func (d *Denied) Error() string {
	return fmt.Sprintf("admission denied for %s: %s", d.Address, d.Reason)
}

// Controller evaluates the admission rules against an access store.
type Controller struct {
	store     access.Store
	demoLimit int64
}

// NewController returns a Controller backed by store.
func NewController(store access.Store) *Controller {
	return &Controller{store: store, demoLimit: DemoDailyLimit}
}

// Decide applies the rules in order; the first that matches wins. A *Denied
// error accompanies every denial. Any other error means the store failed and
// no decision could be made.
func (c *Controller) Decide(ctx context.Context, req Request) (Decision, error) {
	deny := func(d Decision, reason Reason) (Decision, error) {
		d.Reason = reason
		return d, &Denied{Reason: reason, Address: req.Address}
	}

	var d Decision
	policy, err := c.store.FindActivePolicy(ctx, req.Address)
	if errors.Is(err, access.ErrNotFound) {
		return deny(d, ReasonNotWhitelisted)
	}
	if err != nil {
		return d, fmt.Errorf("admission: policy lookup: %w", err)
	}
	d.Policy = policy

	account, err := c.store.FindAccount(ctx, policy.AccountID)
	if errors.Is(err, access.ErrNotFound) {
		return deny(d, ReasonAccountMissing)
	}
	if err != nil {
		return d, fmt.Errorf("admission: account lookup: %w", err)
	}
	d.Account = account

	switch account.Status {
	case access.AccountActive:
	case access.AccountExpired:
		return deny(d, ReasonAccountExpired)
	default:
		return deny(d, ReasonAccountBlocked)
	}

	if account.Type == access.ModeDemo && account.HitsToday >= c.demoLimit {
		return deny(d, ReasonDemoLimitExceeded)
	}

	if req.Route.Restricted() {
		perm, ok := account.Permission(req.Route.Provider)
		if !ok || !perm.Enabled {
			return deny(d, ReasonProviderDisabled)
		}
		if !perm.Allows(req.Route.APIID) {
			return deny(d, ReasonAPIDisabled)
		}
	}

	d.Allowed = true
	return d, nil
}

type ctxKey struct{}

// NewContext attaches an allowed decision to ctx.
func NewContext(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, ctxKey{}, d)
}

// FromContext returns the decision attached by the admission middleware.
func FromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(ctxKey{}).(Decision)
	return d, ok
}

// AccountID returns the resolved account id in ctx, or "".
func AccountID(ctx context.Context) string {
	if d, ok := FromContext(ctx); ok && d.Account != nil {
		return d.Account.ID
	}
	return ""
}
