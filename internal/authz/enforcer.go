// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package authz

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/marquee/internal/cache"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// defaultPolicy is the built-in route policy.
const defaultPolicy = `
p, user, /api/v1/recommendations, ^read$
p, user, /api/v1/lists/*, ^(read|write|delete)$
p, user, /api/v1/requests, ^write$
p, user, /api/v1/weekly, ^read$
p, user, /api/v1/redemption, ^read$
p, user, /api/v1/redemption/refresh, ^write$
p, user, /api/v1/ws, ^read$
p, admin, /api/v1/*, ^(read|write|delete)$
g, admin, user
`

const defaultDecisionTTL = 5 * time.Minute

// EnforcerConfig selects the policy source and decision cache lifetime.
type EnforcerConfig struct {
	PolicyPath string        // Casbin CSV; the built-in policy is used when empty or absent
	CacheTTL   time.Duration // zero disables the decision cache
}

// Enforcer answers "may role do action on path" with Casbin, remembering
// recent answers.
type Enforcer struct {
	casbin    *casbin.SyncedEnforcer
	decisions *cache.Cache[bool]
}

// NewEnforcer builds an enforcer. A nil cfg means the built-in policy and a
// five minute decision cache.
func NewEnforcer(cfg *EnforcerConfig) (*Enforcer, error) {
	if cfg == nil {
		cfg = &EnforcerConfig{CacheTTL: defaultDecisionTTL}
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	var ce *casbin.SyncedEnforcer
	if usePolicyFile(cfg.PolicyPath) {
		ce, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else if ce, err = casbin.NewSyncedEnforcer(m); err == nil {
		err = loadPolicy(ce, defaultPolicy)
	}
	if err != nil {
		return nil, fmt.Errorf("casbin enforcer: %w", err)
	}

	e := &Enforcer{casbin: ce}
	if cfg.CacheTTL > 0 {
		e.decisions = cache.New[bool]("authz_decisions", cfg.CacheTTL)
	}
	return e, nil
}

func usePolicyFile(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// loadPolicy parses CSV policy text and adds its "p" and "g" rules in two
// batches. Blank lines and # comments are skipped.
func loadPolicy(ce *casbin.SyncedEnforcer, text string) error {
	var perms, groups [][]string
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		switch {
		case fields[0] == "p" && len(fields) == 4:
			perms = append(perms, fields[1:])
		case fields[0] == "g" && len(fields) == 3:
			groups = append(groups, fields[1:])
		default:
			return fmt.Errorf("policy line %d: malformed rule %q", n+1, line)
		}
	}
	if len(perms) > 0 {
		if _, err := ce.AddPolicies(perms); err != nil {
			return fmt.Errorf("add policies: %w", err)
		}
	}
	if len(groups) > 0 {
		if _, err := ce.AddGroupingPolicies(groups); err != nil {
			return fmt.Errorf("add role inheritance: %w", err)
		}
	}
	return nil
}

// Enforce reports whether role may perform action on path.
func (e *Enforcer) Enforce(role, path, action string) (bool, error) {
	if role == "" {
		return false, nil
	}
	key := role + "\x00" + action + "\x00" + path
	if e.decisions != nil {
		if allowed, ok := e.decisions.Get(key); ok {
			return allowed, nil
		}
	}

	allowed, err := e.casbin.Enforce(role, path, action)
	if err != nil {
		return false, errors.Join(errors.New("casbin enforce"), err)
	}
	if e.decisions != nil {
		e.decisions.Set(key, allowed)
	}
	return allowed, nil
}

// Close stops the decision cache sweeper.
func (e *Enforcer) Close() {
	if e.decisions != nil {
		e.decisions.Close()
	}
}
