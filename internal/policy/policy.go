// Package policy is the single authorization decision point. Handlers and
// services ask Authorize whether an actor may perform an action on a
// resource type, and use the scope helpers to restrict queries to the rows
// that actor may see.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"gopkg.in/yaml.v3"
)

// Resource names a kind of record.
type Resource string

const (
	ResourceProperty    Resource = "property"
	ResourceTenant      Resource = "tenant"
	ResourceLease       Resource = "lease"
	ResourceInvoice     Resource = "invoice"
	ResourcePayment     Resource = "payment"
	ResourceMaintenance Resource = "maintenance"
	ResourceReport      Resource = "report"
	ResourceDashboard   Resource = "dashboard"
)

// Resources lists every resource the policy knows about.
var Resources = []Resource{
	ResourceProperty, ResourceTenant, ResourceLease, ResourceInvoice,
	ResourcePayment, ResourceMaintenance, ResourceReport, ResourceDashboard,
}

// Action names an operation on a resource.
type Action string

const (
	ActionList       Action = "list"
	ActionRead       Action = "read"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionActivate   Action = "activate"
	ActionTerminate  Action = "terminate"
	ActionRemind     Action = "remind"
	ActionSend       Action = "send"
	ActionCancel     Action = "cancel"
	ActionShare      Action = "share"
	ActionVerify     Action = "verify"
	ActionReject     Action = "reject"
	ActionTransition Action = "transition"
	ActionExport     Action = "export"
)

const wildcard = "*"

// ErrForbidden is returned when the policy denies an action.
var ErrForbidden = errors.New("forbidden")

//go:embed policy.yaml
var defaultPolicy []byte

// Actor is the authenticated caller.
type Actor struct {
	UserID uint
	Role   model.Role
	Email  string
}

type document struct {
	Roles map[string]map[string][]string `yaml:"roles"`
}

type rules map[model.Role]map[string]map[string]bool

// Engine evaluates the policy. It is safe for concurrent use and can be
// reloaded while serving.
type Engine struct {
	mu    sync.RWMutex
	rules rules
}

// New parses a YAML policy document.
func New(data []byte) (*Engine, error) {
	r, err := parse(data)
	if err != nil {
		return nil, err
	}
	return &Engine{rules: r}, nil
}

// Default returns the embedded policy.
func Default() *Engine {
	e, err := New(defaultPolicy)
	if err != nil {
		panic(fmt.Sprintf("policy: embedded policy is invalid: %v", err))
	}
	return e
}

// LoadFile reads a policy from disk, or returns the embedded policy when
// path is empty.
func LoadFile(path string) (*Engine, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return New(data)
}

// Reload swaps in a new policy document. The current rules stay in place
// if the document is invalid.
func (e *Engine) Reload(data []byte) error {
	r, err := parse(data)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.rules = r
	e.mu.Unlock()
	return nil
}

// Allowed reports whether role may perform action on resource.
func (e *Engine) Allowed(role model.Role, resource Resource, action Action) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byResource, ok := e.rules[role]
	if !ok {
		return false
	}
	for _, res := range []string{string(resource), wildcard} {
		actions, ok := byResource[res]
		if !ok {
			continue
		}
		if actions[string(action)] || actions[wildcard] {
			return true
		}
	}
	return false
}

// Authorize returns ErrForbidden unless the actor may perform action on
// resource.
func (e *Engine) Authorize(actor Actor, resource Resource, action Action) error {
	if actor.UserID == 0 || !actor.Role.Valid() {
		return fmt.Errorf("%w: unauthenticated caller", ErrForbidden)
	}
	if !e.Allowed(actor.Role, resource, action) {
		return fmt.Errorf("%w: %s may not %s %s", ErrForbidden, actor.Role, action, resource)
	}
	return nil
}

// Permissions lists, per resource, the actions role may perform. Clients
// use it to decide which controls to show.
func (e *Engine) Permissions(role model.Role) map[Resource][]Action {
	out := make(map[Resource][]Action)
	for _, res := range Resources {
		var actions []Action
		for _, act := range allActions {
			if e.Allowed(role, res, act) {
				actions = append(actions, act)
			}
		}
		if len(actions) > 0 {
			out[res] = actions
		}
	}
	return out
}

var allActions = func() []Action {
	actions := []Action{
		ActionList, ActionRead, ActionCreate, ActionUpdate, ActionDelete,
		ActionActivate, ActionTerminate, ActionRemind, ActionSend, ActionCancel,
		ActionShare, ActionVerify, ActionReject, ActionTransition, ActionExport,
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}()

func parse(data []byte) (rules, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if len(doc.Roles) == 0 {
		return nil, errors.New("parse policy: no roles defined")
	}

	known := make(map[string]bool, len(Resources))
	for _, res := range Resources {
		known[string(res)] = true
	}

	r := make(rules, len(doc.Roles))
	for roleName, resources := range doc.Roles {
		role := model.Role(roleName)
		if !role.Valid() {
			return nil, fmt.Errorf("parse policy: unknown role %q", roleName)
		}
		byResource := make(map[string]map[string]bool, len(resources))
		for res, actions := range resources {
			if res != wildcard && !known[res] {
				return nil, fmt.Errorf("parse policy: role %s: unknown resource %q", roleName, res)
			}
			set := make(map[string]bool, len(actions))
			for _, act := range actions {
				set[act] = true
			}
			byResource[res] = set
		}
		r[role] = byResource
	}
	return r, nil
}
