package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"ledgersim/core/types"
	"ledgersim/core/vm"
)

// InitFunction is the endpoint executed when a contract is deployed.
const InitFunction = "init"

// EntryPoint is the Go rendition of a contract endpoint. Returning a non-nil
// error aborts the call; the message of a *errors.UserError is preserved in
// the transaction result.
type EntryPoint func(ctx *Context) error

// Endpoint binds a function name to its handler and payment policy. Payable
// follows the endpoint annotation: "" is non-payable, "*" accepts anything,
// "MOAX" accepts only native payments and a token identifier accepts only that
// token.
type Endpoint struct {
	Name    string
	Payable string
	Handler EntryPoint
}

// Contract is a named set of endpoints. Accounts reference contracts through
// their code identifier.
type Contract struct {
	Code      string
	endpoints map[string]Endpoint
}

// NewContract builds a contract from its endpoints. Duplicate or malformed
// endpoints are rejected.
func NewContract(code string, endpoints ...Endpoint) (*Contract, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("contract: code identifier required")
	}
	c := &Contract{Code: code, endpoints: make(map[string]Endpoint, len(endpoints))}
	for _, ep := range endpoints {
		if ep.Name == "" {
			return nil, fmt.Errorf("contract %s: endpoint name required", code)
		}
		if ep.Handler == nil {
			return nil, fmt.Errorf("contract %s: endpoint %s has no handler", code, ep.Name)
		}
		if !validPolicy(ep.Payable) {
			return nil, fmt.Errorf("contract %s: endpoint %s has invalid payment policy %q", code, ep.Name, ep.Payable)
		}
		if _, exists := c.endpoints[ep.Name]; exists {
			return nil, fmt.Errorf("contract %s: duplicate endpoint %s", code, ep.Name)
		}
		c.endpoints[ep.Name] = ep
	}
	return c, nil
}

// MustContract is NewContract for statically declared contracts.
func MustContract(code string, endpoints ...Endpoint) *Contract {
	c, err := NewContract(code, endpoints...)
	if err != nil {
		panic(err)
	}
	return c
}

func validPolicy(policy string) bool {
	switch policy {
	case vm.PolicyNonPayable, vm.PolicyAny, vm.PolicyMOAX:
		return true
	}
	return types.IsValidTokenIdentifier(policy)
}

// Endpoint looks up a function by name.
func (c *Contract) Endpoint(name string) (Endpoint, bool) {
	ep, ok := c.endpoints[name]
	return ep, ok
}

// Endpoints returns the endpoint names in sorted order.
func (c *Contract) Endpoints() []string {
	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry maps code identifiers to contracts.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*Contract
}

func NewRegistry() *Registry {
	return &Registry{contracts: make(map[string]*Contract)}
}

// Register adds a contract. Registering the same code identifier twice fails.
func (r *Registry) Register(c *Contract) error {
	if c == nil {
		return fmt.Errorf("registry: nil contract")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contracts[c.Code]; exists {
		return fmt.Errorf("registry: contract %s already registered", c.Code)
	}
	r.contracts[c.Code] = c
	return nil
}

// Lookup returns the contract registered under code.
func (r *Registry) Lookup(code string) (*Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[code]
	return c, ok
}
