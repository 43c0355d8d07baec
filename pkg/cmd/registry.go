// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/healthsim/healthsim/pkg/handlers/membersim"
	"github.com/healthsim/healthsim/pkg/handlers/patientsim"
	"github.com/healthsim/healthsim/pkg/handlers/rxmembersim"
	"github.com/healthsim/healthsim/pkg/handlers/trialsim"
	"github.com/healthsim/healthsim/pkg/registry"
)

// NewRegistry builds the handler table with every built-in product pack
// registered. Callers may re-register individual (product, event type)
// pairs afterwards to override a built-in.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	patientsim.New().RegisterAll(reg)
	membersim.New().RegisterAll(reg)
	rxmembersim.New().RegisterAll(reg)
	trialsim.New().RegisterAll(reg)

	return reg
}
