package http

import (
	"github.com/samirrijal/fieldmap/internal/adapters/postgres"
	"github.com/samirrijal/fieldmap/internal/adapters/valkey"
	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/ports"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Fields *usecases.FieldService
	// Creator creates fields; nil uses Fields directly.
	Creator ports.FieldCreator
	Events  ports.EventSubscriber
	// MapSession configures sessions opened on /ws/map. Its Fields entry is
	// filled from Creator when unset.
	MapSession usecases.MapSessionDeps
	// Transition is the default framing for explicit frame requests.
	Transition domain.TransitionOptions
	DB         *postgres.DB
	Cache      *valkey.Cache
	// OpenAPIPath locates the contract served under /docs; empty uses
	// DefaultOpenAPIPath.
	OpenAPIPath string
}

func (d *Dependencies) creator() ports.FieldCreator {
	if d.Creator != nil {
		return d.Creator
	}
	return d.Fields
}

func (d *Dependencies) transitionOptions() domain.TransitionOptions {
	if d.Transition == (domain.TransitionOptions{}) {
		return domain.DefaultTransitionOptions()
	}
	return d.Transition
}
