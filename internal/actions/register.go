package actions

import (
	"errors"

	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/registry"
)

// Register adds the built-in actions to queries and mutations. Media actions
// are only added when provider has the entities they work on.
func Register(queries, mutations *registry.Fields, provider entity.Provider, exec dal.Executor) error {
	errs := []error{
		queries.Add("generateIntegrationKey", IntegrationKey()),
		queries.Add("generateUserKey", UserKey()),
		queries.Add("generateSalesChannelKey", SalesChannelKey()),
	}

	m, err := newMedia(provider, exec)
	switch {
	case errors.Is(err, entity.ErrUnknownEntity):
		return errors.Join(errs...)
	case err != nil:
		return errors.Join(append(errs, err)...)
	}
	errs = append(errs,
		queries.Add("provideFileName", provideFileName{m}),
		mutations.Add("renameMedia", renameMedia{m}),
	)

	dissolve, err := newDissolveMediaFolder(provider, exec)
	switch {
	case errors.Is(err, entity.ErrUnknownEntity):
	case err != nil:
		errs = append(errs, err)
	default:
		errs = append(errs, mutations.Add("dissolveMediaFolder", dissolve))
	}
	return errors.Join(errs...)
}
