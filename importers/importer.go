package importers

import (
	"context"

	"github.com/paulmach/orb/geojson"
)

type Importer interface {
	ImporterName() string
	// ImportFeatures returns how many features were stored.
	ImportFeatures(context.Context, []*geojson.Feature) (int, error)
}
