package common

import "github.com/crmarques/catalogsync/catalog"

// CatalogKinds lists the kinds of the default catalog in sync order.
func CatalogKinds() []string {
	kinds := catalog.Default().Kinds()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, kind.String())
	}
	return names
}
