package shared

// Catalog permissions declared for authorization. One permission per
// resource and verb; HTML and API surfaces check the same names.
const (
	PermCatalogBookView   = "catalog.book.view"
	PermCatalogBookCreate = "catalog.book.create"
	PermCatalogBookEdit   = "catalog.book.edit"
	PermCatalogBookDelete = "catalog.book.delete"

	PermCatalogAuthorView   = "catalog.author.view"
	PermCatalogAuthorCreate = "catalog.author.create"
	PermCatalogAuthorEdit   = "catalog.author.edit"
	PermCatalogAuthorDelete = "catalog.author.delete"

	PermCatalogLoanView = "catalog.loan.view"
	PermCatalogLoanEdit = "catalog.loan.edit"
)

// CatalogScopes lists all permissions related to the catalog module.
func CatalogScopes() []string {
	return []string{
		PermCatalogBookView,
		PermCatalogBookCreate,
		PermCatalogBookEdit,
		PermCatalogBookDelete,
		PermCatalogAuthorView,
		PermCatalogAuthorCreate,
		PermCatalogAuthorEdit,
		PermCatalogAuthorDelete,
		PermCatalogLoanView,
		PermCatalogLoanEdit,
	}
}
