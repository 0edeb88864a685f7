package shared

// Blog permissions declared for authorization.
const (
	PermBlogPostView   = "blog.post.view"
	PermBlogPostCreate = "blog.post.create"
	PermBlogPostEdit   = "blog.post.edit"
	PermBlogPostDelete = "blog.post.delete"
)

// BlogScopes lists all permissions related to the blog module.
func BlogScopes() []string {
	return []string{
		PermBlogPostView,
		PermBlogPostCreate,
		PermBlogPostEdit,
		PermBlogPostDelete,
	}
}
