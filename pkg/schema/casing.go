package schema

import "github.com/iancoleman/strcase"

// KebabCase converts "basePath" or "base_path" to "base-path".
func KebabCase(s string) string {
	return strcase.ToKebab(s)
}

// CamelCase converts "base-path" or "base_path" to "basePath". Words are
// split first so a leading acronym keeps its boundary: "HTTPServer" becomes
// "httpServer".
func CamelCase(s string) string {
	return strcase.ToLowerCamel(strcase.ToKebab(s))
}

// ScreamingSnakeCase converts "basePath" to "BASE_PATH".
func ScreamingSnakeCase(s string) string {
	return strcase.ToScreamingSnake(s)
}
