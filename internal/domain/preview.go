package domain

// PreviewLimit is the maximum number of characters kept in a notification preview.
const PreviewLimit = 100

// Preview truncates content to PreviewLimit characters, appending "..." when cut.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLimit {
		return content
	}
	return string(runes[:PreviewLimit]) + "..."
}
