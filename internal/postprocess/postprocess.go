// Package postprocess bounds model text before it is sent to a client.
package postprocess

// TruncationMarker is appended to text cut by Truncate.
const TruncationMarker = "\n\n...[truncated]"

// Truncate keeps at most limit characters of text and appends
// TruncationMarker when anything was cut. A limit <= 0 disables truncation.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + TruncationMarker
}
