package pipeline

import "strings"

const (
	suggestPrefix = "Suggest the sales representative to respond:"
	respondMarker = "respond:"
)

// CleanResponse strips instructional wrappers the model sometimes adds so
// only the words to say remain. Text matching neither form is returned as is.
func CleanResponse(text string) string {
	switch {
	case strings.Contains(text, suggestPrefix):
		if strings.Contains(text, `"`) {
			_, after, _ := strings.Cut(text, `"`)
			if i := strings.LastIndex(after, `"`); i >= 0 {
				return after[:i]
			}
			return after
		}
		_, after, _ := strings.Cut(text, ":")
		return strings.TrimSpace(after)
	case strings.Contains(text, respondMarker):
		_, after, _ := strings.Cut(text, respondMarker)
		return strings.TrimSpace(after)
	default:
		return text
	}
}
