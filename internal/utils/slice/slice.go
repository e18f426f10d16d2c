package slice

import "strings"

func Contains(slice []string, str string) bool {
	for _, item := range slice {
		if item == str {
			return true
		}
	}
	return false
}

// ContainsSubstring returns the first element containing substr, or "".
func ContainsSubstring(slice []string, substr string) string {
	for _, item := range slice {
		if strings.Contains(item, substr) {
			return item
		}
	}
	return ""
}

// SplitCSV splits on commas, trimming whitespace and dropping empties.
func SplitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
