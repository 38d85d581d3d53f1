package ocr

import "strings"

// NormalizeText cleans a detected caption line. Whitespace runs collapse to one space and a
// matching pair of wrapping quotes is removed. Placeholder answers a model gives for an empty
// image normalize to "".
func NormalizeText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) >= 2 {
		first, last := trimmed[0], trimmed[len(trimmed)-1]
		if first == last && strings.ContainsRune("\"'`", rune(first)) {
			trimmed = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		}
	}
	if trimmed == "" {
		return ""
	}

	bare := strings.Trim(trimmed, " .，。;；:：!！?？")
	switch strings.ToLower(bare) {
	case "none", "no text", "no_text", "n/a", "null":
		return ""
	}
	switch bare {
	case "无文字", "没有文字", "无内容", "无文本", "无字", "無文字", "沒有文字":
		return ""
	}

	return strings.Join(strings.Fields(trimmed), " ")
}
