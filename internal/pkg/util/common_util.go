package util

import (
	"regexp"
	"strings"
)

var urlRegex = regexp.MustCompile(`https?://[^\s<>"']+`)

// FirstURL 提取文本中的第一个链接，用于生成预览
func FirstURL(text string) string {
	match := urlRegex.FindString(text)
	return strings.TrimRight(match, ".,，。!?！？)")
}
