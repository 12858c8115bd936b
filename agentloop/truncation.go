package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies which part of an oversized text survives.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// TruncateOutput cuts output to maxChars characters, leaving a marker that
// says how much was removed.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	if mode == TruncateTail {
		return fmt.Sprintf("[... first %d characters omitted ...]\n", removed) +
			output[len(output)-maxChars:]
	}
	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n[... %d characters omitted ...]\n", removed) +
		output[len(output)-(maxChars-half):]
}

// TruncateLines keeps the first and last lines of output, maxLines in total.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateTokens shrinks text with head/tail truncation until count reports
// at most maxTokens.
func TruncateTokens(text string, maxTokens int, count func(string) int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := count(text)
	if tokens <= maxTokens {
		return text
	}
	chars := len(text) * maxTokens / tokens
	for chars > 0 {
		cut := TruncateOutput(text, chars, TruncateHeadTail)
		if count(cut) <= maxTokens {
			return cut
		}
		chars = chars * 3 / 4
	}
	return ""
}
