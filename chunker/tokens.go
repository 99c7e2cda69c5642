package chunker

import (
	"strings"
	"unicode"
)

// Token estimates use a word-based heuristic: tokens ~ words * 1.3.
// Integer arithmetic keeps the estimate exact (ceil(words*13/10)) so
// truncation decisions are stable across calls.
const (
	tokensPerWordNum = 13
	tokensPerWordDen = 10
)

// CountTokens estimates the number of LLM tokens in text.
func CountTokens(text string) int {
	return tokensForWords(len(strings.Fields(text)))
}

// EnforceMaxTokens truncates text so that CountTokens of the result is at
// most maxTokens. Text already within budget is returned unchanged, so
// applying it twice with the same budget gives the same result as once.
// Truncation happens at a word boundary; whitespace inside the kept prefix
// is preserved.
func EnforceMaxTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if CountTokens(text) <= maxTokens {
		return text
	}
	keep := maxWordsFor(maxTokens)
	if keep == 0 {
		return ""
	}
	return prefixWords(text, keep)
}

func tokensForWords(words int) int {
	return (words*tokensPerWordNum + tokensPerWordDen - 1) / tokensPerWordDen
}

// maxWordsFor returns the largest word count whose estimate fits maxTokens.
func maxWordsFor(maxTokens int) int {
	if maxTokens <= 0 {
		return 0
	}
	n := maxTokens * tokensPerWordDen / tokensPerWordNum
	for tokensForWords(n+1) <= maxTokens {
		n++
	}
	for n > 0 && tokensForWords(n) > maxTokens {
		n--
	}
	return n
}

// prefixWords returns text up to and including its n-th whitespace
// separated word.
func prefixWords(text string, n int) string {
	count := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				inWord = false
				if count == n {
					return text[:i]
				}
			}
			continue
		}
		if !inWord {
			inWord = true
			count++
		}
	}
	return text
}
