package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkLen is the chunk size used when the caller passes none
const DefaultMaxChunkLen = 400

// Chunk splits text into ordered chunks of at most maxLen characters.
// Lines become paragraphs, paragraphs split into sentences after . ! or ?,
// and sentences are packed greedily with single spaces. A sentence longer
// than maxLen is packed word by word; only a single overlong word is cut
// at the length boundary. This deliberately differs from slicing the sentence
// every maxLen characters, which would split words across chunks.
func Chunk(text string, maxLen int) []TextChunk {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLen
	}

	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	var sentences []string
	for _, line := range strings.Split(normalized, "\n") {
		paragraph := strings.TrimSpace(line)
		if paragraph == "" {
			continue
		}
		sentences = append(sentences, splitSentences(paragraph)...)
	}

	p := packer{maxLen: maxLen}
	for _, sentence := range sentences {
		if runeLen(sentence) > maxLen {
			p.flush()
			for _, word := range strings.Fields(sentence) {
				if runeLen(word) > maxLen {
					p.flush()
					p.hardSplit(word)
					continue
				}
				p.add(word)
			}
			p.flush()
			continue
		}
		p.add(sentence)
	}
	p.flush()

	chunks := make([]TextChunk, len(p.out))
	for i, s := range p.out {
		chunks[i] = TextChunk{Index: i, Text: s}
	}
	return chunks
}

// splitSentences breaks at whitespace runs that follow sentence punctuation
func splitSentences(paragraph string) []string {
	var (
		out   []string
		start int
		prev  rune
	)

	for i := 0; i < len(paragraph); {
		r, size := utf8.DecodeRuneInString(paragraph[i:])
		if unicode.IsSpace(r) && (prev == '.' || prev == '!' || prev == '?') {
			if s := strings.TrimSpace(paragraph[start:i]); s != "" {
				out = append(out, s)
			}
			j := i
			for j < len(paragraph) {
				r2, size2 := utf8.DecodeRuneInString(paragraph[j:])
				if !unicode.IsSpace(r2) {
					break
				}
				j += size2
			}
			start, i, prev = j, j, r
			continue
		}
		prev = r
		i += size
	}

	if s := strings.TrimSpace(paragraph[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

type packer struct {
	maxLen  int
	current []string
	length  int
	out     []string
}

func (p *packer) add(piece string) {
	n := runeLen(piece)
	extra := n
	if p.length > 0 {
		extra++
	}
	if p.length+extra > p.maxLen {
		p.flush()
		extra = n
	}
	p.current = append(p.current, piece)
	p.length += extra
}

func (p *packer) flush() {
	if len(p.current) == 0 {
		return
	}
	p.out = append(p.out, strings.Join(p.current, " "))
	p.current = p.current[:0]
	p.length = 0
}

func (p *packer) hardSplit(word string) {
	runes := []rune(word)
	for i := 0; i < len(runes); i += p.maxLen {
		end := i + p.maxLen
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[i:end])); piece != "" {
			p.out = append(p.out, piece)
		}
	}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
