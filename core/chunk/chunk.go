// Package chunk splits clean_content into overlapping windows suitable for
// embedding, ahead of the indexer's out-of-scope embedding/vector-store
// collaborators.
package chunk

import "strings"

// Options configures the splitter.
type Options struct {
	// Size is the target chunk length in runes.
	Size int
	// Overlap is how many trailing runes of a chunk are repeated at the
	// start of the next one, so embeddings near a chunk boundary still see
	// surrounding context.
	Overlap int
}

// DefaultOptions matches the defaults used across the pack's text-handling
// repos: a few hundred runes per chunk, modest overlap.
func DefaultOptions() Options {
	return Options{Size: 800, Overlap: 100}
}

// Split breaks text into chunks per opts, preferring paragraph boundaries
// when one falls near the target size.
func Split(text string, opts Options) []string {
	if opts.Size <= 0 {
		opts = DefaultOptions()
	}
	if opts.Overlap >= opts.Size {
		opts.Overlap = opts.Size / 4
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + opts.Size
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			// Snapping to a break closer than opts.Overlap to start would
			// leave the next iteration's start no further ahead than this
			// one's, since next = end - opts.Overlap; only snap when there's
			// enough room past the overlap for the window to advance.
			if boundary := lastParagraphBreak(runes, start, end); boundary-start > opts.Overlap {
				end = boundary
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}
		start = end - opts.Overlap
	}

	return chunks
}

func lastParagraphBreak(runes []rune, start, end int) int {
	for i := end; i > start; i-- {
		if runes[i-1] == '\n' && i < len(runes) && runes[i] == '\n' {
			return i
		}
	}
	return end
}
