package indicator

import (
	"strings"
)

// sampleSize is how much of the feed is inspected to guess the dialect
const sampleSize = 4096

// minConsistency is the share of sample lines that must agree on a
// delimiter count before that delimiter is accepted.
const minConsistency = 0.9

// candidateDelimiters are tried in preference order; ties go to the earlier one.
var candidateDelimiters = []rune{',', '\t', ';', '|', ':'}

// Dialect describes how a delimited feed is laid out
type Dialect struct {
	Delimiter        rune
	Quote            rune
	TrimLeadingSpace bool
}

// DefaultDialect is plain comma-separated text with double-quoted fields
var DefaultDialect = Dialect{Delimiter: ',', Quote: '"'}

// Sniff guesses the dialect of text from its leading sample. The boolean is
// false when no delimiter could be determined, in which case DefaultDialect
// is returned.
func Sniff(text string) (Dialect, bool) {
	lines := sampleLines(text)
	if len(lines) == 0 {
		return DefaultDialect, false
	}

	var best rune
	bestScore := 0.0
	for _, d := range candidateDelimiters {
		score := consistency(lines, d)
		if score > bestScore {
			best, bestScore = d, score
		}
	}

	if best == 0 || bestScore < minConsistency {
		return DefaultDialect, false
	}

	return Dialect{
		Delimiter:        best,
		Quote:            guessQuote(lines, best),
		TrimLeadingSpace: followedBySpace(lines, best),
	}, true
}

// sampleLines returns the non-empty lines of the leading sample. A line cut
// in half by the sample boundary is dropped.
func sampleLines(text string) []string {
	sample := text
	truncated := false
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
		truncated = true
	}

	raw := strings.Split(sample, "\n")
	if truncated && len(raw) > 1 {
		raw = raw[:len(raw)-1]
	}

	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// consistency returns the fraction of lines whose count of d equals the most
// common non-zero count. Zero means d never appears as a field separator.
func consistency(lines []string, d rune) float64 {
	freq := make(map[int]int)
	for _, line := range lines {
		freq[countOutsideQuotes(line, d)]++
	}

	mode, modeLines := 0, 0
	for count, n := range freq {
		if count == 0 {
			continue
		}
		if n > modeLines || (n == modeLines && count > mode) {
			mode, modeLines = count, n
		}
	}
	if mode == 0 {
		return 0
	}

	return float64(modeLines) / float64(len(lines))
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == d && !inQuotes:
			n++
		}
	}
	return n
}

// guessQuote picks whichever of ' and " wraps more fields. Double quotes win ties.
func guessQuote(lines []string, d rune) rune {
	single, double := 0, 0
	for _, line := range lines {
		for _, field := range strings.Split(line, string(d)) {
			field = strings.TrimSpace(field)
			if len(field) < 2 {
				continue
			}
			switch {
			case field[0] == '\'' && field[len(field)-1] == '\'':
				single++
			case field[0] == '"' && field[len(field)-1] == '"':
				double++
			}
		}
	}
	if single > double {
		return '\''
	}
	return '"'
}

// followedBySpace reports whether most delimiters in the sample are followed by a space
func followedBySpace(lines []string, d rune) bool {
	total, spaced := 0, 0
	sep := string(d)
	for _, line := range lines {
		total += strings.Count(line, sep)
		spaced += strings.Count(line, sep+" ")
	}
	return total > 0 && spaced*2 > total
}
