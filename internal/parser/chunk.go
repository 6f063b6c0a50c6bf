package parser

import "strings"

// ChunkText splits page-separated text (form feeds between pages) into
// chunks of at most maxChars bytes, keeping pages whole where possible. A
// page longer than maxChars is split on line boundaries. Blank pages are
// dropped.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if strings.TrimSpace(cur.String()) != "" {
			chunks = append(chunks, cur.String())
		}
		cur.Reset()
	}

	for _, page := range strings.Split(text, "\f") {
		if strings.TrimSpace(page) == "" {
			continue
		}
		for _, piece := range splitLong(page, maxChars) {
			if cur.Len() > 0 && cur.Len()+1+len(piece) > maxChars {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte('\n')
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return chunks
}

func splitLong(s string, maxChars int) []string {
	if len(s) <= maxChars {
		return []string{s}
	}
	var out []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(s, "\n") {
		for len(line) > maxChars {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			cut := maxChars
			for cut > 0 && !utf8Start(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxChars
			}
			out = append(out, line[:cut])
			line = line[cut:]
		}
		if cur.Len() > 0 && cur.Len()+len(line) > maxChars {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
