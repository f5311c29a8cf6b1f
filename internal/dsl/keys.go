package dsl

import (
	"sort"
	"strings"
)

// ref is a var: or stat: reference found by scanning raw text.
type ref struct {
	name               string
	modifier           string
	start, end         int
	nameStart, nameEnd int
	modStart, modEnd   int
}

// scanRefs finds every "<prefix><name>" in s that is not preceded by a name
// character. For the var: prefix an optional ":<modifier>" is read too.
// base is the offset of s in the template.
func scanRefs(s, prefix string, base int) []ref {
	var out []ref
	for i := 0; ; {
		j := strings.Index(s[i:], prefix)
		if j < 0 {
			return out
		}
		j += i
		i = j + len(prefix)
		if j > 0 && isNameChar(s[j-1]) {
			continue
		}
		r := ref{start: base + j, nameStart: base + i}
		k := scanName(s, i)
		r.name = s[i:k]
		r.nameEnd = base + k
		if prefix == "var:" && k < len(s) && s[k] == ':' {
			m := k + 1
			for m < len(s) && isWordChar(s[m]) {
				m++
			}
			r.modifier = s[k+1 : m]
			r.modStart, r.modEnd = base+k+1, base+m
			k = m
		}
		r.end = base + k
		if r.name != "" {
			out = append(out, r)
		}
		i = k
	}
}

// whereClauses returns the text of every "| where: ... }}" region in src
// together with its offset.
func whereClauses(src string) []Clause {
	var out []Clause
	for _, tok := range Lex(src) {
		if tok.Kind != TokenTag {
			continue
		}
		bar := strings.IndexByte(tok.Body, '|')
		if bar < 0 {
			continue
		}
		i := skipSpace(tok.Body, bar+1)
		if !strings.HasPrefix(tok.Body[i:], "where:") {
			continue
		}
		i += len("where:")
		out = append(out, Clause{Source: tok.Body[i:], Start: tok.BodyStart + i, End: tok.BodyStart + len(tok.Body)})
	}
	return out
}

// RequiredVariableNames statically lists the variable and field names src
// depends on, de-duplicated, in order of first occurrence.
func RequiredVariableNames(src string) []string {
	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, r := range scanRefs(src, "var:", 0) {
		hits = append(hits, hit{r.nameStart, strings.TrimRight(r.name, ".")})
	}
	for _, r := range scanRefs(src, "stat:", 0) {
		if dot := strings.LastIndexByte(r.name, '.'); dot > 0 {
			hits = append(hits, hit{r.nameStart, r.name[:dot]})
		}
	}
	for _, c := range whereClauses(src) {
		for _, f := range fieldRefs(c.Source, c.Start) {
			hits = append(hits, hit{f.start, f.name})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]bool, len(hits))
	names := []string{}
	for _, h := range hits {
		if h.name == "" || seen[h.name] {
			continue
		}
		seen[h.name] = true
		names = append(names, h.name)
	}
	return names
}

// BuildRequiredKeysHash fingerprints a dependency set: the names sorted and
// joined with "|", or "none" when empty.
func BuildRequiredKeysHash(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}
