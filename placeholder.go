package main

import (
	"regexp"
	"strings"
)

// placeholderRe matches a single non-nesting {...} span in a command
var placeholderRe = regexp.MustCompile(`\{([^{}]*)\}`)

// HasPlaceholder reports whether cmd contains at least one {...} span.
// Selectors that Resolve does not understand still count, so a command
// like "echo ${HOME}" is treated as a fanout command.
func HasPlaceholder(cmd string) bool {
	return placeholderRe.MatchString(cmd)
}

// Resolve substitutes every placeholder in cmd using file. The
// recognized selectors are
//
//	{}          full path
//	{/}         directory part, "./" if there is none
//	{%}         base name
//	{^suf}      full path with suf stripped
//	{%^suf}     base name with suf stripped
//
// Each occurrence is computed from the original file path and replaced
// exactly once, left to right. Replaced text is never rescanned and
// unrecognized selectors are left as they are.
func Resolve(cmd, file string) string {
	matches := placeholderRe.FindAllStringSubmatchIndex(cmd, -1)
	if len(matches) == 0 {
		return cmd
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(cmd[last:m[0]])
		repl, ok := expand(cmd[m[2]:m[3]], file)
		if ok {
			b.WriteString(repl)
		} else {
			b.WriteString(cmd[m[0]:m[1]])
		}
		last = m[1]
	}
	b.WriteString(cmd[last:])
	return b.String()
}

// expand returns the replacement for a single selector and whether the
// selector was recognized
func expand(sel, file string) (string, bool) {
	dir, base := splitPath(file)
	switch {
	case sel == "":
		return file, true
	case strings.HasPrefix(sel, "%^"):
		return stripSuffix(base, sel[2:]), true
	case strings.HasPrefix(sel, "^"):
		return stripSuffix(file, sel[1:]), true
	case sel == "/":
		if dir == "" {
			return "./", true
		}
		return dir, true
	case sel == "%":
		return base, true
	}
	return "", false
}

// stripSuffix cuts s at the last occurrence of suf, but only when the
// first occurrence of suf is past the start of s. A suffix found at
// index 0, or not found at all, leaves s alone.
func stripSuffix(s, suf string) string {
	if strings.Index(s, suf) > 0 {
		return s[:strings.LastIndex(s, suf)]
	}
	return s
}
