package core

import (
	"bufio"
	"strings"
)

// ExpandMacros replaces $(NAME) macros with their bound values. Unknown
// macros are left verbatim, matching the platform behavior the source
// configurations rely on.
func ExpandMacros(s string, vars map[string]string) string {
	if !strings.Contains(s, "$(") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "$(")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i:], ')')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := s[i+2 : i+j]
		if val, ok := vars[name]; ok {
			b.WriteString(s[:i])
			b.WriteString(val)
		} else {
			b.WriteString(s[:i+j+1])
		}
		s = s[i+j+1:]
	}
}

// PrependPathDirective is the logging command a step may print to push a
// directory onto PATH for the rest of its variant. The source configuration
// uses it to put the conda bin directory first.
const PrependPathDirective = "##ci[prependpath]"

// scanPrependPath extracts prepend-path directives from a step's output, in
// the order they were printed.
func scanPrependPath(output string) []string {
	var dirs []string
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, PrependPathDirective); ok {
			if rest = strings.TrimSpace(rest); rest != "" {
				dirs = append(dirs, rest)
			}
		}
	}
	return dirs
}

// mergeVars overlays maps left to right; later maps win.
func mergeVars(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// buildEnv turns the ambient environment plus variable bindings and an
// accumulated PATH prefix into the env slice handed to the shell. Bindings
// override inherited values of the same name.
func buildEnv(base []string, vars map[string]string, pathPrefix []string) []string {
	env := make([]string, 0, len(base)+len(vars))
	path := ""
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if k == "PATH" {
			_, path, _ = strings.Cut(kv, "=")
			continue
		}
		if _, shadowed := vars[k]; shadowed {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range vars {
		if k == "PATH" {
			path = v
			continue
		}
		env = append(env, k+"="+v)
	}
	if len(pathPrefix) > 0 {
		parts := append([]string{}, pathPrefix...)
		if path != "" {
			parts = append(parts, path)
		}
		path = strings.Join(parts, ":")
	}
	if path != "" {
		env = append(env, "PATH="+path)
	}
	return env
}
