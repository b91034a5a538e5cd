package main

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"
)

// templateEngine renders "--define"/config-supplied variables against each
// other in dependency order, then renders repository URLs and baseline
// package names through the result. Adapted from the teacher's
// manifest.templateEngine, generalized from package-manifest field
// rendering to this CLI's own --define surface.
type templateEngine struct {
	defines map[string]string
}

// newTemplateEngine builds an engine from a set of raw define strings,
// resolving templates that reference other defines in the order their
// dependencies require (a definition may reference another definition by
// name; cycles are rejected).
func newTemplateEngine(defines map[string]string) (*templateEngine, error) {
	resolved := make(map[string]string)
	e := &templateEngine{defines: resolved}

	ordered, err := orderByDependency(defines)
	if err != nil {
		return nil, err
	}
	for _, kv := range ordered {
		val, err := e.renderWith(fmt.Sprintf("define.%s", kv.key), kv.value, resolved)
		if err != nil {
			return nil, err
		}
		resolved[kv.key] = val
	}
	return e, nil
}

// render executes text as a template against the engine's resolved
// defines. Text with no "{{" is returned unchanged -- most repository URLs
// and baseline names never use templating, and skipping the parse keeps
// the common case cheap.
func (e *templateEngine) render(name, text string) (string, error) {
	return e.renderWith(name, text, e.defines)
}

func (e *templateEngine) renderWith(name, text string, defines map[string]string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}
	var buf strings.Builder
	if err := t.Execute(&buf, defines); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}

type kvPair struct{ key, value string }

// orderByDependency topologically sorts defines so that any define
// referencing another define (via "{{.other}}") is rendered after it.
func orderByDependency(defines map[string]string) ([]kvPair, error) {
	keys := make([]string, 0, len(defines))
	for k := range defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	deps := make(map[string][]string)
	for _, k := range keys {
		v := defines[k]
		if !strings.Contains(v, "{{") {
			continue
		}
		vars, err := templateFieldRefs(k, v)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		for _, ref := range vars {
			if _, exists := defines[ref]; exists && ref != k && !seen[ref] {
				deps[k] = append(deps[k], ref)
				seen[ref] = true
			}
		}
		sort.Strings(deps[k])
	}

	var result []kvPair
	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var visit func(string) error
	visit = func(n string) error {
		if visiting[n] {
			return fmt.Errorf("cycle detected in defines: %s", n)
		}
		if visited[n] {
			return nil
		}
		visiting[n] = true
		for _, dep := range deps[n] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[n] = false
		visited[n] = true
		result = append(result, kvPair{key: n, value: defines[n]})
		return nil
	}

	for _, k := range keys {
		if err := visit(k); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// templateFieldRefs returns the field names ("{{.foo}}" -> "foo")
// referenced anywhere in a parsed template, so orderByDependency can build
// its dependency graph without executing anything.
func templateFieldRefs(name, text string) ([]string, error) {
	trees, err := parse.Parse(name, text, "{{", "}}")
	if err != nil {
		return nil, fmt.Errorf("parsing template for define.%s: %w", name, err)
	}

	var refs []string
	var walk func(parse.Node)
	walk = func(n parse.Node) {
		switch node := n.(type) {
		case *parse.ListNode:
			for _, child := range node.Nodes {
				walk(child)
			}
		case *parse.ActionNode:
			walk(node.Pipe)
		case *parse.PipeNode:
			for _, cmd := range node.Cmds {
				walk(cmd)
			}
		case *parse.CommandNode:
			for _, arg := range node.Args {
				walk(arg)
			}
		case *parse.FieldNode:
			if len(node.Ident) > 0 {
				refs = append(refs, node.Ident[0])
			}
		}
	}
	for _, t := range trees {
		if t.Root != nil {
			walk(t.Root)
		}
	}
	return refs, nil
}
