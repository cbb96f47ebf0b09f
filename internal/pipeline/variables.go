package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Common errors for variable resolution
var (
	ErrUnknownVariable = errors.New("unknown variable")
	ErrVariableCycle   = errors.New("variable references itself")
)

// variableReference matches {NAME} inside a value
var variableReference = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const homeDirectoryPrefix = "~"

// LookupFunc resolves an environment override for a variable
type LookupFunc func(name string) (string, bool)

// Resolve expands {NAME} references in reader, component, and download paths,
// and in string component params. Variables may reference each other.
func (c *Config) Resolve(lookup LookupFunc) error {
	vars, err := resolveVariables(c.Metadata.Variables, lookup)
	if err != nil {
		return err
	}
	c.Metadata.Variables = vars

	expand := func(s string) (string, error) {
		return substitute(s, vars)
	}

	if c.DatasetReader.DataPath, err = expand(c.DatasetReader.DataPath); err != nil {
		return fmt.Errorf("dataset_reader.data_path: %w", err)
	}

	for i := range c.Chainer.Pipe {
		comp := &c.Chainer.Pipe[i]
		if comp.SavePath, err = expand(comp.SavePath); err != nil {
			return fmt.Errorf("component %s save_path: %w", comp.Name(), err)
		}
		if comp.LoadPath, err = expand(comp.LoadPath); err != nil {
			return fmt.Errorf("component %s load_path: %w", comp.Name(), err)
		}
		for key, value := range comp.Params {
			expanded, err := expandValue(value, vars)
			if err != nil {
				return fmt.Errorf("component %s param %s: %w", comp.Name(), key, err)
			}
			comp.Params[key] = expanded
		}
	}

	for i := range c.Metadata.Download {
		d := &c.Metadata.Download[i]
		if d.URL, err = expand(d.URL); err != nil {
			return fmt.Errorf("metadata.download[%d].url: %w", i, err)
		}
		if d.Subdir, err = expand(d.Subdir); err != nil {
			return fmt.Errorf("metadata.download[%d].subdir: %w", i, err)
		}
	}

	return nil
}

// resolveVariables expands every variable, applying environment overrides first
func resolveVariables(raw map[string]string, lookup LookupFunc) (map[string]string, error) {
	merged := make(map[string]string, len(raw))
	for name, value := range raw {
		merged[name] = value
		if lookup != nil {
			if override, ok := lookup(name); ok && override != "" {
				merged[name] = override
			}
		}
	}

	resolved := make(map[string]string, len(merged))
	var resolve func(name string, stack []string) (string, error)
	resolve = func(name string, stack []string) (string, error) {
		if value, ok := resolved[name]; ok {
			return value, nil
		}
		for _, seen := range stack {
			if seen == name {
				return "", fmt.Errorf("%w: %s", ErrVariableCycle, strings.Join(append(stack, name), " -> "))
			}
		}
		raw, ok := merged[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}

		var firstErr error
		value := variableReference.ReplaceAllStringFunc(raw, func(ref string) string {
			inner, err := resolve(ref[1:len(ref)-1], append(stack, name))
			if err != nil && firstErr == nil {
				firstErr = err
			}
			return inner
		})
		if firstErr != nil {
			return "", firstErr
		}

		value, err := expandHome(value)
		if err != nil {
			return "", err
		}
		resolved[name] = value
		return value, nil
	}

	for name := range merged {
		if _, err := resolve(name, nil); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// substitute replaces {NAME} references using already-resolved variables
func substitute(s string, vars map[string]string) (string, error) {
	var firstErr error
	out := variableReference.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[1 : len(ref)-1]
		value, ok := vars[name]
		if !ok && firstErr == nil {
			firstErr = fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return expandHome(out)
}

// expandValue substitutes variables inside strings nested in params
func expandValue(value any, vars map[string]string) (any, error) {
	switch v := value.(type) {
	case string:
		return substitute(v, vars)
	case map[string]any:
		for key, inner := range v {
			expanded, err := expandValue(inner, vars)
			if err != nil {
				return nil, err
			}
			v[key] = expanded
		}
		return v, nil
	case []any:
		for i, inner := range v {
			expanded, err := expandValue(inner, vars)
			if err != nil {
				return nil, err
			}
			v[i] = expanded
		}
		return v, nil
	default:
		return value, nil
	}
}

// expandHome replaces a leading ~ with the user's home directory
func expandHome(path string) (string, error) {
	if path != homeDirectoryPrefix && !strings.HasPrefix(path, homeDirectoryPrefix+"/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, homeDirectoryPrefix)), nil
}
