package security

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Limits bounds every string that crosses the CLI boundary before the
// kind-specific validators see it.
type Limits struct {
	MaxString int // flag values, args, config fields
	MaxPath   int
	AllowNL   bool
	AllowTab  bool
}

func DefaultLimits() Limits {
	return Limits{
		MaxString: 4096,
		MaxPath:   4096,
		AllowNL:   true,
		AllowTab:  true,
	}
}

// ValidateString rejects NUL bytes, invalid UTF-8, control runes and
// over-long values. Empty strings pass; required-ness is the caller's rule.
func ValidateString(name, s string, lim Limits) error {
	if s == "" {
		return nil
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s: invalid UTF-8", name)
	}
	if strings.ContainsRune(s, '\x00') {
		return fmt.Errorf("%s: contains NUL byte", name)
	}
	if n := utf8.RuneCountInString(s); n > lim.MaxString {
		return fmt.Errorf("%s: too long (%d > %d)", name, n, lim.MaxString)
	}
	for _, r := range s {
		switch {
		case r == '\n' && lim.AllowNL:
		case r == '\t' && lim.AllowTab:
		case !unicode.IsPrint(r):
			return fmt.Errorf("%s: contains non-printable/control runes", name)
		}
	}
	return nil
}

func ValidatePath(name, s string, lim Limits) error {
	if err := ValidateString(name, s, lim); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(s); n > lim.MaxPath {
		return fmt.Errorf("%s: path too long (%d > %d)", name, n, lim.MaxPath)
	}
	_ = filepath.Clean(s) // validate only, never mutate the caller's value
	return nil
}

// ValidateStructStrings walks a loaded config and applies the string checks
// to every reachable string field. Pointer cycles are tolerated.
func ValidateStructStrings(obj any, lim Limits) error {
	return checkValue(reflect.ValueOf(obj), "config", lim, map[uintptr]bool{})
}

func checkValue(v reflect.Value, path string, lim Limits, seen map[uintptr]bool) error {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || seen[v.Pointer()] {
			return nil
		}
		seen[v.Pointer()] = true
		return checkValue(v.Elem(), path, lim, seen)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if !f.CanInterface() {
				continue
			}
			if err := checkValue(f, path+"."+t.Field(i).Name, lim, seen); err != nil {
				return err
			}
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			key := fmt.Sprint(k.Interface())
			if err := checkValue(v.MapIndex(k), path+"["+key+"]", lim, seen); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := checkValue(v.Index(i), fmt.Sprintf("%s[%d]", path, i), lim, seen); err != nil {
				return err
			}
		}
	case reflect.String:
		if pathLike(path) {
			return ValidatePath(path, v.String(), lim)
		}
		return ValidateString(path, v.String(), lim)
	}
	return nil
}

// pathLike marks names that carry filesystem paths, so they get the
// path-length bound on top of the generic checks.
func pathLike(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "path") ||
		strings.Contains(lower, "file") ||
		strings.Contains(lower, "dir")
}

// AttachRecursive chains the flag/arg checks into PersistentPreRunE of the
// whole command tree, preserving any hook already set.
func AttachRecursive(root *cobra.Command, lim Limits) {
	attach(root, lim)
	for _, c := range root.Commands() {
		AttachRecursive(c, lim)
	}
}

func attach(cmd *cobra.Command, lim Limits) {
	prev := cmd.PersistentPreRunE
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := validateFlagsAndArgs(c, args, lim); err != nil {
			return err
		}
		if prev != nil {
			return prev(c, args)
		}
		return nil
	}
}

func validateFlagsAndArgs(cmd *cobra.Command, args []string, lim Limits) error {
	for i, a := range args {
		if err := ValidateString(fmt.Sprintf("arg[%d]", i), a, lim); err != nil {
			return err
		}
	}

	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if firstErr != nil {
			return
		}
		name := "flag --" + f.Name
		var vals []string
		switch f.Value.Type() {
		case "string":
			v, _ := cmd.Flags().GetString(f.Name)
			vals = []string{v}
		case "stringSlice":
			vals, _ = cmd.Flags().GetStringSlice(f.Name)
		case "stringArray":
			vals, _ = cmd.Flags().GetStringArray(f.Name)
		default:
			return // non-string flags carry no untrusted text
		}
		firstErr = checkFlagValues(name, vals, pathLike(f.Name), lim)
	})
	return firstErr
}

func checkFlagValues(name string, vals []string, isPath bool, lim Limits) error {
	for i, v := range vals {
		if v == "" {
			continue
		}
		label := name
		if len(vals) > 1 {
			label = fmt.Sprintf("%s[%d]", name, i)
		}
		var err error
		if isPath {
			err = ValidatePath(label, v, lim)
		} else {
			err = ValidateString(label, v, lim)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
