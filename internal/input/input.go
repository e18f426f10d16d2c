// Package input is the single gate through which untrusted release
// parameters enter the composer. Every downstream component accepts only
// the ValidatedString type produced here, so a raw string can never reach
// a process invocation or a script template.
package input

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/release-tools/release-composer/internal/utils/file"
	"github.com/release-tools/release-composer/internal/utils/security"
)

// Kind identifies the validation rule that accepted a string.
type Kind string

const (
	KindBinaryName   Kind = "binary-name"
	KindPlatform     Kind = "platform"
	KindVersion      Kind = "version"
	KindRepository   Kind = "repository"
	KindToolArgs     Kind = "tool-args"
	KindToolchain    Kind = "toolchain-version"
	KindRelativePath Kind = "relative-path"
)

// ValidatedString is a string tagged with the rule that accepted it.
// It is immutable and can only be constructed by this package.
type ValidatedString struct {
	value string
	kind  Kind
}

func (v ValidatedString) Value() string  { return v.value }
func (v ValidatedString) Kind() Kind     { return v.kind }
func (v ValidatedString) String() string { return v.value }

// RejectionError reports an input that failed validation. The offending
// value is carried verbatim so callers can surface it in diagnostics.
type RejectionError struct {
	Kind   Kind
	Value  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s %q rejected: %s", e.Kind, e.Value, e.Reason)
}

func reject(kind Kind, value, reason string) (ValidatedString, error) {
	return ValidatedString{}, &RejectionError{Kind: kind, Value: value, Reason: reason}
}

// Length caps per kind. Validation is all-or-nothing per field.
var maxLen = map[Kind]int{
	KindBinaryName:   50,
	KindPlatform:     30,
	KindVersion:      50,
	KindRepository:   100,
	KindToolArgs:     200,
	KindToolchain:    20,
	KindRelativePath: 4096,
}

var (
	nameRe    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	repoRe    = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)
	versionRe = regexp.MustCompile(`^[A-Za-z0-9.+-]+$`)
	numericRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+){0,2}$`)
)

// Windows reserved device names, refused as binary or platform names.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// Shell metacharacters never allowed in tool argument strings.
const shellMetaChars = ";|&$`()><"

// Substrings refused in tool argument strings even when no metacharacter
// is present.
var toolArgsDenylist = []string{
	"rm -rf",
	"rm -fr",
	"mkfs",
	"dd if=",
	"curl ",
	"wget ",
	"sh -c",
	"bash -c",
	"python -c",
	"python3 -c",
	"perl -e",
	"ruby -e",
	"eval ",
}

func precheck(kind Kind, raw string) error {
	lim := security.DefaultLimits()
	lim.AllowNL = false
	lim.AllowTab = false
	lim.MaxString = maxLen[kind]
	return security.ValidateString(string(kind), raw, lim)
}

// BinaryName validates the name of the binary being released.
func BinaryName(raw string) (ValidatedString, error) {
	return validateName(KindBinaryName, raw)
}

// Platform validates a platform identifier (matrix row key).
func Platform(raw string) (ValidatedString, error) {
	return validateName(KindPlatform, raw)
}

func validateName(kind Kind, raw string) (ValidatedString, error) {
	if raw == "" {
		return reject(kind, raw, "must not be empty")
	}
	if err := precheck(kind, raw); err != nil {
		return reject(kind, raw, err.Error())
	}
	if !nameRe.MatchString(raw) {
		return reject(kind, raw, "must contain only letters, digits, '-' and '_'")
	}
	if reservedNames[strings.ToLower(raw)] {
		return reject(kind, raw, "is a reserved device name")
	}
	return ValidatedString{value: raw, kind: kind}, nil
}

// Repository validates an "owner/name" repository identifier.
func Repository(raw string) (ValidatedString, error) {
	if raw == "" {
		return reject(KindRepository, raw, "must not be empty")
	}
	if err := precheck(KindRepository, raw); err != nil {
		return reject(KindRepository, raw, err.Error())
	}
	if strings.Count(raw, "/") != 1 {
		return reject(KindRepository, raw, "must contain exactly one '/'")
	}
	if strings.Contains(raw, "..") {
		return reject(KindRepository, raw, "must not contain '..'")
	}
	if !repoRe.MatchString(raw) {
		return reject(KindRepository, raw, "must match owner/name with only word characters, '.' and '-'")
	}
	return ValidatedString{value: raw, kind: KindRepository}, nil
}

// Version validates a release version tag such as "v1.2.3" or "1.0.0-rc.1".
func Version(raw string) (ValidatedString, error) {
	if raw == "" {
		return reject(KindVersion, raw, "must not be empty")
	}
	if err := precheck(KindVersion, raw); err != nil {
		return reject(KindVersion, raw, err.Error())
	}
	first := raw[0]
	startsDigit := first >= '0' && first <= '9'
	startsVDigit := first == 'v' && len(raw) > 1 && raw[1] >= '0' && raw[1] <= '9'
	if !startsDigit && !startsVDigit {
		return reject(KindVersion, raw, "must start with a digit or 'v' followed by a digit")
	}
	if !versionRe.MatchString(raw) {
		return reject(KindVersion, raw, "contains characters outside [A-Za-z0-9.+-]")
	}
	if strings.Contains(raw, "..") {
		return reject(KindVersion, raw, "must not contain '..'")
	}
	if strings.Contains(raw, "--") {
		return reject(KindVersion, raw, "must not contain '--'")
	}
	if strings.HasSuffix(raw, "-") || strings.HasSuffix(raw, "+") {
		return reject(KindVersion, raw, "must not end with '-' or '+'")
	}
	return ValidatedString{value: raw, kind: KindVersion}, nil
}

// ToolArgs validates extra arguments passed through to the compiler.
// The empty string is valid and means no extra arguments.
func ToolArgs(raw string) (ValidatedString, error) {
	if raw == "" {
		return ValidatedString{value: "", kind: KindToolArgs}, nil
	}
	if err := precheck(KindToolArgs, raw); err != nil {
		return reject(KindToolArgs, raw, err.Error())
	}
	if i := strings.IndexAny(raw, shellMetaChars); i != -1 {
		return reject(KindToolArgs, raw, fmt.Sprintf("contains shell metacharacter %q", raw[i]))
	}
	lower := strings.ToLower(raw)
	for _, bad := range toolArgsDenylist {
		if strings.Contains(lower, bad) {
			return reject(KindToolArgs, raw, fmt.Sprintf("contains disallowed substring %q", bad))
		}
	}
	return ValidatedString{value: raw, kind: KindToolArgs}, nil
}

// Toolchain validates a toolchain version: a channel name or a numeric
// MAJOR[.MINOR[.PATCH]] form.
func Toolchain(raw string) (ValidatedString, error) {
	if raw == "" {
		return reject(KindToolchain, raw, "must not be empty")
	}
	if err := precheck(KindToolchain, raw); err != nil {
		return reject(KindToolchain, raw, err.Error())
	}
	switch raw {
	case "stable", "beta", "nightly":
		return ValidatedString{value: raw, kind: KindToolchain}, nil
	}
	if !numericRe.MatchString(raw) {
		return reject(KindToolchain, raw, "must be stable, beta, nightly or numeric MAJOR[.MINOR[.PATCH]]")
	}
	return ValidatedString{value: raw, kind: KindToolchain}, nil
}

// RelativePath validates that raw names a location strictly inside baseDir.
// Absolute paths, ".." segments and symlink escapes are all rejected.
func RelativePath(raw, baseDir string) (ValidatedString, error) {
	if raw == "" {
		return reject(KindRelativePath, raw, "must not be empty")
	}
	if err := precheck(KindRelativePath, raw); err != nil {
		return reject(KindRelativePath, raw, err.Error())
	}
	if filepath.IsAbs(raw) {
		return reject(KindRelativePath, raw, "must not be absolute")
	}
	for _, seg := range strings.Split(filepath.ToSlash(raw), "/") {
		if seg == ".." {
			return reject(KindRelativePath, raw, "must not contain '..' segments")
		}
	}

	joined := filepath.Join(baseDir, raw)
	ok, err := file.IsSubPath(baseDir, joined)
	if err != nil {
		return reject(KindRelativePath, raw, fmt.Sprintf("cannot resolve against %s: %v", baseDir, err))
	}
	if !ok {
		return reject(KindRelativePath, raw, fmt.Sprintf("escapes base directory %s", baseDir))
	}

	// If the path exists, resolve symlinks and re-check containment so a
	// link inside baseDir cannot point back out of it.
	if _, statErr := os.Lstat(joined); statErr == nil {
		resolved, err := filepath.EvalSymlinks(joined)
		if err != nil {
			return reject(KindRelativePath, raw, fmt.Sprintf("cannot resolve symlinks: %v", err))
		}
		resolvedBase, err := filepath.EvalSymlinks(baseDir)
		if err != nil {
			return reject(KindRelativePath, raw, fmt.Sprintf("cannot resolve base directory: %v", err))
		}
		ok, err := file.IsSubPath(resolvedBase, resolved)
		if err != nil || !ok {
			return reject(KindRelativePath, raw, fmt.Sprintf("escapes base directory %s via symlink", baseDir))
		}
	}

	return ValidatedString{value: raw, kind: KindRelativePath}, nil
}

// Validate dispatches raw to the rule for kind. Path validation needs the
// extra baseDir parameter and must go through RelativePath directly.
func Validate(kind Kind, raw string) (ValidatedString, error) {
	switch kind {
	case KindBinaryName:
		return BinaryName(raw)
	case KindPlatform:
		return Platform(raw)
	case KindVersion:
		return Version(raw)
	case KindRepository:
		return Repository(raw)
	case KindToolArgs:
		return ToolArgs(raw)
	case KindToolchain:
		return Toolchain(raw)
	default:
		return reject(kind, raw, "unknown validation kind")
	}
}
