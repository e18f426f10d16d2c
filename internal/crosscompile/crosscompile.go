// Package crosscompile maps target triples to the host toolchain packages
// and environment bindings a cross build needs. Unknown triples are native
// builds, not errors.
package crosscompile

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/release-tools/release-composer/internal/utils/logger"
	"github.com/release-tools/release-composer/internal/utils/shell"
)

// Binding describes what one target triple needs from the host: an OS
// package with the cross linker and the environment variables telling the
// compiler driver which linker/cc/ar to use.
type Binding struct {
	HostPackage string            // package to install on the runner
	HostOS      string            // GOOS the binding is valid on
	Env         map[string]string // linker/cc/ar overrides
}

// table is keyed by target triple. Only targets that genuinely need a
// foreign linker appear here; everything else compiles natively.
var table = map[string]Binding{
	"aarch64-unknown-linux-gnu": {
		HostPackage: "gcc-aarch64-linux-gnu",
		HostOS:      "linux",
		Env: map[string]string{
			"CARGO_TARGET_AARCH64_UNKNOWN_LINUX_GNU_LINKER": "aarch64-linux-gnu-gcc",
			"CC_aarch64_unknown_linux_gnu":                  "aarch64-linux-gnu-gcc",
			"AR_aarch64_unknown_linux_gnu":                  "aarch64-linux-gnu-ar",
		},
	},
	"armv7-unknown-linux-gnueabihf": {
		HostPackage: "gcc-arm-linux-gnueabihf",
		HostOS:      "linux",
		Env: map[string]string{
			"CARGO_TARGET_ARMV7_UNKNOWN_LINUX_GNUEABIHF_LINKER": "arm-linux-gnueabihf-gcc",
			"CC_armv7_unknown_linux_gnueabihf":                  "arm-linux-gnueabihf-gcc",
			"AR_armv7_unknown_linux_gnueabihf":                  "arm-linux-gnueabihf-ar",
		},
	},
	"x86_64-unknown-linux-musl": {
		HostPackage: "musl-tools",
		HostOS:      "linux",
		Env: map[string]string{
			"CARGO_TARGET_X86_64_UNKNOWN_LINUX_MUSL_LINKER": "musl-gcc",
			"CC_x86_64_unknown_linux_musl":                  "musl-gcc",
		},
	},
	"aarch64-unknown-linux-musl": {
		HostPackage: "musl-tools",
		HostOS:      "linux",
		Env: map[string]string{
			"CARGO_TARGET_AARCH64_UNKNOWN_LINUX_MUSL_LINKER": "aarch64-linux-gnu-gcc",
			"CC_aarch64_unknown_linux_musl":                  "aarch64-linux-gnu-gcc",
		},
	},
}

// EnvironmentError reports a provisioning attempt on the wrong host OS.
// It is a configuration problem, not a build failure: the caller falls
// through to a native build attempt.
type EnvironmentError struct {
	Target string
	HostOS string
	WantOS string
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("cross-compile setup for %s requires %s host, running on %s", e.Target, e.WantOS, e.HostOS)
}

// Lookup returns the binding for a target triple. ok is false for triples
// that compile natively.
func Lookup(target string) (Binding, bool) {
	b, ok := table[target]
	return b, ok
}

// EnvList renders a binding's environment map as sorted KEY=VALUE pairs.
func (b Binding) EnvList() []string {
	keys := make([]string, 0, len(b.Env))
	for k := range b.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+b.Env[k])
	}
	return env
}

// Provision installs the host package for target (idempotent) and returns
// the environment bindings for the compiler invocation. An unknown triple
// returns an empty binding set and nil error. A host OS mismatch returns an
// *EnvironmentError; the caller logs it and attempts a native build.
func Provision(target string) ([]string, error) {
	log := logger.Logger()

	binding, ok := Lookup(target)
	if !ok {
		log.Debugf("target %s has no cross-compile binding, building natively", target)
		return nil, nil
	}

	if runtime.GOOS != binding.HostOS {
		return nil, &EnvironmentError{Target: target, HostOS: runtime.GOOS, WantOS: binding.HostOS}
	}

	installed, err := packageInstalled(binding.HostPackage)
	if err != nil {
		log.Warnf("cannot query package state for %s: %v", binding.HostPackage, err)
	}
	if !installed {
		log.Infof("installing cross-compile package %s for %s", binding.HostPackage, target)
		if _, err := shell.ExecCmd("apt-get install -y "+binding.HostPackage, true, nil); err != nil {
			return nil, &EnvironmentError{Target: target, HostOS: runtime.GOOS, WantOS: binding.HostOS}
		}
	} else {
		log.Debugf("cross-compile package %s already installed", binding.HostPackage)
	}

	return binding.EnvList(), nil
}

// packageInstalled reports whether a dpkg-managed package is present.
func packageInstalled(pkg string) (bool, error) {
	out, err := shell.ExecCmd("dpkg-query -W -f='${Status}' "+pkg, false, nil)
	if err != nil {
		// dpkg-query exits non-zero for unknown packages
		return false, nil
	}
	return strings.Contains(out, "install ok installed"), nil
}
