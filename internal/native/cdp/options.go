// internal/native/cdp/options.go
package cdp

import (
	"strings"

	"github.com/chromedp/chromedp"
)

// Options configures the browser process behind a Library.
type Options struct {
	// ExecPath overrides the browser binary. Empty lets chromedp search.
	ExecPath string
	Headless bool
	// Args are extra command line switches in "name" or "name=value" form.
	// Leading dashes are optional.
	Args []string
}

// flag is one parsed command line switch.
type flag struct {
	name  string
	value any
}

// parseFlags turns raw switches into name/value pairs. A switch without a
// value is a boolean true.
func parseFlags(args []string) []flag {
	out := make([]flag, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			out = append(out, flag{name: name, value: value})
		} else {
			out = append(out, flag{name: arg, value: true})
		}
	}
	return out
}

// AllocatorOptions builds the exec allocator options for o on top of the
// chromedp defaults.
func AllocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", o.Headless),
	)
	if o.Headless {
		opts = append(opts, chromedp.DisableGPU)
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	for _, f := range parseFlags(o.Args) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return opts
}
