// Package flagx lets several components parse their own subset of the
// command line without tripping over each other's flags.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// Split partitions args into the allowed flags with their values and
// everything else, preserving order in both.
//
// A flag may be written as "-f value" or "-f=value". A token that follows an
// allowed flag is taken as its value unless it starts with "-".
func Split(args []string, allowedFlags []string) (known, rest []string) {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	known = make([]string, 0, len(args))
	rest = make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, hit := allowed[name]; hit {
				known = append(known, arg)
			} else {
				rest = append(rest, arg)
			}
			continue
		}

		if _, hit := allowed[arg]; !hit {
			rest = append(rest, arg)
			continue
		}
		known = append(known, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			known = append(known, args[i+1])
			i++
		}
	}
	return known, rest
}

// FilterArgs returns only the allowed flags of args and their values.
func FilterArgs(args []string, allowedFlags []string) []string {
	known, _ := Split(args, allowedFlags)
	return known
}

// ConfigPath returns the value of -c or -config in args, the last one
// winning, or "" when neither is present.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}
