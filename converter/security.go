package converter

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// reservedFlags are set by the runner itself and may not be overridden.
var reservedFlags = []string{"-i", "-o", "-f", "-d", "-b", "--input", "--output", "--format", "--input_directory", "--output_file"}

// SplitArgs splits extra converter arguments without involving a shell.
func SplitArgs(s string) ([]string, error) {
	args, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid argument syntax: %w", err)
	}
	return args, nil
}

// ValidateArgs rejects shell metacharacters and flags that would change the
// input, output or format chosen by the runner.
func ValidateArgs(args []string) error {
	for _, arg := range args {
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
		flag, _, _ := strings.Cut(arg, "=")
		for _, r := range reservedFlags {
			if flag == r {
				return fmt.Errorf("argument %s is set by the server and cannot be overridden", r)
			}
		}
	}
	return nil
}
