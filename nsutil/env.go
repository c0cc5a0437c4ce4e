package nsutil

import "fmt"

// EnvVar is one KEY=VALUE pair passed to a Popen child.
type EnvVar struct {
	Key string
	Val string
}

// EnvVars is an ordered list of environment variables.
type EnvVars []EnvVar

// ToStringArray renders the list in the "KEY=VALUE" form unix.Exec expects.
func (env EnvVars) ToStringArray() []string {
	var result []string
	for _, e := range env {
		result = append(result, fmt.Sprintf("%s=%s", e.Key, e.Val))
	}
	return result
}
