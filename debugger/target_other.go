//go:build !windows

package debugger

import "fmt"

// Launch only works on windows. The stub keeps the session and its tests
// building everywhere else.
func Launch(argv []string) (*Session, error) {
	return nil, fmt.Errorf("live debugging requires windows")
}
