package auth

import "fmt"

// Require checks a single permission against the identity. Every
// mutating operation passes through here before touching persistence;
// a failure must reach the caller untouched so no state change or event
// write can happen.
func Require(id Identity, perm string) error {
	if !id.HasPermission(perm) {
		return fmt.Errorf("%w: permission required: %s", ErrForbidden, perm)
	}
	return nil
}
