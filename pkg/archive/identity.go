package archive

import "errors"

var errViewonly = errors.New("viewonly user may not perform mutating operations")

// assertNotViewonly rejects mutating operations for the reserved read-only
// login. Called at the top of every mutating [Store] method.
func (s *Store) assertNotViewonly(op, user string) error {
	if user == s.cfg.ReadOnlyUser {
		return newErr(KindAuth, op, "", errViewonly)
	}

	return nil
}
