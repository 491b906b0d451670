// Package normalize contains functions to normalize identifiers
// exchanged during the AUTH sub-dialog (authorization id,
// authentication id), the same way a mailbox local part gets
// case-folded before comparison.
package normalize

import (
	"golang.org/x/text/secure/precis"
)

// AuthID normalizes an AUTH PLAIN/LOGIN identifier (authorization id or
// authentication id) using PRECIS, the same profile commonly applied to
// mailbox local parts. On error it returns the original value unchanged
// together with the error.
func AuthID(id string) (string, error) {
	if id == "" {
		return id, nil
	}
	norm, err := precis.UsernameCaseMapped.String(id)
	if err != nil {
		return id, err
	}
	return norm, nil
}
