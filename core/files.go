package core

import "io"

// FileStore persists uploaded images.
// Stored names follow `{prefix}_{ownerID}_{unixTimestamp}.{ext}`.
type FileStore interface {
	Save(prefix, ownerID, filename string, r io.Reader) (string, error)
	Delete(name string) error
}

// PrefixFields prefixes the field names of a *ValidationError or *ConflictError,
// e.g. "password" -> "account.password". Other errors are returned untouched.
func PrefixFields(err error, prefix string) error {
	switch e := err.(type) {
	case *ValidationError:
		return &ValidationError{Err: e.Err, Fields: prefixFields(e.Fields, prefix)}
	case *ConflictError:
		return &ConflictError{Err: e.Err, Fields: prefixFields(e.Fields, prefix)}
	}
	return err
}

func prefixFields(flds []FieldError, prefix string) []FieldError {
	out := make([]FieldError, 0, len(flds))
	for _, f := range flds {
		out = append(out, FieldError{Field: prefix + "." + f.Field, Error: f.Error})
	}
	return out
}
