package crypto

import "errors"

var (
	ErrFloatNotAllowed  = errors.New("float values are not allowed")
	ErrNonStringMapKey  = errors.New("map keys must be strings")
	ErrUnsupportedType  = errors.New("unsupported type for canonicalization")
	ErrKeyCollision     = errors.New("normalized map key collision")
	ErrShortSecret      = errors.New("signing secret too short")
	ErrUnknownScheme    = errors.New("unknown signature scheme")
	ErrMalformedTag     = errors.New("malformed signature tag")
)
