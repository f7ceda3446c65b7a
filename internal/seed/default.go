package seed

import _ "embed"

//go:embed default.yaml
var defaultSeed []byte

// Default returns the built-in seed used when no file is given.
func Default() Seed {
	s, err := Parse(defaultSeed)
	if err != nil {
		panic("seed: built-in seed is invalid: " + err.Error())
	}
	return s
}

// DefaultYAML returns the source of the built-in seed.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultSeed...)
}
