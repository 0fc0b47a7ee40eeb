package fsm

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
)

// Squawk is a 4-digit octal transponder code.
type Squawk int

func (sq Squawk) String() string { return fmt.Sprintf("%04o", int(sq)) }

// ErrInvalidSquawk reports a code outside 0000-7777 octal.
var ErrInvalidSquawk = errors.New("invalid squawk code")

// ParseSquawk parses a 4-digit octal code string.
func ParseSquawk(s string) (Squawk, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSquawk, s)
	}
	v, err := strconv.ParseInt(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSquawk, s)
	}
	return Squawk(v), nil
}

// Codes never assigned to a training session: lost link, hijack, radio
// failure, emergency.
var reservedSquawks = map[Squawk]bool{
	0o7400: true,
	0o7500: true,
	0o7600: true,
	0o7700: true,
}

// IsReserved reports whether the code is a reserved special-purpose code.
func (sq Squawk) IsReserved() bool { return reservedSquawks[sq] }

// randomSquawk draws 4 independent octal digits, redrawing whenever the
// result lands on a reserved code.
func randomSquawk(r *rand.Rand) Squawk {
	for {
		code := Squawk(0)
		for i := 0; i < 4; i++ {
			code = code<<3 | Squawk(r.Intn(8))
		}
		if !code.IsReserved() {
			return code
		}
	}
}

// InitialSquawk computes the initial transponder code for a new session in
// this mode: the configured fixed code, or a random draw.
func (g *ModeGraph) InitialSquawk(r *rand.Rand) (Squawk, error) {
	switch g.mode.Squawk.Mode {
	case "random":
		return randomSquawk(r), nil
	case "fixed", "":
		if g.mode.Squawk.Code == "" {
			// VFR default.
			return 0o1200, nil
		}
		return ParseSquawk(g.mode.Squawk.Code)
	default:
		return 0, fmt.Errorf("mode %q: unknown squawk policy %q", g.mode.ID, g.mode.Squawk.Mode)
	}
}
