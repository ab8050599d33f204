package models

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default and maximum limit and clamps a negative offset.
func (p Page) Normalize() Page {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultPageLimit
	case p.Limit > MaxPageLimit:
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
