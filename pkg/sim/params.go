package sim

// Default parameter values.
const (
	DefaultDt            = 1.0
	DefaultAttraction    = 1.0
	DefaultLinkLength    = 15.0
	DefaultRepulsion     = 80.0
	DefaultCentral       = 2.0
	DefaultBatchFraction = 1.0
)

// Params holds the tunable simulation parameters.
// Any field may be changed between frames through the Simulation setters.
type Params struct {
	// Dt is the integration step.
	Dt float64 `json:"dt" toml:"dt" yaml:"dt" validate:"gt=0"`

	// Attraction scales spring forces. Values above 1 behave like 1.
	Attraction float64 `json:"attraction" toml:"attraction" yaml:"attraction" validate:"gte=0"`

	// LinkLength is the resting gap between the rims of two linked nodes.
	LinkLength float64 `json:"link_length" toml:"link_length" yaml:"link_length" validate:"gte=0"`

	// Repulsion scales the pairwise repulsion.
	Repulsion float64 `json:"repulsion" toml:"repulsion" yaml:"repulsion" validate:"gte=0"`

	// Central scales the pull toward the origin.
	Central float64 `json:"central" toml:"central" yaml:"central" validate:"gte=0"`

	// BatchFraction is the fraction of nodes given a repulsion pass per frame.
	BatchFraction float64 `json:"batch_fraction" toml:"batch_fraction" yaml:"batch_fraction" validate:"gt=0,lte=1"`
}

// DefaultParams returns the parameters used when nothing else is configured.
func DefaultParams() Params {
	return Params{
		Dt:            DefaultDt,
		Attraction:    DefaultAttraction,
		LinkLength:    DefaultLinkLength,
		Repulsion:     DefaultRepulsion,
		Central:       DefaultCentral,
		BatchFraction: DefaultBatchFraction,
	}
}

// WithDefaults returns a copy of p where zero-valued Dt and BatchFraction are
// replaced by their defaults. Force strengths are kept as given, since zero
// is a meaningful setting for them.
func (p Params) WithDefaults() Params {
	if p.Dt == 0 {
		p.Dt = DefaultDt
	}
	if p.BatchFraction == 0 {
		p.BatchFraction = DefaultBatchFraction
	}
	return p
}
