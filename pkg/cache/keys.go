package cache

import "strings"

// Keyer derives cache keys.
type Keyer interface {
	// LayoutKey addresses a simulated layout of a graph.
	LayoutKey(graphHash string, opts LayoutKeyOpts) string

	// StateKey addresses the saved positions of a graph. It depends on the
	// graph only, so a resumed run finds positions saved under any
	// parameters.
	StateKey(graphHash string) string

	// ArtifactKey addresses a rendered artifact of a layout.
	ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string
}

// LayoutKeyOpts are the inputs that change a simulated layout.
type LayoutKeyOpts struct {
	Dt              float64 `json:"dt"`
	Attraction      float64 `json:"attraction"`
	LinkLength      float64 `json:"link_length"`
	Repulsion       float64 `json:"repulsion"`
	Central         float64 `json:"central"`
	BatchFraction   float64 `json:"batch_fraction"`
	Strategy        string  `json:"strategy"`
	Frames          int     `json:"frames"`
	SettleThreshold float64 `json:"settle_threshold"`
	MinRadius       float64 `json:"min_radius"`
	MaxRadius       float64 `json:"max_radius"`
	Seed            uint64  `json:"seed"`
	Resume          bool    `json:"resume"`
}

// ArtifactKeyOpts are the inputs that change a rendered artifact.
type ArtifactKeyOpts struct {
	Format   string  `json:"format"`
	Labels   bool    `json:"labels"`
	Directed bool    `json:"directed"`
	Scale    float64 `json:"scale"`
}

// DefaultKeyer produces keys of the form "<type>:<sha256>".
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) LayoutKey(graphHash string, opts LayoutKeyOpts) string {
	return hashKey(KeyTypeLayout, graphHash, opts)
}

func (DefaultKeyer) StateKey(graphHash string) string {
	return KeyTypeState + ":" + graphHash
}

func (DefaultKeyer) ArtifactKey(layoutHash string, opts ArtifactKeyOpts) string {
	return hashKey(KeyTypeArtifact, layoutHash, opts)
}

// KeyType returns the type prefix of a key produced by a Keyer, ignoring
// any scope prefix. Unknown keys report "other".
func KeyType(key string) string {
	for _, t := range []string{KeyTypeLayout, KeyTypeState, KeyTypeArtifact} {
		if strings.HasPrefix(key, t+":") || strings.Contains(key, ":"+t+":") {
			return t
		}
	}
	return "other"
}
