package tracking

// Head poses outside these limits cannot come from a person facing the
// camera. The normalizer rejects them and the landmark pose solver clamps
// to them.
const (
	MaxHeadYaw   = 90.0 // degrees, profile view
	MaxHeadPitch = 75.0 // degrees
)
