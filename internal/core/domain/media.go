package domain

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

type VideoConstraints struct {
	Width  int
	Height int
}

// Constraints describes one acquisition attempt. A nil Audio or Video
// means the kind is not requested; zero-valued structs mean "any device".
type Constraints struct {
	Audio *AudioConstraints
	Video *VideoConstraints
}

func (c Constraints) WantsAudio() bool { return c.Audio != nil }
func (c Constraints) WantsVideo() bool { return c.Video != nil }

const (
	PreferredWidth  = 1280
	PreferredHeight = 720
)

// OptimizedConstraints is the first acquisition tier.
func OptimizedConstraints(t CallType) Constraints {
	c := Constraints{
		Audio: &AudioConstraints{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
	}
	if t.HasVideo() {
		c.Video = &VideoConstraints{Width: PreferredWidth, Height: PreferredHeight}
	}
	return c
}

// MinimalConstraints is the fallback tier: audio: true, video: <bool>.
func MinimalConstraints(t CallType) Constraints {
	c := Constraints{Audio: &AudioConstraints{}}
	if t.HasVideo() {
		c.Video = &VideoConstraints{}
	}
	return c
}

// ConstraintTiers lists the attempts in the order they are tried.
func ConstraintTiers(t CallType) []Constraints {
	return []Constraints{OptimizedConstraints(t), MinimalConstraints(t)}
}
