package mixer

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// TrackPath is the joint property a track animates.
type TrackPath int

const (
	PathTranslation TrackPath = iota
	PathRotation
	PathScale
)

func (p TrackPath) String() string {
	switch p {
	case PathTranslation:
		return "translation"
	case PathRotation:
		return "rotation"
	case PathScale:
		return "scale"
	default:
		return "unknown"
	}
}

// Interpolation selects how values between keys are computed.
type Interpolation int

const (
	InterpLinear Interpolation = iota
	InterpStep
)

// Track is a keyed curve for one property of one joint. Translation and scale
// tracks use Vectors, rotation tracks use Rotations; both are parallel to Times.
type Track struct {
	Joint         string
	Path          TrackPath
	Interpolation Interpolation
	Times         []float32
	Vectors       []mgl32.Vec3
	Rotations     []mgl32.Quat
}

// Len is the number of usable keys.
func (t *Track) Len() int {
	n := len(t.Times)
	if t.Path == PathRotation {
		if len(t.Rotations) < n {
			n = len(t.Rotations)
		}
	} else if len(t.Vectors) < n {
		n = len(t.Vectors)
	}
	return n
}

// End returns the time of the last key.
func (t *Track) End() float32 {
	n := t.Len()
	if n == 0 {
		return 0
	}
	return t.Times[n-1]
}

// keyframe locates the key pair around at and the blend factor between them.
func (t *Track) keyframe(at float32) (lo, hi int, f float32) {
	n := t.Len()
	if n <= 1 || at <= t.Times[0] {
		return 0, 0, 0
	}
	if at >= t.Times[n-1] {
		return n - 1, n - 1, 0
	}
	hi = sort.Search(n, func(i int) bool { return t.Times[i] > at })
	lo = hi - 1
	span := t.Times[hi] - t.Times[lo]
	if span <= 0 || t.Interpolation == InterpStep {
		return lo, lo, 0
	}
	return lo, hi, (at - t.Times[lo]) / span
}

// SampleVector evaluates a translation or scale track.
func (t *Track) SampleVector(at float32) mgl32.Vec3 {
	if t.Len() == 0 {
		return mgl32.Vec3{}
	}
	lo, hi, f := t.keyframe(at)
	if lo == hi {
		return t.Vectors[lo]
	}
	a, b := t.Vectors[lo], t.Vectors[hi]
	return a.Add(b.Sub(a).Mul(f))
}

// SampleRotation evaluates a rotation track.
func (t *Track) SampleRotation(at float32) mgl32.Quat {
	if t.Len() == 0 {
		return mgl32.QuatIdent()
	}
	lo, hi, f := t.keyframe(at)
	if lo == hi {
		return t.Rotations[lo]
	}
	return mgl32.QuatSlerp(t.Rotations[lo], t.Rotations[hi], f)
}

// Clip is a named set of tracks with a duration in seconds.
type Clip struct {
	Name     string
	Duration float64
	Tracks   []Track
}

// NewClip builds a clip. A negative duration is derived from the last key of
// any track.
func NewClip(name string, duration float64, tracks []Track) *Clip {
	c := &Clip{Name: name, Duration: duration, Tracks: tracks}
	if duration < 0 {
		c.Duration = 0
		for i := range tracks {
			if end := float64(tracks[i].End()); end > c.Duration {
				c.Duration = end
			}
		}
	}
	return c
}
