// Package mixer advances animation clips against a skeleton and blends their
// weighted poses. It is the playback primitive the animation controller drives.
package mixer

import (
	"errors"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrSkeletonInUse is returned when a skeleton is already bound to a live owner.
var ErrSkeletonInUse = errors.New("skeleton already bound")

// Transform is a local joint transform.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
}

// IdentityTransform has no translation, no rotation and unit scale.
func IdentityTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Joint is one named node of a rig.
type Joint struct {
	Name string
	Rest Transform
	Pose Transform
}

// Skeleton is the rig a Mixer writes poses into. A skeleton must be owned by
// at most one mixer at a time; Acquire enforces that.
type Skeleton struct {
	mu     sync.Mutex
	joints map[string]*Joint
	order  []*Joint
	owned  bool
}

// NewSkeleton creates an empty skeleton.
func NewSkeleton() *Skeleton {
	return &Skeleton{joints: make(map[string]*Joint)}
}

// AddJoint registers a joint at its rest pose. Adding an existing name
// replaces its rest transform.
func (s *Skeleton) AddJoint(name string, rest Transform) *Joint {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.joints[name]; ok {
		j.Rest = rest
		j.Pose = rest
		return j
	}
	j := &Joint{Name: name, Rest: rest, Pose: rest}
	s.joints[name] = j
	s.order = append(s.order, j)
	return j
}

// Joint returns the joint with the given name, or nil.
func (s *Skeleton) Joint(name string) *Joint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joints[name]
}

// Joints returns joints in insertion order.
func (s *Skeleton) Joints() []*Joint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Joint, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of joints.
func (s *Skeleton) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// ResetPose puts every joint back at rest.
func (s *Skeleton) ResetPose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.order {
		j.Pose = j.Rest
	}
}

// Acquire marks the skeleton as owned. It fails if another owner holds it.
func (s *Skeleton) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned {
		return ErrSkeletonInUse
	}
	s.owned = true
	return nil
}

// Release gives up ownership. Safe to call more than once.
func (s *Skeleton) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned = false
}
