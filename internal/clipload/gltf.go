// Package clipload turns glTF animation files into mixer clips and skeletons.
// Parsing is left to github.com/qmuntal/gltf; this package only adapts the
// decoded document.
package clipload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/cortexanim/internal/mixer"
	"github.com/qmuntal/gltf"
)

var (
	// ErrNoAnimation is returned when a file carries no animation.
	ErrNoAnimation = errors.New("clipload: no animation in file")
	// ErrUnsupportedAccessor is returned for accessor layouts we cannot read.
	ErrUnsupportedAccessor = errors.New("clipload: unsupported accessor")
)

// LoadClip opens path and converts its first animation into a clip named name.
func LoadClip(path, name string) (*mixer.Clip, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return ClipFromDocument(doc, name)
}

// ClipFromDocument converts the first animation of doc. Morph weight
// channels are skipped.
func ClipFromDocument(doc *gltf.Document, name string) (*mixer.Clip, error) {
	if len(doc.Animations) == 0 {
		return nil, ErrNoAnimation
	}
	anim := doc.Animations[0]

	tracks := make([]mixer.Track, 0, len(anim.Channels))
	for i, ch := range anim.Channels {
		var path mixer.TrackPath
		switch ch.Target.Path {
		case gltf.TRSTranslation:
			path = mixer.PathTranslation
		case gltf.TRSRotation:
			path = mixer.PathRotation
		case gltf.TRSScale:
			path = mixer.PathScale
		default:
			continue
		}

		if ch.Target.Node == nil || *ch.Target.Node < 0 || *ch.Target.Node >= len(doc.Nodes) {
			continue
		}
		nodeIdx := *ch.Target.Node
		if ch.Sampler < 0 || ch.Sampler >= len(anim.Samplers) {
			return nil, fmt.Errorf("channel %d: bad sampler", i)
		}
		sampler := anim.Samplers[ch.Sampler]

		times, err := readFloats(doc, sampler.Input, 1)
		if err != nil {
			return nil, fmt.Errorf("channel %d input: %w", i, err)
		}

		width := 3
		if path == mixer.PathRotation {
			width = 4
		}
		values, err := readFloats(doc, sampler.Output, width)
		if err != nil {
			return nil, fmt.Errorf("channel %d output: %w", i, err)
		}

		track := mixer.Track{
			Joint: nodeName(doc, nodeIdx),
			Path:  path,
			Times: times,
		}
		stride := width
		offset := 0
		switch sampler.Interpolation {
		case gltf.InterpolationStep:
			track.Interpolation = mixer.InterpStep
		case gltf.InterpolationCubicSpline:
			// in-tangent, value, out-tangent per key; keep the value.
			stride = width * 3
			offset = width
		}
		count := len(values) / stride
		if count > len(times) {
			count = len(times)
		}
		for k := 0; k < count; k++ {
			v := values[k*stride+offset:]
			if path == mixer.PathRotation {
				q := mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
				track.Rotations = append(track.Rotations, q.Normalize())
			} else {
				track.Vectors = append(track.Vectors, mgl32.Vec3{v[0], v[1], v[2]})
			}
		}
		tracks = append(tracks, track)
	}

	return mixer.NewClip(name, -1, tracks), nil
}

// LoadSkeleton builds a skeleton from every node of a character model.
func LoadSkeleton(path string) (*mixer.Skeleton, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return SkeletonFromDocument(doc), nil
}

// SkeletonFromDocument uses node TRS values as rest transforms.
func SkeletonFromDocument(doc *gltf.Document) *mixer.Skeleton {
	sk := mixer.NewSkeleton()
	for i, n := range doc.Nodes {
		rest := mixer.IdentityTransform()
		rest.Translation = mgl32.Vec3{float32(n.Translation[0]), float32(n.Translation[1]), float32(n.Translation[2])}

		r := mgl32.Quat{W: float32(n.Rotation[3]), V: mgl32.Vec3{float32(n.Rotation[0]), float32(n.Rotation[1]), float32(n.Rotation[2])}}
		if r.Len() > 0 {
			rest.Rotation = r.Normalize()
		}
		s := mgl32.Vec3{float32(n.Scale[0]), float32(n.Scale[1]), float32(n.Scale[2])}
		if s != (mgl32.Vec3{}) {
			rest.Scale = s
		}
		sk.AddJoint(nodeName(doc, i), rest)
	}
	return sk
}

// SkeletonFromClips builds an identity-rest skeleton covering every joint the
// clips animate. Used when no character model is available.
func SkeletonFromClips(clips []*mixer.Clip) *mixer.Skeleton {
	sk := mixer.NewSkeleton()
	for _, c := range clips {
		for _, tr := range c.Tracks {
			if sk.Joint(tr.Joint) == nil {
				sk.AddJoint(tr.Joint, mixer.IdentityTransform())
			}
		}
	}
	return sk
}

func nodeName(doc *gltf.Document, i int) string {
	if n := doc.Nodes[i]; n != nil && n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("node_%d", i)
}

// readFloats returns the accessor's float components, width per element.
func readFloats(doc *gltf.Document, accessorIdx, width int) ([]float32, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("%w: index %d", ErrUnsupportedAccessor, accessorIdx)
	}
	acr := doc.Accessors[accessorIdx]
	if acr.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("%w: component type %v", ErrUnsupportedAccessor, acr.ComponentType)
	}
	if acr.BufferView == nil || *acr.BufferView < 0 || *acr.BufferView >= len(doc.BufferViews) {
		return nil, fmt.Errorf("%w: no buffer view", ErrUnsupportedAccessor)
	}
	view := doc.BufferViews[*acr.BufferView]
	if view.Buffer < 0 || view.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("%w: no buffer", ErrUnsupportedAccessor)
	}
	data := doc.Buffers[view.Buffer].Data
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: buffer not loaded", ErrUnsupportedAccessor)
	}

	// Cubic spline outputs hold three elements per key; the caller slices.
	count := acr.Count
	elemSize := width * 4
	stride := view.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	base := view.ByteOffset + acr.ByteOffset
	if count > 0 && base+(count-1)*stride+elemSize > len(data) {
		return nil, fmt.Errorf("%w: accessor out of range", ErrUnsupportedAccessor)
	}

	out := make([]float32, 0, count*width)
	for i := 0; i < count; i++ {
		at := base + i*stride
		for c := 0; c < width; c++ {
			bits := binary.LittleEndian.Uint32(data[at+c*4:])
			out = append(out, math.Float32frombits(bits))
		}
	}
	return out, nil
}
