// Package format describes texel formats independently of any backend
// and maps those descriptions to native texture formats.
//
// A Format names numeric type, component order and component depths.
// A Table relates formats to the native formats a device exposes,
// together with the features each supports, and can resolve a loose
// description to the closest native format through Fuzzy.
package format

// Type is the numeric interpretation of a format's components.
// Values are flags so a fuzzy query can accept several at once.
type Type uint32

const (
	UNorm Type = 1 << iota
	SNorm
	UScaled
	SScaled
	UInt
	SInt
	UFloat
	SFloat
	SRGB
)

// Order names the component layout. Values are flags so a fuzzy query
// can accept several at once.
type Order uint32

const (
	OrderR Order = 1 << iota
	OrderRG
	OrderRGB
	OrderBGR
	OrderRGBA
	OrderBGRA
	OrderARGB
	OrderABGR
	OrderDepth
	OrderStencil
	OrderDepthStencil
)

// AnyColor accepts every color component order.
const AnyColor = OrderR | OrderRG | OrderRGB | OrderBGR |
	OrderRGBA | OrderBGRA | OrderARGB | OrderABGR

// Features is a bitmask of the operations a device supports on a
// native format.
type Features uint32

const (
	SampledImage Features = 1 << iota
	SampledImageLinear
	SampledImageMinmax
	StorageImage
	StorageImageAtomic
	Attachment
	AttachmentBlend
	ImageRead
	ImageWrite
	VertexBuffer
)

// Contains reports whether f supports everything in req.
func (f Features) Contains(req Features) bool { return f&req == req }

// Format describes a texel format. Comps holds the bit depth of each
// component in the order named by Order; unused components are zero.
// For depth/stencil orders Comps[0] is the depth and Comps[1] the
// stencil depth.
type Format struct {
	Type  Type
	Order Order
	Comps [4]uint8
}

// IsEmpty reports whether f describes nothing.
func (f Format) IsEmpty() bool {
	return f.Type == 0 && f.Order == 0 && f.Comps == [4]uint8{}
}

// BitDepth returns the total bit depth of all components.
func (f Format) BitDepth() int {
	total := 0
	for _, c := range f.Comps {
		total += int(c)
	}
	return total
}

// contains reports whether every component of f is at least as deep
// as the corresponding component of q.
func (f Format) contains(q Format) bool {
	for i := range q.Comps {
		if f.Comps[i] < q.Comps[i] {
			return false
		}
	}
	return true
}

// distance sums the absolute per-component depth differences.
func (f Format) distance(q Format) int {
	d := 0
	for i := range q.Comps {
		diff := int(f.Comps[i]) - int(q.Comps[i])
		if diff < 0 {
			diff = -diff
		}
		d += diff
	}
	return d
}

// SearchFlags tune fuzzy format resolution.
type SearchFlags uint32

const (
	// MinDepth rejects candidates with any component shallower than
	// the query's.
	MinDepth SearchFlags = 1 << iota
	// MaxDepth rejects candidates with any component deeper than the
	// query's.
	MaxDepth
)
