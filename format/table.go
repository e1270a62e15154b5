package format

import "github.com/gogpu/gputypes"

// record pairs a native format with its description.
type record struct {
	native gputypes.TextureFormat
	format Format
}

// records describes the native formats the table knows about.
var records = []record{
	{gputypes.TextureFormatR8Unorm, Format{UNorm, OrderR, [4]uint8{8, 0, 0, 0}}},
	{gputypes.TextureFormatRGBA8Unorm, Format{UNorm, OrderRGBA, [4]uint8{8, 8, 8, 8}}},
	{gputypes.TextureFormatRGBA8UnormSrgb, Format{SRGB, OrderRGBA, [4]uint8{8, 8, 8, 8}}},
	{gputypes.TextureFormatBGRA8Unorm, Format{UNorm, OrderBGRA, [4]uint8{8, 8, 8, 8}}},
	{gputypes.TextureFormatBGRA8UnormSrgb, Format{SRGB, OrderBGRA, [4]uint8{8, 8, 8, 8}}},
	{gputypes.TextureFormatR32Float, Format{SFloat, OrderR, [4]uint8{32, 0, 0, 0}}},
	{gputypes.TextureFormatRG32Float, Format{SFloat, OrderRG, [4]uint8{32, 32, 0, 0}}},
	{gputypes.TextureFormatRGBA32Float, Format{SFloat, OrderRGBA, [4]uint8{32, 32, 32, 32}}},
	{gputypes.TextureFormatDepth24PlusStencil8, Format{UNorm, OrderDepthStencil, [4]uint8{24, 8, 0, 0}}},
}

// DefaultFeatures reflects the baseline guarantees of the common
// backends, used when no device feature callback is given.
func DefaultFeatures(native gputypes.TextureFormat) Features {
	switch native {
	case gputypes.TextureFormatR8Unorm:
		return SampledImage | SampledImageLinear | Attachment | AttachmentBlend |
			ImageRead | ImageWrite
	case gputypes.TextureFormatRGBA8Unorm:
		return SampledImage | SampledImageLinear | StorageImage | Attachment |
			AttachmentBlend | ImageRead | ImageWrite | VertexBuffer
	case gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatBGRA8UnormSrgb:
		return SampledImage | SampledImageLinear | Attachment | AttachmentBlend |
			ImageRead | ImageWrite
	case gputypes.TextureFormatR32Float,
		gputypes.TextureFormatRG32Float,
		gputypes.TextureFormatRGBA32Float:
		return SampledImage | StorageImage | Attachment |
			ImageRead | ImageWrite | VertexBuffer
	case gputypes.TextureFormatDepth24PlusStencil8:
		return SampledImage | Attachment
	default:
		return 0
	}
}

// entry is a table row: a known native format plus the features the
// queried device reported for it.
type entry struct {
	native   gputypes.TextureFormat
	format   Format
	features Features
}

// Table resolves format descriptions against the native formats of a
// device. A table is immutable after construction and safe for
// concurrent use.
type Table struct {
	entries []entry
}

// NewTable builds a table, querying per-format features through
// support. A nil support falls back to baseline defaults. Formats
// reporting no features at all are excluded.
func NewTable(support func(gputypes.TextureFormat) Features) *Table {
	if support == nil {
		support = DefaultFeatures
	}
	t := &Table{entries: make([]entry, 0, len(records))}
	for _, r := range records {
		feats := support(r.native)
		if feats == 0 {
			continue
		}
		t.entries = append(t.entries, entry{r.native, r.format, feats})
	}
	return t
}

// Describe returns the description of a native format, or the zero
// Format when the format is unknown.
func Describe(native gputypes.TextureFormat) Format {
	for _, r := range records {
		if r.native == native {
			return r.format
		}
	}
	return Format{}
}

// Support returns the features of the native format exactly matching
// f, or zero when no native format matches.
func (t *Table) Support(f Format) Features {
	for _, e := range t.entries {
		if e.format == f {
			return e.features
		}
	}
	return 0
}

// Resolve returns the native format exactly matching f, or Undefined.
func (t *Table) Resolve(f Format) gputypes.TextureFormat {
	for _, e := range t.entries {
		if e.format == f {
			return e.native
		}
	}
	return gputypes.TextureFormatUndefined
}

// Fuzzy returns the native format closest to the query, or Undefined
// when no candidate qualifies.
//
// The query's Type and Order are flag sets naming every acceptable
// type and order. A candidate qualifies when its features contain
// features, its type and order fall within the query's sets and its
// component depths respect the MinDepth/MaxDepth flags. Among
// qualifying candidates those at least as deep as the query in every
// component win; ties are broken by the smallest summed depth
// difference.
func (t *Table) Fuzzy(query Format, flags SearchFlags, features Features) gputypes.TextureFormat {
	best := gputypes.TextureFormatUndefined
	bestContained := false
	bestDist := 0

	for _, e := range t.entries {
		if !e.features.Contains(features) {
			continue
		}
		if e.format.Type&query.Type != e.format.Type {
			continue
		}
		if e.format.Order&query.Order != e.format.Order {
			continue
		}
		if flags&MinDepth != 0 && !e.format.contains(query) {
			continue
		}
		if flags&MaxDepth != 0 && !query.contains(e.format) {
			continue
		}

		contained := e.format.contains(query)
		dist := e.format.distance(query)

		better := false
		switch {
		case best == gputypes.TextureFormatUndefined:
			better = true
		case contained != bestContained:
			better = contained
		default:
			better = dist < bestDist
		}
		if better {
			best = e.native
			bestContained = contained
			bestDist = dist
		}
	}
	return best
}
