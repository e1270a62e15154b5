// Package gfxcore tracks GPU memory resources and the dependencies
// between the operations that use them.
//
// # Overview
//
// gfxcore is the resource-dependency core of a rendering engine. It
// provides:
//
//   - composite resource references (buffers, images, primitives,
//     groups, renderer attachments) and their resolution down to
//     elementary allocations,
//   - a render graph that orders passes by dependency level and walks
//     a build-state machine with incremental rebuild,
//   - a dependency injection protocol that emits the barriers and
//     semaphores needed between producers and consumers of shared
//     resources.
//
// # Quick Start
//
//	import "github.com/gogpu/gfxcore"
//
//	drv, _ := backend.InitDefault()
//	heap := gfxcore.NewHeap(drv.Device())
//
//	buf, _ := heap.AllocBuffer(gfxcore.MemoryDeviceLocal,
//	    gputypes.BufferUsageVertex, 4096)
//
//	r := gfxcore.NewRenderer(heap)
//	pass, _ := r.AddPass()
//	pass.Consume(true, gfxcore.AccessAttachmentWrite,
//	    gfxcore.StageFragment, gfxcore.AttachmentRef(r, 0))
//	_ = r.Build()
//
// # Architecture
//
// The library is organized into:
//   - Public API: Heap, Reference, Renderer, Pass, Dependency
//   - container: generic chained hash map with stable node handles
//   - format: portable format descriptions and fuzzy native matching
//   - backend: pluggable driver abstraction (wgpu, software)
package gfxcore
