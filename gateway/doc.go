// Package gateway implements the request normalization and image
// compositing pipeline behind the txt2img, img2img and upscale endpoints.
//
// Architecture:
//
//	Atoms (pure functions):
//	  - fit.go: FitDimensions, aspect-preserving working size
//	  - resolve.go: Resolve/ResolveString, request override vs profile default
//	  - mode.go: EditMode, NormalizeMode, SelectMode
//
//	Molecules:
//	  - registry.go: sampler/upscaler name lookups against the engine registry
//	  - compositor.go: resize, mask-out and collision-free persistence
//
//	Organisms:
//	  - service.go: Service.Generate, Service.Edit, Service.Upscale
//
// The engine is consumed through the sdruntime capability interfaces so the
// pipeline can be exercised against a stub in tests.
package gateway
