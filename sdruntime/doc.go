// Package sdruntime is the boundary to the Stable Diffusion inference engine.
//
// The gateway never runs diffusion itself. It talks to an engine through
// four small capabilities:
//
//   - Engine: text-to-image and image-to-image generation
//   - Upscaler: single-image upscaling by upscaler name
//   - Registry: the sampler and upscaler names the engine offers
//   - FaceRestorer: process-wide face restoration settings
//
// Client implements all four against an AUTOMATIC1111-compatible webui
// started with --api. Tests substitute in-memory fakes.
//
// # Parameters
//
// Txt2ImgParams and Img2ImgParams are fully resolved: every field carries a
// concrete value, there is no "use the default" state left. Validate checks
// ranges before anything is sent over the wire.
//
// # Images
//
// Images cross the wire as base64 PNG. Results are decoded back into
// image.Image values, in the order the engine returned them.
package sdruntime
