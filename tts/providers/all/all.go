// Package all registers every built-in TTS backend with a registry.
package all

import (
	"github.com/dgnsrekt/ttscache/tts"
	"github.com/dgnsrekt/ttscache/tts/providers/elevenlabs"
	"github.com/dgnsrekt/ttscache/tts/providers/google"
	"github.com/dgnsrekt/ttscache/tts/providers/openai"
)

// Register adds the built-in providers to r in their default priority
// order: openai, elevenlabs, google. The mock provider is not included;
// register it explicitly where deterministic output is wanted.
func Register(r *tts.Registry) {
	r.Register(openai.Registration())
	r.Register(elevenlabs.Registration())
	r.Register(google.Registration())
}
