// Package fingerprint derives a stable pseudo-identifier for a browser
// profile from its reported environment characteristics.
//
// The fingerprint is a weak signal: it is not unique across devices and
// collisions are expected. It serves only as a secondary anti-abuse check
// next to the network origin, never as the sole gate.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// separator keeps distinct attribute boundaries from colliding when joined.
const separator = "|||"

// Attributes are the environment characteristics a browser reports about
// itself. Zero values are hashed as-is so the same profile always produces
// the same fingerprint.
type Attributes struct {
	UserAgent           string `json:"userAgent"`
	Language            string `json:"language"`
	HardwareConcurrency int    `json:"hardwareConcurrency"`
	MaxTouchPoints      int    `json:"maxTouchPoints"`
	ColorDepth          int    `json:"colorDepth"`
	ScreenWidth         int    `json:"screenWidth"`
	ScreenHeight        int    `json:"screenHeight"`
	TimezoneOffset      int    `json:"timezoneOffset"`
	Platform            string `json:"platform"`
	Vendor              string `json:"vendor"`

	// CanvasData is the rendering-surface signature, the strongest component.
	// Canvas fingerprinting can fail in hardened browsers; an empty value is
	// simply omitted and the digest is taken over the surviving components.
	CanvasData string `json:"canvasData,omitempty"`
}

// Generate returns the hex SHA-256 digest of the attribute components.
// Same attributes in, same fingerprint out; there are no error conditions.
func Generate(a Attributes) string {
	components := []string{
		a.UserAgent,
		a.Language,
		strconv.Itoa(a.HardwareConcurrency),
		strconv.Itoa(a.MaxTouchPoints),
		strconv.Itoa(a.ColorDepth),
		strconv.Itoa(a.ScreenWidth),
		strconv.Itoa(a.ScreenHeight),
		strconv.Itoa(a.TimezoneOffset),
		a.Platform,
		a.Vendor,
	}
	if a.CanvasData != "" {
		components = append(components, a.CanvasData)
	}

	sum := sha256.Sum256([]byte(strings.Join(components, separator)))
	return hex.EncodeToString(sum[:])
}
