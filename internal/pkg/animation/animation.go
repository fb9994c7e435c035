// Package animation detects animated images without decoding them.
package animation

import "bytes"

var (
	gif89aHeader = []byte("GIF89a")
	// graphic control extension introducer, label and block size
	graphicControlMarker = []byte{0x21, 0xF9, 0x04}
)

// IsAnimated reports whether data looks like an animated GIF.
//
// Only GIF89a can carry the graphic control extension that animation frames
// need, so GIF87a and anything that is not a GIF at all report false. False
// negatives are acceptable: the result only decides whether an expensive remote
// classification is skipped.
func IsAnimated(data []byte) bool {
	if !bytes.HasPrefix(data, gif89aHeader) {
		return false
	}
	return bytes.Contains(data[len(gif89aHeader):], graphicControlMarker)
}
