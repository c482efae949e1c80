package autosense

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

const (
	TrackingIDLength   = 12
	trackingIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// largest multiple of 36 below 256, bytes at or above it are redrawn so
	// every symbol is equally likely
	trackingIDByteLimit = 252
)

var ErrInvalidTrackingID = errors.New("invalid tracking id")

// TrackingIDGenerator produces fixed length uppercase alphanumeric tokens.
// 36^12 is about 4.7e18, collisions are assumed not to happen and are only
// detected by the record store refusing to overwrite.
type TrackingIDGenerator struct {
	Source io.Reader
}

func NewTrackingIDGenerator() *TrackingIDGenerator {
	return &TrackingIDGenerator{Source: rand.Reader}
}

func (g *TrackingIDGenerator) New() (string, error) {
	source := g.Source
	if source == nil {
		source = rand.Reader
	}

	id := make([]byte, 0, TrackingIDLength)
	buf := make([]byte, TrackingIDLength*2)
	for len(id) < TrackingIDLength {
		if _, err := io.ReadFull(source, buf); err != nil {
			return "", errors.Wrap(err, "reading random source")
		}
		for _, b := range buf {
			if b >= trackingIDByteLimit {
				continue
			}
			id = append(id, trackingIDAlphabet[int(b)%len(trackingIDAlphabet)])
			if len(id) == TrackingIDLength {
				break
			}
		}
	}
	return string(id), nil
}

func ValidTrackingID(id string) bool {
	if len(id) != TrackingIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
