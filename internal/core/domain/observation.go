package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrNoArtifact = errors.New("no render artifact found")

// Blob is binary content with its MIME type.
type Blob struct {
	Data     []byte
	MIMEType string
}

// IsImage reports whether the blob holds an image.
func (b Blob) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(b.MIMEType), "image/")
}

// Attachment is user-supplied context that stays constant for a run.
type Attachment struct {
	Blob
	Description string
}

// Artifact is one render produced by the environment.
type Artifact struct {
	Step int
	Path string
	Blob
	CapturedAt time.Time
}

// Observation describes world state at a step.
type Observation struct {
	Step   int
	Text   string
	Images []Blob
	Failed bool
	At     time.Time
}

// FailedObservation builds the textual result used when observing fails.
func FailedObservation(step int, reason string) Observation {
	return Observation{
		Step:   step,
		Text:   "Could not observe the scene: " + reason,
		Failed: true,
		At:     time.Now(),
	}
}

// ImageAttachments filters attachments down to images.
func ImageAttachments(atts []Attachment) []Blob {
	var out []Blob
	for _, a := range atts {
		if a.IsImage() {
			out = append(out, a.Blob)
		}
	}
	return out
}

// AttachmentBlobs returns the payloads of all attachments.
func AttachmentBlobs(atts []Attachment) []Blob {
	out := make([]Blob, 0, len(atts))
	for _, a := range atts {
		out = append(out, a.Blob)
	}
	return out
}
