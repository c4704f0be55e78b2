package events

import (
	"strconv"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

const (
	MimePWA        = "application/pwa+zip"
	AltPackagedPWA = "Packaged PWA"
)

// Media describes an uploaded artifact for a media announcement.
type Media struct {
	Filename string
	Size     int64
	MimeType string
	SHA256   string
	URL      string
	Thumb    string
}

// MediaAnnouncement returns the announcement template for m. Tag order is
// name, size, m, x, url, optional thumb, alt.
func MediaAnnouncement(m Media, createdAt nostr.Timestamp) Template {
	mime := m.MimeType
	if mime == "" {
		mime = MimePWA
	}
	tags := nostr.Tags{
		{"name", m.Filename},
		{"size", strconv.FormatInt(m.Size, 10)},
		{"m", mime},
		{"x", m.SHA256},
		{"url", m.URL},
	}
	if m.Thumb != "" {
		tags = append(tags, nostr.Tag{"thumb", m.Thumb})
	}
	tags = append(tags, nostr.Tag{"alt", AltPackagedPWA})
	return Template{
		Kind:      KindMedia,
		Content:   m.Filename,
		Tags:      tags,
		CreatedAt: createdAt,
	}
}

// Reference returns a shareable "nostr:nevent1..." reference to evt with the
// given relay hints.
func Reference(evt *nostr.Event, relays []string) (string, error) {
	nevent, err := nip19.EncodeEvent(evt.ID, relays, evt.PubKey)
	if err != nil {
		return "", err
	}
	return "nostr:" + nevent, nil
}
