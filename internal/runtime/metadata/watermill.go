package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// Carry copies the named keys from an inbound message's metadata. Keys that
// are absent or empty are left out, so a response never carries blank
// headers.
func Carry(md message.Metadata, keys ...string) Metadata {
	carried := make(Metadata, len(keys))
	for _, key := range keys {
		if v := md.Get(key); v != "" {
			carried[key] = v
		}
	}
	return carried
}

// ToWatermill copies md into a fresh Watermill metadata map that the caller
// may extend.
func ToWatermill(md Metadata) message.Metadata {
	wm := make(message.Metadata, len(md)+3)
	for k, v := range md {
		wm[k] = v
	}
	return wm
}
