// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package magnet recovers magnet URIs and infohashes from the assorted forms
// torrent feeds carry them in: proper magnet links, bare hex or base32
// hashes, and hashes buried inside free text.
package magnet

import (
	"encoding/base32"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/types/infohash"
)

const hashLength = 20

var (
	uriPat         = regexp.MustCompile(`(?i)magnet:\?[a-z%0-9=_:&.+-]+`)
	xtPat          = regexp.MustCompile(`(?i)xt=urn:(?:btih|sha1|btmh):([^&]+)`)
	hexPat         = regexp.MustCompile(`^[a-fA-F0-9]{40}$`)
	b32Pat         = regexp.MustCompile(`^[a-zA-Z2-7]{32}$`)
	hexEmbeddedPat = regexp.MustCompile(`[^a-fA-F0-9]([a-fA-F0-9]{40})[^a-fA-F0-9]`)
	b32EmbeddedPat = regexp.MustCompile(`[^a-zA-Z2-7]([a-zA-Z2-7]{32})[^a-zA-Z2-7]`)
)

var b32Encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// FromHash builds a canonical magnet URI from a bare 40-char hex or 32-char
// base32 infohash. Returns "" when the input is neither.
func FromHash(s string) string {
	raw := decodeInfoHash(strings.TrimSpace(s))
	if raw == nil {
		return ""
	}
	var h infohash.T
	copy(h[:], raw)
	return metainfo.Magnet{InfoHash: h}.String()
}

// HashFrom extracts the infohash from a magnet URI and returns it as
// lowercase hex, truncated to 20 bytes when the URI carries a longer digest.
// Returns "" when no hash can be recovered.
func HashFrom(uri string) string {
	if m, err := metainfo.ParseMagnetUri(uri); err == nil {
		return m.InfoHash.HexString()
	}
	// permissive fallback for magnets the strict parser rejects (short or
	// oddly encoded xt values still carry usable hash material)
	sub := xtPat.FindStringSubmatch(uri)
	if sub == nil {
		return ""
	}
	raw := decodeLoose(sub[1])
	if raw == nil {
		return ""
	}
	if len(raw) > hashLength {
		raw = raw[:hashLength]
	}
	return hex.EncodeToString(raw)
}

// NormalizeHash maps a textual hash to its canonical lowercase-hex form.
// Values that are not recognisable hash encodings pass through trimmed, so
// opaque upstream identifiers are preserved rather than dropped.
func NormalizeHash(s string) string {
	s = strings.TrimSpace(s)
	if raw := decodeInfoHash(s); raw != nil {
		return hex.EncodeToString(raw)
	}
	return s
}

// ParseText scans free text for anything magnet-shaped: a leading magnet URI,
// a bare hex or base32 hash (optionally with surrounding garbage), or an
// embedded magnet link. Returns a magnet URI or "".
func ParseText(text string) string {
	if text == "" {
		return ""
	}
	if strings.HasPrefix(text, "magnet:") {
		return text
	}

	if hexPat.MatchString(text) {
		return FromHash(text)
	}
	if squashed := strings.Join(strings.Fields(text), ""); hexPat.MatchString(squashed) {
		return FromHash(squashed)
	}
	if b32Pat.MatchString(text) {
		return FromHash(text)
	}

	if m := uriPat.FindString(text); m != "" {
		return m
	}

	// embedded hashes delimited by non-hash characters
	padded := "!" + text + "!"
	if sub := b32EmbeddedPat.FindStringSubmatch(padded); sub != nil {
		return FromHash(sub[1])
	}
	if sub := hexEmbeddedPat.FindStringSubmatch(padded); sub != nil {
		return FromHash(sub[1])
	}

	return ""
}

// decodeInfoHash decodes exactly one 20-byte infohash from its hex or base32
// textual form.
func decodeInfoHash(s string) []byte {
	switch len(s) {
	case 40:
		raw, err := hex.DecodeString(s)
		if err != nil || len(raw) != hashLength {
			return nil
		}
		return raw
	case 32:
		raw, err := b32Encoding.DecodeString(strings.ToUpper(s))
		if err != nil || len(raw) != hashLength {
			return nil
		}
		return raw
	}
	return nil
}

// decodeLoose decodes hash material of any even hex length or 32-char
// base32, for magnets whose xt value is nonstandard.
func decodeLoose(s string) []byte {
	s = strings.TrimSpace(s)
	if raw := decodeInfoHash(s); raw != nil {
		return raw
	}
	if len(s)%2 == 0 {
		if raw, err := hex.DecodeString(s); err == nil && len(raw) > 0 {
			return raw
		}
	}
	return nil
}
