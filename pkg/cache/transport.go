package cache

import (
	"context"
	"strings"
	"unicode/utf8"
)

// DefaultPacketSize is the chunk size negotiated with the transport.
const DefaultPacketSize = 2048

// Transport moves the settings document as a sequence of string packets.
// Every read or write is a full StartX followed by the announced chunks.
type Transport interface {
	StartRead(ctx context.Context, packetSize int) (int, error)
	ReadChunk(ctx context.Context, index int) (string, error)
	StartWrite(ctx context.Context, length, packetSize int) error
	WriteChunk(ctx context.Context, index int, data string) error
}

// splitPackets cuts s into pieces of at most size bytes without splitting
// a UTF-8 sequence.
func splitPackets(s string, size int) []string {
	if size <= 0 {
		size = DefaultPacketSize
	}
	var out []string
	for len(s) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = size
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func readAll(ctx context.Context, t Transport, packetSize int) (string, error) {
	n, err := t.StartRead(ctx, packetSize)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		chunk, err := t.ReadChunk(ctx, i)
		if err != nil {
			return "", err
		}
		b.WriteString(chunk)
	}
	return b.String(), nil
}

func writeAll(ctx context.Context, t Transport, packetSize int, doc string) error {
	packets := splitPackets(doc, packetSize)
	if err := t.StartWrite(ctx, len(packets), packetSize); err != nil {
		return err
	}
	for i, p := range packets {
		if err := t.WriteChunk(ctx, i, p); err != nil {
			return err
		}
	}
	return nil
}
