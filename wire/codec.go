package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/kkdai/bstream"
)

// MaxFrameSize caps a decoded frame body, mirroring the teacher's 32MB
// network/peer.go safety limit but raised to accommodate bulk SPVChain/
// FlyChain payloads, which carry whole block ranges rather than one block.
const MaxFrameSize = 64 * 1024 * 1024

// compressThreshold is the minimum marshaled payload size, in bytes, before
// a frame is bzip2-compressed. Small control messages (Ping/Pong,
// NewBlockHashes) are never worth the compressor's framing overhead.
const compressThreshold = 512

// frameHeaderBytes is the fixed header size: a type byte, a flag byte (only
// the compressed bit is used), and a 32-bit big-endian body length.
const frameHeaderBytes = 6

// Encode marshals v as JSON and writes it as one wire frame: typ, followed
// by the body, compressed with bzip2 when doing so shrinks it.
//
// The 4-byte length prefix this replaces is network/peer.go's; the header
// here is built bit-by-bit with bstream rather than encoding/binary: the
// compressed flag is written as one bit and padded to a full byte, so the
// frame stays self-describing without a second round trip to learn whether
// the body needs inflating.
func Encode(w io.Writer, typ MsgType, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal %s payload: %w", typ, err)
	}

	body := payload
	compressed := false
	if len(payload) >= compressThreshold {
		compacted, err := compress(payload)
		if err != nil {
			return fmt.Errorf("wire: compress %s payload: %w", typ, err)
		}
		if len(compacted) < len(payload) {
			body = compacted
			compressed = true
		}
	}

	bs := bstream.NewBStreamWriter(frameHeaderBytes)
	bs.WriteByte(byte(typ))
	bs.WriteBit(compressed)
	for i := 0; i < 7; i++ {
		bs.WriteBit(false) // pad the flag byte so length/body stay byte-aligned
	}
	bs.WriteBits(uint64(len(body)), 32)

	if _, err := w.Write(bs.Bytes()); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// Decode reads one wire frame from r and unmarshals its (decompressed) body
// into out, returning the frame's declared MsgType.
func Decode(r io.Reader, out any) (MsgType, error) {
	typ, body, err := DecodeRaw(r)
	if err != nil {
		return typ, err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return typ, fmt.Errorf("wire: unmarshal %s payload: %w", typ, err)
		}
	}
	return typ, nil
}

// DecodeRaw reads one wire frame from r and returns its type and
// (decompressed, still-JSON-encoded) body without unmarshaling it. A
// dispatcher that does not yet know which payload struct to target — the
// gossip worker's receive loop — reads the type first and picks its own
// destination type for a second, cheap json.Unmarshal over the returned bytes.
func DecodeRaw(r io.Reader) (MsgType, []byte, error) {
	header := make([]byte, frameHeaderBytes)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	bs := bstream.NewBStreamReader(header)
	typByte, err := bs.ReadByte()
	if err != nil {
		return 0, nil, fmt.Errorf("wire: read type: %w", err)
	}
	compressed, err := bs.ReadBit()
	if err != nil {
		return 0, nil, fmt.Errorf("wire: read compressed flag: %w", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := bs.ReadBit(); err != nil {
			return 0, nil, fmt.Errorf("wire: read flag padding: %w", err)
		}
	}
	length, err := bs.ReadBits(32)
	if err != nil {
		return 0, nil, fmt.Errorf("wire: read length: %w", err)
	}
	if length > MaxFrameSize {
		return 0, nil, fmt.Errorf("wire: frame too large: %d bytes", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}

	typ := MsgType(typByte)
	if compressed {
		decompressed, err := decompress(body)
		if err != nil {
			return typ, nil, fmt.Errorf("wire: decompress %s payload: %w", typ, err)
		}
		body = decompressed
	}
	return typ, body, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: 6})
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	zr, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
