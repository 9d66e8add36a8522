package wire

import (
	"bytes"
	"testing"

	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/hashx"
)

func TestEncodeDecodeSmallPayloadUncompressed(t *testing.T) {
	var buf bytes.Buffer
	in := PingPayload{Nonce: 42}
	if err := Encode(&buf, MsgPing, in); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var out PingPayload
	typ, err := Decode(&buf, &out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if typ != MsgPing {
		t.Fatalf("type = %v, want MsgPing", typ)
	}
	if out.Nonce != in.Nonce {
		t.Fatalf("nonce = %d, want %d", out.Nonce, in.Nonce)
	}
}

func TestEncodeDecodeLargePayloadCompressed(t *testing.T) {
	var maxTarget hashx.Hash256
	for i := range maxTarget {
		maxTarget[i] = 0xff
	}
	blocks := make([]*core.Block, 0, 64)
	for i := 0; i < 64; i++ {
		blocks = append(blocks, core.NewGenesisBlock(maxTarget, maxTarget, int64(i)))
	}
	in := BlocksPayload{Blocks: blocks}

	var buf bytes.Buffer
	if err := Encode(&buf, MsgBlocks, in); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var out BlocksPayload
	typ, err := Decode(&buf, &out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if typ != MsgBlocks {
		t.Fatalf("type = %v, want MsgBlocks", typ)
	}
	if len(out.Blocks) != len(in.Blocks) {
		t.Fatalf("blocks = %d, want %d", len(out.Blocks), len(in.Blocks))
	}
	for i := range in.Blocks {
		if in.Blocks[i].Hash() != out.Blocks[i].Hash() {
			t.Fatalf("block %d hash mismatch after round trip", i)
		}
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	// Hand-craft a frame header declaring a length beyond MaxFrameSize.
	buf.WriteByte(byte(MsgPing))
	buf.WriteByte(0) // flags: not compressed
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff})

	var out PingPayload
	if _, err := Decode(&buf, &out); err == nil {
		t.Fatal("expected error decoding an oversized frame")
	}
}
