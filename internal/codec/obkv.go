package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Field is one (fid, raw JSON bytes) record in an ordered key-value
// document blob (spec §4.1 "Document blobs").
type Field struct {
	Fid  uint16
	Data []byte
}

// EncodeOBKV serialises fields as a sorted sequence of
// (fid: u16, len: u32, bytes: len) records, matching the spec's ordered
// key-value document format. Input order is not assumed; fields are sorted
// by fid so that two documents with the same field set encode identically.
func EncodeOBKV(fields []Field) []byte {
	sorted := make([]Field, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Fid < sorted[j].Fid })

	var buf bytes.Buffer
	var hdr [6]byte
	for _, f := range sorted {
		binary.BigEndian.PutUint16(hdr[0:2], f.Fid)
		binary.BigEndian.PutUint32(hdr[2:6], uint32(len(f.Data)))
		buf.Write(hdr[:])
		buf.Write(f.Data)
	}
	return buf.Bytes()
}

// DecodeOBKV parses a blob written by EncodeOBKV, returning records in
// stored order, which is ascending fid order since EncodeOBKV sorts them;
// the order in which fields were originally supplied is not recoverable.
func DecodeOBKV(data []byte) ([]Field, error) {
	var fields []Field
	for off := 0; off < len(data); {
		if off+6 > len(data) {
			return nil, fmt.Errorf("obkv: truncated record header at offset %d", off)
		}
		fid := binary.BigEndian.Uint16(data[off : off+2])
		length := binary.BigEndian.Uint32(data[off+2 : off+6])
		off += 6
		if off+int(length) > len(data) {
			return nil, fmt.Errorf("obkv: truncated record body at offset %d", off)
		}
		fields = append(fields, Field{Fid: fid, Data: data[off : off+int(length)]})
		off += int(length)
	}
	return fields, nil
}

// Get returns the raw bytes for fid, or (nil, false) if absent.
func Get(fields []Field, fid uint16) ([]byte, bool) {
	for _, f := range fields {
		if f.Fid == fid {
			return f.Data, true
		}
	}
	return nil, false
}

// DictionaryCodec compresses document blobs with a single zstd dictionary
// shared across an index, trained once on a sample of documents and
// persisted by dictionary id in the `main` table (spec §4.1).
type DictionaryCodec struct {
	mu     sync.Mutex
	id     uint32
	dict   []byte
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// NewDictionaryCodec wraps a trained dictionary with shared encoder/decoder
// instances ("reading opens a shared decoder").
func NewDictionaryCodec(id uint32, dict []byte) (*DictionaryCodec, error) {
	var encOpts []zstd.EOption
	var decOpts []zstd.DOption
	if len(dict) > 0 {
		encOpts = append(encOpts, zstd.WithEncoderDict(dict))
		decOpts = append(decOpts, zstd.WithDecoderDicts(dict))
	}

	enc, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &DictionaryCodec{id: id, dict: dict, enc: enc, dec: dec}, nil
}

// ID returns the dictionary id persisted in the `main` table.
func (c *DictionaryCodec) ID() uint32 { return c.id }

// Compress compresses a document blob.
func (c *DictionaryCodec) Compress(blob []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.EncodeAll(blob, make([]byte, 0, len(blob)))
}

// Decompress inverts Compress.
func (c *DictionaryCodec) Decompress(compressed []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress document blob: %w", err)
	}
	return out, nil
}

// Close releases the encoder/decoder.
func (c *DictionaryCodec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enc.Close()
	c.dec.Close()
}

// TrainDictionary builds a raw-content zstd dictionary from document
// samples by concatenating them in order and truncating the result to
// maxDictBytes; no statistical dictionary training is performed. Samples
// should be a representative cross-section of stored document blobs
// (pre-compression).
func TrainDictionary(samples [][]byte, maxDictBytes int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	// klauspost/compress/zstd does not ship a dictionary trainer; dictionary
	// content is instead the most representative sample truncated to budget,
	// matching the degraded-but-functional path zstd takes with an
	// externally supplied "dictionary" that is just raw prefix content.
	var buf bytes.Buffer
	for _, s := range samples {
		if buf.Len() >= maxDictBytes {
			break
		}
		buf.Write(s)
	}
	out := buf.Bytes()
	if len(out) > maxDictBytes {
		out = out[:maxDictBytes]
	}
	return out, nil
}
