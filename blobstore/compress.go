package blobstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType defines the compression algorithm used for blob payloads.
type CompressionType uint8

const (
	// CompressionNone indicates no compression.
	CompressionNone CompressionType = 0
	// CompressionLZ4 indicates LZ4 block compression (fast, good for hot data).
	CompressionLZ4 CompressionType = 1
	// CompressionZSTD indicates ZSTD block compression (better ratio, good for cold data).
	CompressionZSTD CompressionType = 2
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression resolves a configured compression name.
func ParseCompression(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// Compressed blobs are self-describing: a five byte header (magic plus the
// compression type) followed by blocks of
// [uncompressedLen uint32 LE][compressedLen uint32 LE][payload], where a
// compressedLen of zero marks a block stored raw because compression did
// not pay off.
var compressMagic = [4]byte{'v', 'p', 'z', '1'}

const (
	compressHeaderSize = 5
	blockHeaderSize    = 8

	// defaultBlockSize bounds how much data one block header covers.
	defaultBlockSize = 256 * 1024
)

// ZSTD encoder/decoder pools for efficiency.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// CompressOptions configures a CompressedStore.
type CompressOptions struct {
	// BlockSize is the uncompressed size of one block.
	BlockSize int
}

// DefaultCompressOptions are the options used when none are given.
var DefaultCompressOptions = CompressOptions{
	BlockSize: defaultBlockSize,
}

// CompressedStore wraps another Store and compresses blob payloads in
// fixed-size blocks. Written blobs carry a header naming the algorithm, so
// reads do not depend on the store's configured type and a store can read
// back blobs written under a different setting.
type CompressedStore struct {
	inner     Store
	ctype     CompressionType
	blockSize int
}

// NewCompressedStore creates a compressing wrapper around inner.
func NewCompressedStore(inner Store, ctype CompressionType, optFns ...func(o *CompressOptions)) *CompressedStore {
	opts := DefaultCompressOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.BlockSize <= 0 {
		opts.BlockSize = defaultBlockSize
	}

	return &CompressedStore{
		inner:     inner,
		ctype:     ctype,
		blockSize: opts.BlockSize,
	}
}

// Open opens a blob and decompresses it fully. Entry and metadata blobs are
// consumed as whole line streams, so random access into compressed blocks is
// not needed; the decompressed payload serves ReadAt from memory.
func (s *CompressedStore) Open(ctx context.Context, name string) (Blob, error) {
	blob, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}

	data, err := decompressPayload(raw)
	if err != nil {
		return nil, fmt.Errorf("blob %q: %w", name, err)
	}

	return &memoryBlob{data: data}, nil
}

// Create creates a writable blob whose payload is compressed block by block.
func (s *CompressedStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	inner, err := s.inner.Create(ctx, name)
	if err != nil {
		return nil, err
	}

	return &compressedWritableBlob{
		inner:     inner,
		ctype:     s.ctype,
		blockSize: s.blockSize,
		buf:       bytes.NewBuffer(make([]byte, 0, s.blockSize)),
	}, nil
}

// Put writes a blob atomically with compression applied.
func (s *CompressedStore) Put(ctx context.Context, name string, data []byte) error {
	var out bytes.Buffer
	out.Write(compressMagic[:])
	out.WriteByte(byte(s.ctype))

	for off := 0; off < len(data); off += s.blockSize {
		end := min(off+s.blockSize, len(data))
		block, err := compressBlock(data[off:end], s.ctype)
		if err != nil {
			return err
		}
		out.Write(block)
	}

	return s.inner.Put(ctx, name, out.Bytes())
}

// Delete removes a blob.
func (s *CompressedStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

// List returns all blob names under the prefix, sorted.
func (s *CompressedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// compressBlock compresses one block, falling back to raw storage when the
// ratio does not pay off.
func compressBlock(data []byte, ctype CompressionType) ([]byte, error) {
	var (
		compressed []byte
		err        error
	)

	switch ctype {
	case CompressionLZ4:
		compressed, err = compressBlockLZ4(data)
	case CompressionZSTD:
		compressed = compressBlockZSTD(data)
	case CompressionNone:
	default:
		return nil, fmt.Errorf("unknown compression %d", ctype)
	}
	if err != nil {
		return nil, err
	}

	// Incompressible blocks are stored raw, marked by compressedLen 0.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		result := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(result[4:], 0)
		copy(result[blockHeaderSize:], data)
		return result, nil
	}

	result := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(result[4:], uint32(len(compressed)))
	copy(result[blockHeaderSize:], compressed)
	return result, nil
}

func compressBlockLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Incompressible.
		return nil, nil
	}

	return compressed[:n], nil
}

func compressBlockZSTD(data []byte) []byte {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil)
}

// decompressPayload validates the header and decompresses every block.
func decompressPayload(raw []byte) ([]byte, error) {
	if len(raw) < compressHeaderSize {
		return nil, errors.New("payload too small for compression header")
	}
	if !bytes.Equal(raw[:4], compressMagic[:]) {
		return nil, errors.New("missing compression magic")
	}

	ctype := CompressionType(raw[4])
	switch ctype {
	case CompressionNone, CompressionLZ4, CompressionZSTD:
	default:
		return nil, fmt.Errorf("unknown compression %d", raw[4])
	}

	var (
		result []byte
		off    = int64(compressHeaderSize)
	)

	for int(off)+blockHeaderSize <= len(raw) {
		uncompressedSize := binary.LittleEndian.Uint32(raw[off:])
		compressedSize := binary.LittleEndian.Uint32(raw[off+4:])
		off += blockHeaderSize

		if compressedSize == 0 {
			if int(off)+int(uncompressedSize) > len(raw) {
				return nil, errors.New("block extends beyond payload")
			}
			result = append(result, raw[off:off+int64(uncompressedSize)]...)
			off += int64(uncompressedSize)
			continue
		}

		if int(off)+int(compressedSize) > len(raw) {
			return nil, errors.New("compressed block extends beyond payload")
		}
		block := raw[off : off+int64(compressedSize)]
		off += int64(compressedSize)

		switch ctype {
		case CompressionZSTD:
			dec := getZstdDecoder()
			decoded, err := dec.DecodeAll(block, make([]byte, 0, uncompressedSize))
			putZstdDecoder(dec)
			if err != nil {
				return nil, err
			}
			if uint32(len(decoded)) != uncompressedSize {
				return nil, errors.New("decompressed size mismatch")
			}
			result = append(result, decoded...)

		case CompressionLZ4:
			decoded := make([]byte, uncompressedSize)
			n, err := lz4.UncompressBlock(block, decoded)
			if err != nil {
				return nil, err
			}
			if uint32(n) != uncompressedSize {
				return nil, errors.New("decompressed size mismatch")
			}
			result = append(result, decoded[:n]...)

		default:
			return nil, errors.New("compressed block in uncompressed payload")
		}
	}

	if int(off) != len(raw) {
		return nil, errors.New("trailing bytes after last block")
	}

	return result, nil
}

// compressedWritableBlob buffers writes into fixed-size blocks and
// compresses each block before it reaches the inner blob.
type compressedWritableBlob struct {
	inner       WritableBlob
	ctype       CompressionType
	blockSize   int
	buf         *bytes.Buffer
	wroteHeader bool
	closed      atomic.Bool
}

func (w *compressedWritableBlob) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, errors.New("blob already closed")
	}

	total := 0
	for len(p) > 0 {
		space := w.blockSize - w.buf.Len()
		if space <= 0 {
			if err := w.flushBlock(); err != nil {
				return total, err
			}
			space = w.blockSize
		}

		chunk := min(len(p), space)
		n, _ := w.buf.Write(p[:chunk])
		total += n
		p = p[n:]
	}

	return total, nil
}

func (w *compressedWritableBlob) flushBlock() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	if w.buf.Len() == 0 {
		return nil
	}

	block, err := compressBlock(w.buf.Bytes(), w.ctype)
	if err != nil {
		return err
	}

	if _, err := w.inner.Write(block); err != nil {
		return err
	}

	w.buf.Reset()
	return nil
}

func (w *compressedWritableBlob) writeHeader() error {
	if w.wroteHeader {
		return nil
	}

	header := append([]byte{}, compressMagic[:]...)
	header = append(header, byte(w.ctype))
	if _, err := w.inner.Write(header); err != nil {
		return err
	}

	w.wroteHeader = true
	return nil
}

func (w *compressedWritableBlob) Sync() error {
	return w.inner.Sync()
}

func (w *compressedWritableBlob) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return errors.New("blob already closed")
	}

	if err := w.flushBlock(); err != nil {
		w.inner.Close()
		return err
	}

	return w.inner.Close()
}
