package segment

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/hash"
)

// Blob names within a segment directory.
const (
	TermsBlob    = "terms"
	PostingsBlob = "postings"
	DocsBlob     = "docs"
)

var (
	termsMagic    = [4]byte{'L', 'X', 'T', 'D'}
	postingsMagic = [4]byte{'L', 'X', 'P', 'B'}
	docsMagic     = [4]byte{'L', 'X', 'D', 'S'}
	footerMagic   = [4]byte{'L', 'X', 'F', 'T'}
)

const formatVersion = uint16(1)

// Blob layout:
//
//	header (8 bytes): magic(4) version(2) reserved(2)
//	payload
//	footer (16 bytes): payloadLen(8) crc32c(4) footer magic(4)
//
// The CRC covers the payload only and is verified when the segment is
// opened; a mismatch refuses the open with a CorruptError.
const (
	headerSize = 8
	footerSize = 16
)

// CorruptError indicates that segment data failed an integrity check.
// Opening a segment with corrupt data must refuse to proceed rather
// than silently drop documents.
type CorruptError struct {
	Blob   string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt segment blob %s: %s", e.Blob, e.Reason)
}

// frameBlob wraps payload with the header and checksum footer.
func frameBlob(magic [4]byte, payload []byte) []byte {
	out := make([]byte, headerSize+len(payload)+footerSize)
	copy(out[0:4], magic[:])
	binary.LittleEndian.PutUint16(out[4:6], formatVersion)
	copy(out[headerSize:], payload)

	foot := out[headerSize+len(payload):]
	binary.LittleEndian.PutUint64(foot[0:8], uint64(len(payload)))
	binary.LittleEndian.PutUint32(foot[8:12], hash.CRC32C(payload))
	copy(foot[12:16], footerMagic[:])
	return out
}

// verifyBlob checks the framing of a fully loaded blob and returns the
// payload slice.
func verifyBlob(name string, magic [4]byte, data []byte) ([]byte, error) {
	if len(data) < headerSize+footerSize {
		return nil, &CorruptError{Blob: name, Reason: "truncated"}
	}
	if [4]byte(data[0:4]) != magic {
		return nil, &CorruptError{Blob: name, Reason: "bad magic"}
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != formatVersion {
		return nil, &CorruptError{Blob: name, Reason: fmt.Sprintf("unsupported version %d", v)}
	}

	foot := data[len(data)-footerSize:]
	if [4]byte(foot[12:16]) != footerMagic {
		return nil, &CorruptError{Blob: name, Reason: "missing footer"}
	}
	payloadLen := binary.LittleEndian.Uint64(foot[0:8])
	if payloadLen != uint64(len(data)-headerSize-footerSize) {
		return nil, &CorruptError{Blob: name, Reason: "payload length mismatch"}
	}
	payload := data[headerSize : headerSize+payloadLen]
	if crc := hash.CRC32C(payload); crc != binary.LittleEndian.Uint32(foot[8:12]) {
		return nil, &CorruptError{Blob: name, Reason: "checksum mismatch"}
	}
	return payload, nil
}

// verifyBlobAt streams a blob through the checksum without retaining
// the payload, for blobs that are later read piecewise via ReadAt.
// It returns the payload length.
func verifyBlobAt(name string, magic [4]byte, b blobstore.Blob) (int64, error) {
	size := b.Size()
	if size < headerSize+footerSize {
		return 0, &CorruptError{Blob: name, Reason: "truncated"}
	}

	var hdr [headerSize]byte
	if _, err := b.ReadAt(hdr[:], 0); err != nil {
		return 0, err
	}
	if [4]byte(hdr[0:4]) != magic {
		return 0, &CorruptError{Blob: name, Reason: "bad magic"}
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != formatVersion {
		return 0, &CorruptError{Blob: name, Reason: fmt.Sprintf("unsupported version %d", v)}
	}

	var foot [footerSize]byte
	if _, err := b.ReadAt(foot[:], size-footerSize); err != nil {
		return 0, err
	}
	if [4]byte(foot[12:16]) != footerMagic {
		return 0, &CorruptError{Blob: name, Reason: "missing footer"}
	}
	payloadLen := binary.LittleEndian.Uint64(foot[0:8])
	if payloadLen != uint64(size)-headerSize-footerSize {
		return 0, &CorruptError{Blob: name, Reason: "payload length mismatch"}
	}

	h := hash.NewCRC32C()
	sr := io.NewSectionReader(b, headerSize, int64(payloadLen))
	if _, err := io.Copy(h, sr); err != nil {
		return 0, err
	}
	if h.Sum32() != binary.LittleEndian.Uint32(foot[8:12]) {
		return 0, &CorruptError{Blob: name, Reason: "checksum mismatch"}
	}
	return int64(payloadLen), nil
}

// bufWriter accumulates varint-encoded payload bytes.
type bufWriter struct {
	b []byte
}

func (w *bufWriter) uvarint(v uint64) {
	w.b = binary.AppendUvarint(w.b, v)
}

func (w *bufWriter) str(s string) {
	w.uvarint(uint64(len(s)))
	w.b = append(w.b, s...)
}

// bufReader decodes varint-encoded payload bytes. The first decode
// error sticks; callers check err once after a batch of reads.
type bufReader struct {
	b   []byte
	off int
	err error
}

func (r *bufReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.b[r.off:])
	if n <= 0 {
		r.err = fmt.Errorf("short uvarint at offset %d", r.off)
		return 0
	}
	r.off += n
	return v
}

func (r *bufReader) str() string {
	n := r.uvarint()
	if r.err != nil {
		return ""
	}
	if r.off+int(n) > len(r.b) {
		r.err = fmt.Errorf("short string at offset %d", r.off)
		return ""
	}
	s := string(r.b[r.off : r.off+int(n)])
	r.off += int(n)
	return s
}
