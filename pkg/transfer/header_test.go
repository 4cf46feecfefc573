package transfer

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"testing/iotest"

	"github.com/rescp17/noftp/pkg/protoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preambleStream(t *testing.T, typ SubHeaderType, contentSize, packetSize uint64, path string) []byte {
	t.Helper()
	h, s, err := EncodePreamble(typ, contentSize, packetSize, path)
	require.NoError(t, err)
	return append(h, s...)
}

func TestHeader_WireLayout(t *testing.T) {
	h := Header{
		Version:       DefaultVersion,
		ContentSize:   10,
		SubheaderSize: 17,
		SubheaderType: CreateFile,
	}.Encode()

	require.Len(t, h, 26)
	assert.Equal(t, []byte("NoFTP"), h[:5])
	assert.Equal(t, []byte{0, 0, 0, 1}, h[5:9])
	assert.Equal(t, uint64(10), binary.BigEndian.Uint64(h[9:17]))
	assert.Equal(t, uint64(17), binary.BigEndian.Uint64(h[17:25]))
	assert.Equal(t, byte(0), h[25])

	sub := SubHeader{Path: "hello.txt"}.Encode()
	assert.Equal(t, append([]byte{0, 0, 0, 0, 0, 0, 0, 9}, "hello.txt"...), sub)
}

func TestPreamble_RoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		typ         SubHeaderType
		contentSize uint64
		packetSize  uint64
		path        string
		bodySize    uint64
	}{
		{"create file", CreateFile, 10, 0, "hello.txt", 10},
		{"empty file", CreateFile, 0, 0, "empty", 0},
		{"nested path", CreateFile, 42, 0, "dir/sub/file.bin", 42},
		{"multibyte path", CreateFile, 5, 0, "документы/報告書 ✓.txt", 5},
		{"empty path", CreateFile, 1, 0, "", 1},
		{"create chunked", CreateFileChunked, 3_000_000, 2_000_000, "big.bin", 2_000_000},
		{"fill chunked", FillFileChunked, 3_000_000, 1_000_000, "big.bin", 1_000_000},
		{"chunked multibyte", FillFileChunked, 9, 9, "ü/ß", 9},
		{"max sizes", CreateFileChunked, 1<<64 - 1, 1<<64 - 1, "x", 1<<64 - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := preambleStream(t, tt.typ, tt.contentSize, tt.packetSize, tt.path)

			p, err := ReadPreamble(bytes.NewReader(stream), DefaultMaxSubheaderSize)
			require.NoError(t, err)
			assert.Equal(t, DefaultVersion, p.Version)
			assert.Equal(t, tt.typ, p.SubheaderType)
			assert.Equal(t, tt.contentSize, p.ContentSize)
			assert.Equal(t, tt.path, p.Path)
			assert.Equal(t, tt.bodySize, p.BodySize())
			assert.Equal(t, uint64(len(stream)-HeaderSize), p.SubheaderSize)
		})
	}
}

func TestReadPreamble_LeavesBodyUnread(t *testing.T) {
	stream := preambleStream(t, CreateFile, 4, 0, "a")
	stream = append(stream, "body"...)
	r := bytes.NewReader(stream)

	_, err := ReadPreamble(iotest.OneByteReader(r), DefaultMaxSubheaderSize)
	require.NoError(t, err)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "body", string(rest))
}

func TestReadPreamble_Malformed(t *testing.T) {
	valid := preambleStream(t, CreateFile, 3, 0, "abc")

	badMagic := bytes.Clone(valid)
	copy(badMagic, "NoFTQ")

	unknownType := bytes.Clone(valid)
	unknownType[HeaderSize-1] = 4

	lyingPathLen := bytes.Clone(valid)
	binary.BigEndian.PutUint64(lyingPathLen[HeaderSize:], 100)

	invalidUTF8 := preambleStream(t, CreateFile, 3, 0, "ab\xff")

	packetTooLarge := Header{Version: DefaultVersion, ContentSize: 10, SubheaderType: CreateFileChunked}
	chunkedSub := SubHeaderChunked{PacketSize: 11, Path: "f"}.Encode()
	packetTooLarge.SubheaderSize = uint64(len(chunkedSub))
	packetStream := append(packetTooLarge.Encode(), chunkedSub...)

	oversize := Header{Version: DefaultVersion, SubheaderSize: DefaultMaxSubheaderSize + 1, SubheaderType: CreateFile}.Encode()

	for name, stream := range map[string][]byte{
		"bad magic":          badMagic,
		"unknown type":       unknownType,
		"path length lies":   lyingPathLen,
		"invalid utf8 path":  invalidUTF8,
		"packet over size":   packetStream,
		"oversize subheader": oversize,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadPreamble(bytes.NewReader(stream), DefaultMaxSubheaderSize)
			assert.ErrorIs(t, err, protoerr.ErrMalformedHeader)
		})
	}
}

func TestReadPreamble_Truncated(t *testing.T) {
	stream := preambleStream(t, CreateFile, 3, 0, "abc")

	tests := []struct {
		name string
		cut  int
	}{
		{"mid header", HeaderSize / 2},
		{"after header", HeaderSize},
		{"mid subheader", HeaderSize + 4},
		{"mid path", len(stream) - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPreamble(bytes.NewReader(stream[:tt.cut]), DefaultMaxSubheaderSize)
			assert.ErrorIs(t, err, protoerr.ErrTruncatedTransfer)
		})
	}
}

func TestReadPreamble_EmptyConnection(t *testing.T) {
	_, err := ReadPreamble(bytes.NewReader(nil), DefaultMaxSubheaderSize)
	assert.Equal(t, io.EOF, err)
}

func TestReadPreamble_IOFailure(t *testing.T) {
	_, err := ReadPreamble(iotest.ErrReader(io.ErrClosedPipe), DefaultMaxSubheaderSize)
	assert.ErrorIs(t, err, protoerr.ErrIOFailure)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestEncodePreamble_Rejects(t *testing.T) {
	_, _, err := EncodePreamble(SubHeaderType(9), 1, 0, "x")
	assert.ErrorIs(t, err, protoerr.ErrMalformedHeader)

	_, _, err = EncodePreamble(FillFileChunked, 10, 11, "x")
	assert.ErrorIs(t, err, protoerr.ErrMalformedHeader)
}

func TestSubHeaderType(t *testing.T) {
	tests := []struct {
		typ     SubHeaderType
		name    string
		valid   bool
		chunked bool
	}{
		{CreateFile, "create_file", true, false},
		{CreateDirectory, "create_directory", true, false},
		{CreateFileChunked, "create_file_chunked", true, true},
		{FillFileChunked, "fill_file_chunked", true, true},
		{SubHeaderType(4), "subheader_type(4)", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.typ.String())
			assert.Equal(t, tt.valid, tt.typ.IsValid())
			assert.Equal(t, tt.chunked, tt.typ.IsChunked())
		})
	}
	assert.Equal(t, "0.0.0.1", DefaultVersion.String())
}
