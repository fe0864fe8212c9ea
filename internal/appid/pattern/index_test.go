package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAllRequiresPrepare(t *testing.T) {
	idx := New[string]()
	idx.Register("bgp", []byte("marker"), AnyPosition)

	_, err := idx.FindAll([]byte("marker"))
	assert.ErrorIs(t, err, ErrNotPrepared)
}

func TestFindAllAnyPosition(t *testing.T) {
	idx := New[string]()
	idx.Register("http", []byte("GET "), AnyPosition)
	require.NoError(t, idx.Prepare())

	results, err := idx.FindAll([]byte("xxxGET /index.html"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "http", results[0].Owner)
	assert.Equal(t, 1, results[0].HitCount)
	assert.Equal(t, 4, results[0].PatternSize)
}

func TestFindAllFixedPositionRejectsWrongOffset(t *testing.T) {
	idx := New[string]()
	// BGP OPEN marker registered at a fixed offset of 19, per spec scenario 2.
	idx.Register("bgp", []byte{0xFF, 0xFF, 0xFF, 0xFF}, 19)
	require.NoError(t, idx.Prepare())

	payload := make([]byte, 32)
	for i := 0; i < 16; i++ {
		payload[i] = 0xFF // marker sits at offset 0, not 19
	}

	results, err := idx.FindAll(payload)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindAllFixedPositionAccepted(t *testing.T) {
	idx := New[string]()
	idx.Register("bgp", []byte{0xAB, 0xCD}, 19)
	require.NoError(t, idx.Prepare())

	payload := make([]byte, 32)
	payload[19] = 0xAB
	payload[20] = 0xCD

	results, err := idx.FindAll(payload)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "bgp", results[0].Owner)
}

func TestFindAllAggregatesHitsPerOwner(t *testing.T) {
	idx := New[string]()
	idx.Register("sip", []byte("SIP/2.0"), AnyPosition)
	idx.Register("sip", []byte("INVITE"), AnyPosition)
	require.NoError(t, idx.Prepare())

	results, err := idx.FindAll([]byte("INVITE sip:bob@example.com SIP/2.0"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sip", results[0].Owner)
	assert.Equal(t, 2, results[0].HitCount)
}

func TestFindAllPrecedenceOrdering(t *testing.T) {
	idx := New[string]()
	idx.Register("a", []byte("xx"), AnyPosition)
	idx.Register("b", []byte("yyyy"), AnyPosition)
	idx.Register("b", []byte("zz"), AnyPosition)
	require.NoError(t, idx.Prepare())

	// "a" hits once (size 2). "b" hits twice (first pattern size 4 kept).
	results, err := idx.FindAll([]byte("xx yyyy zz"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Owner, "higher hit count sorts first")
	assert.Equal(t, 2, results[0].HitCount)
	assert.Equal(t, "a", results[1].Owner)
}

func TestRegisterAfterPrepareRequiresRePrepare(t *testing.T) {
	idx := New[string]()
	idx.Register("a", []byte("aa"), AnyPosition)
	require.NoError(t, idx.Prepare())

	idx.Register("b", []byte("bb"), AnyPosition)
	_, err := idx.FindAll([]byte("aabb"))
	assert.ErrorIs(t, err, ErrNotPrepared)

	require.NoError(t, idx.Prepare())
	results, err := idx.FindAll([]byte("aabb"))
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func BenchmarkFindAll(b *testing.B) {
	idx := New[string]()
	idx.Register("http", []byte("GET "), AnyPosition)
	idx.Register("http", []byte("POST "), AnyPosition)
	idx.Register("ssh", []byte("SSH-"), 0)
	idx.Register("smtp", []byte("220 "), 0)
	_ = idx.Prepare()

	payload := []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.FindAll(payload)
	}
}
