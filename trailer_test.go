package chunked

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultTrailerParser_SingleField(t *testing.T) {
	p := &DefaultTrailerParser{}
	buf := []byte("X-Checksum: abc123\r\n\r\n")
	done, consumed, examined, err := p.Parse(buf)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, len(buf), consumed)
	require.Equal(t, len(buf), examined)

	fields := p.Fields()
	require.Len(t, fields, 1)
	require.Equal(t, "X-Checksum", fields[0].Key)
	require.Equal(t, "abc123", fields[0].Value)
}

func TestDefaultTrailerParser_MultipleFields(t *testing.T) {
	p := &DefaultTrailerParser{}
	done, _, _, err := p.Parse([]byte("A: 1\r\nB: 2\r\n\r\n"))
	require.NoError(t, err)
	require.True(t, done)

	fields := p.Fields()
	require.Len(t, fields, 2)
	require.Equal(t, "A", fields[0].Key)
	require.Equal(t, "B", fields[1].Key)
}

func TestDefaultTrailerParser_NoTrailerFields(t *testing.T) {
	p := &DefaultTrailerParser{}
	done, consumed, examined, err := p.Parse([]byte("\r\n"))
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, 2, consumed)
	require.Equal(t, 2, examined)
	require.Empty(t, p.Fields())
}

func TestDefaultTrailerParser_IncompleteLineWaitsForMore(t *testing.T) {
	p := &DefaultTrailerParser{}
	done, consumed, examined, err := p.Parse([]byte("X-Partial: val"))
	require.NoError(t, err)
	require.False(t, done)
	require.Zero(t, consumed)
	require.Equal(t, 14, examined)
}

func TestDefaultTrailerParser_ForbiddenField(t *testing.T) {
	p := &DefaultTrailerParser{}
	_, _, _, err := p.Parse([]byte("Content-Length: 5\r\n\r\n"))
	require.Error(t, err)
}

func TestDefaultTrailerParser_MalformedLine(t *testing.T) {
	p := &DefaultTrailerParser{}
	_, _, _, err := p.Parse([]byte("not-a-header-line\r\n\r\n"))
	require.Error(t, err)
}

func TestDefaultTrailerParser_InvalidKeyByte(t *testing.T) {
	p := &DefaultTrailerParser{}
	_, _, _, err := p.Parse([]byte("Bad Key: val\r\n\r\n"))
	require.Error(t, err)
}
