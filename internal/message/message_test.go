package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		content []byte
		props   map[string]string
	}{
		{"empty", nil, nil},
		{"simple", []byte("hello"), map[string]string{"k": "v"}},
		{"multi-prop", []byte("payload"), map[string]string{"a": "1", "b": "2", "c": ""}},
		{"empty-content-with-props", []byte{}, map[string]string{"x": "y"}},
		{"binary-content", []byte{0x00, 0x01, 0xff, 0x00}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Create(tc.content, tc.props)
			require.NoError(t, err)
			defer m.Destroy()

			buf := m.ToOwnedBytes()
			decoded, err := FromBytes(buf)
			require.NoError(t, err)
			defer decoded.Destroy()

			assert.Equal(t, m.Content(), decoded.Content())
			assert.Equal(t, len(tc.props), len(decoded.Properties()))
			for k, v := range tc.props {
				assert.Equal(t, v, decoded.Properties()[k])
			}
		})
	}
}

func TestToBytesSizing(t *testing.T) {
	m, err := Create([]byte("hello"), map[string]string{"k": "v"})
	require.NoError(t, err)
	defer m.Destroy()

	size, err := m.ToBytes(nil)
	require.NoError(t, err)
	assert.Equal(t, m.RequiredSize(), size)

	_, err = m.ToBytes(make([]byte, size-1))
	require.ErrorIs(t, err, gwerrors.ErrBufferTooSmall)

	buf := make([]byte, size)
	n, err := m.ToBytes(buf)
	require.NoError(t, err)
	assert.Equal(t, size, n)
}

func TestFromBytesMalformed(t *testing.T) {
	_, err := FromBytes([]byte{0x00, 0x01})
	require.Error(t, err)

	m, err := Create([]byte("hi"), nil)
	require.NoError(t, err)
	defer m.Destroy()
	buf := m.ToOwnedBytes()

	_, err = FromBytes(buf[:len(buf)-1])
	require.Error(t, err)
}

func TestRefCount(t *testing.T) {
	m, err := Create([]byte("x"), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.RefCount())

	c1 := m.Clone()
	assert.EqualValues(t, 2, m.RefCount())
	c2 := c1.Clone()
	assert.EqualValues(t, 3, m.RefCount())

	c2.Destroy()
	c1.Destroy()
	assert.EqualValues(t, 1, m.RefCount())
	m.Destroy()
	assert.EqualValues(t, 0, m.RefCount())
}
