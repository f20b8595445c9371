package statuslist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetBit(t *testing.T) {
	t.Run("most significant bit first", func(t *testing.T) {
		content := NewContent()
		assert.True(t, SetBit(content, 0))
		assert.True(t, SetBit(content, 9))
		assert.Equal(t, byte(0x80), content[0])
		assert.Equal(t, byte(0x40), content[1])
	})

	t.Run("idempotent", func(t *testing.T) {
		content := NewContent()
		assert.True(t, SetBit(content, 7))
		assert.False(t, SetBit(content, 7))
		assert.Equal(t, byte(0x01), content[0])
	})

	t.Run("only the addressed bit changes", func(t *testing.T) {
		content := NewContent()
		SetBit(content, MaxIndex)
		for i := 0; i < MaxIndex; i += 997 {
			assert.False(t, IsSet(content, i), "index %d", i)
		}
		assert.True(t, IsSet(content, MaxIndex))
		assert.Equal(t, byte(0x01), content[ListBytes-1])
	})
}

func TestEncodeDecode(t *testing.T) {
	content := NewContent()
	for _, i := range []int{0, 1, 4096, 65535, MaxIndex} {
		SetBit(content, i)
	}

	encoded, err := Encode(content)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, content, decoded)

	_, err = Decode("not base64!")
	assert.Error(t, err)
}

func TestReservationEntry(t *testing.T) {
	entry := Reservation{ListID: 3, Index: 42}.Entry("https://issuer.example")
	assert.Equal(t, "https://issuer.example/credentials/status/list/3#42", entry.ID)
	assert.Equal(t, "StatusList2021Entry", entry.Type)
	assert.Equal(t, "revocation", entry.StatusPurpose)
	assert.Equal(t, "42", entry.StatusListIndex)
	assert.Equal(t, "https://issuer.example/credentials/status/list/3", entry.StatusListCredential)
}
