package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	raw, err := Encode(MemberCursor{Offset: 20, UserID: "@bob:x"})
	require.NoError(t, err)
	assert.NotContains(t, raw, "=")

	var decoded MemberCursor
	require.NoError(t, Decode(raw, &decoded))
	assert.Equal(t, MemberCursor{Offset: 20, UserID: "@bob:x"}, decoded)
}

func TestDecodeInvalid(t *testing.T) {
	var decoded MemberCursor
	assert.ErrorContains(t, Decode("%%%", &decoded), "invalid cursor")
	assert.ErrorContains(t, Decode("bm90LWpzb24", &decoded), "invalid cursor payload")
}

func TestResume(t *testing.T) {
	ids := []string{"@a:x", "@b:x", "@c:x"}
	assert.Equal(t, 2, MemberCursor{Offset: 0, UserID: "@b:x"}.Resume(ids))
	assert.Equal(t, 1, MemberCursor{Offset: 1, UserID: "@gone:x"}.Resume(ids))
	assert.Equal(t, 3, MemberCursor{Offset: 10}.Resume(ids))
	assert.Equal(t, 0, MemberCursor{Offset: -4}.Resume(ids))
}
