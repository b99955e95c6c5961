package transfer

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectHashPrefersSHA256(t *testing.T) {
	h := SelectHash(map[string]string{
		"AutoV1": "ffff",
		"CRC32":  "DEADBEEF",
		"AutoV2": "ABCDEF0123",
		"sha256": " AB12 ",
	})
	assert.Equal(t, Hash{Algorithm: SHA256, Hex: "AB12"}, h)

	h = SelectHash(map[string]string{"CRC32": "DEADBEEF", "AutoV2": "ABCDEF0123"})
	assert.Equal(t, AutoV2, h.Algorithm)

	h = SelectHash(map[string]string{"BLAKE3": "x", "SHA256": ""})
	assert.True(t, h.IsZero())
	assert.True(t, SelectHash(nil).IsZero())
}

func TestVerifyFileAlgorithms(t *testing.T) {
	content := []byte("the quick brown fox")
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	full := sha(content)
	for _, want := range []Hash{
		{Algorithm: SHA256, Hex: full},
		{Algorithm: AutoV2, Hex: full[:10]},
		{Algorithm: CRC32, Hex: fmt.Sprintf("%08X", crc32.ChecksumIEEE(content))},
	} {
		v, err := VerifyFile(path, want)
		require.NoError(t, err, want.Algorithm)
		assert.True(t, v.Checked, want.Algorithm)
		assert.True(t, v.OK, want.Algorithm)
	}

	v, err := VerifyFile(path, Hash{})
	require.NoError(t, err)
	assert.False(t, v.Checked)
	assert.NoError(t, v.Mismatch(path))

	_, err = FileDigest(path, Algorithm("MD5"))
	assert.Error(t, err)
}

func TestObservationFractionAndThrottle(t *testing.T) {
	assert.Equal(t, -1.0, Observation{Downloaded: 5, Total: -1}.Fraction())
	assert.Equal(t, 0.5, Observation{Downloaded: 5, Total: 10}.Fraction())
	assert.Equal(t, 1.0, Observation{Downloaded: 11, Total: 10}.Fraction())

	var got []Observation
	tr := &throttle{
		sink:     ProgressFunc(func(o Observation) { got = append(got, o) }),
		interval: time.Hour,
		start:    time.Now().Add(-time.Second),
		base:     100,
		total:    1100,
	}
	tr.emit(StateStreaming, 100, true)
	tr.emit(StateStreaming, 200, false)
	tr.emit(StateStreaming, 600, true)
	require.Len(t, got, 2)
	assert.Greater(t, got[1].Speed, 0.0)
	assert.Greater(t, got[1].ETA, time.Duration(0))
	assert.Equal(t, "streaming", got[1].State.String())
}
