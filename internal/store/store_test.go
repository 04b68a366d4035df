package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"mem":  NewMemStore(),
		"file": fs,
	}
}

func TestSequenceNumbers(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			const id = "FIX.4.2:INITIATOR->ACCEPTOR"

			n, err := s.NextSenderSeqNum(id)
			require.NoError(t, err)
			require.Equal(t, 1, n)

			n, err = s.NextSenderSeqNum(id)
			require.NoError(t, err)
			require.Equal(t, 2, n)

			got, err := s.SenderSeqNum(id)
			require.NoError(t, err)
			require.Equal(t, 2, got)

			require.NoError(t, s.SetTargetSeqNum(id, 5))
			got, err = s.TargetSeqNum(id)
			require.NoError(t, err)
			require.Equal(t, 5, got)
		})
	}
}

func TestOutgoingLogAndReset(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			const id = "FIX.4.2:A->B"

			require.NoError(t, s.SaveOutgoing(id, 1, []byte("frame-1")))
			require.NoError(t, s.SaveOutgoing(id, 2, []byte("frame-2")))
			require.NoError(t, s.SaveOutgoing(id, 4, []byte("frame-4")))

			frames, err := s.LookupOutgoing(id, 1, 4)
			require.NoError(t, err)
			require.Equal(t, [][]byte{[]byte("frame-1"), []byte("frame-2"), []byte("frame-4")}, frames)

			require.NoError(t, s.Reset(id))
			n, err := s.SenderSeqNum(id)
			require.NoError(t, err)
			require.Equal(t, 0, n)

			frames, err = s.LookupOutgoing(id, 1, 4)
			require.NoError(t, err)
			require.Empty(t, frames)
		})
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewFileStore(dir)
	require.NoError(t, err)

	const id = "FIX.4.2:A->B"
	_, err = s1.NextSenderSeqNum(id)
	require.NoError(t, err)
	_, err = s1.NextSenderSeqNum(id)
	require.NoError(t, err)
	require.NoError(t, s1.SetTargetSeqNum(id, 7))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	n, err := s2.SenderSeqNum(id)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	target, err := s2.TargetSeqNum(id)
	require.NoError(t, err)
	require.Equal(t, 7, target)

	require.FileExists(t, filepath.Join(dir, sanitize(id), "seqnums"))
}
