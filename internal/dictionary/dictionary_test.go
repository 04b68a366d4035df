package dictionary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	d := Default("FIX.4.2")
	require.Equal(t, "FIX.4.2", d.BeginString)
	require.True(t, d.HasMessage("A"))
	f, ok := d.FieldByTag(108)
	require.True(t, ok)
	require.Equal(t, "HeartBtInt", f.Name)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fix42.yaml")
	data := []byte(`
beginString: FIX.4.2
fields:
  MsgType: {tag: 35, name: MsgType, type: string, required: true}
header: [BeginString, BodyLength, MsgType]
trailer: [CheckSum]
messages:
  "0": {msgType: "0", name: Heartbeat, fields: []}
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	d, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "FIX.4.2", d.BeginString)
	require.True(t, d.HasMessage("0"))
}

func TestLoadMissingBeginString(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields: {}\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
