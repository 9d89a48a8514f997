package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vespacore/servingcore/internal/fileconfig"
)

func writeApplicationDir(t *testing.T, dir string) {
	t.Helper()
	for _, name := range applicationFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, string(name)), []byte("content-"+string(name)), 0o644))
	}
}

func TestLoadApplicationDirectory_ReadsAllRequiredFiles(t *testing.T) {
	dir := t.TempDir()
	writeApplicationDir(t, dir)

	snap, err := loadApplicationDirectory(dir, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Serial)
	for _, name := range applicationFiles {
		b, ok := snap.Get(name)
		require.True(t, ok)
		assert.Equal(t, "content-"+string(name), string(b))
	}
}

func TestLoadApplicationDirectory_ErrorsOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeApplicationDir(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, string(fileconfig.FileAttributes))))

	_, err := loadApplicationDirectory(dir, 1)
	assert.Error(t, err)
}

func TestNextSerial_StartsAtOneForEmptyStore(t *testing.T) {
	store, err := fileconfig.NewStore(t.TempDir())
	require.NoError(t, err)

	serial, err := nextSerial(store)
	require.NoError(t, err)
	assert.EqualValues(t, 1, serial)
}

func TestNextSerial_FollowsHighestPublished(t *testing.T) {
	root := t.TempDir()
	store, err := fileconfig.NewStore(root)
	require.NoError(t, err)

	appDir := t.TempDir()
	writeApplicationDir(t, appDir)
	snap, err := loadApplicationDirectory(appDir, 5)
	require.NoError(t, err)
	require.NoError(t, store.Publish(snap))

	serial, err := nextSerial(store)
	require.NoError(t, err)
	assert.EqualValues(t, 6, serial)
}

func TestDeploy_PublishesAGeneration(t *testing.T) {
	target := t.TempDir()
	flags := &globalFlags{target: target}

	appDir := t.TempDir()
	writeApplicationDir(t, appDir)

	deployCmd := newDeployCommand(flags)
	deployCmd.SetArgs([]string{appDir})
	require.NoError(t, deployCmd.Execute())

	store, err := fileconfig.NewStore(target)
	require.NoError(t, err)
	serials, err := store.List()
	require.NoError(t, err)
	require.Len(t, serials, 1)
	assert.EqualValues(t, 1, serials[0])
}

func TestPrepareThenActivate_OnlyVisibleAfterActivate(t *testing.T) {
	target := t.TempDir()
	flags := &globalFlags{target: target}

	appDir := t.TempDir()
	writeApplicationDir(t, appDir)

	prepareCmd := newPrepareCommand(flags)
	prepareCmd.SetArgs([]string{appDir})
	require.NoError(t, prepareCmd.Execute())

	mainStore, err := fileconfig.NewStore(target)
	require.NoError(t, err)
	serials, err := mainStore.List()
	require.NoError(t, err)
	assert.Empty(t, serials, "prepare must not publish into the main config root")

	activateCmd := newActivateCommand(flags)
	activateCmd.SetArgs([]string{"1"})
	require.NoError(t, activateCmd.Execute())

	serials, err = mainStore.List()
	require.NoError(t, err)
	require.Len(t, serials, 1)
	assert.EqualValues(t, 1, serials[0])
}

func TestProdSubmit_RequiresZoneFlag(t *testing.T) {
	flags := &globalFlags{target: t.TempDir()}
	appDir := t.TempDir()
	writeApplicationDir(t, appDir)

	submitCmd := newProdSubmitCommand(flags)
	submitCmd.SetArgs([]string{appDir})
	assert.Error(t, submitCmd.Execute())
}

func TestProdSubmit_PublishesUnderZoneScopedRoot(t *testing.T) {
	target := t.TempDir()
	flags := &globalFlags{target: target, zone: "prod.us-east-1"}
	appDir := t.TempDir()
	writeApplicationDir(t, appDir)

	submitCmd := newProdSubmitCommand(flags)
	submitCmd.SetArgs([]string{appDir})
	require.NoError(t, submitCmd.Execute())

	zoneStore, err := fileconfig.NewStore(filepath.Join(target, "zones", "prod.us-east-1"))
	require.NoError(t, err)
	serials, err := zoneStore.List()
	require.NoError(t, err)
	require.Len(t, serials, 1)
}

func TestProdInit_CreatesRequiredFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "newapp")

	initCmd := newProdInitCommand()
	initCmd.SetArgs([]string{dir})
	require.NoError(t, initCmd.Execute())

	for _, name := range applicationFiles {
		_, err := os.Stat(filepath.Join(dir, string(name)))
		assert.NoError(t, err)
	}
}
