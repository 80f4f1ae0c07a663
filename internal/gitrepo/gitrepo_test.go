package gitrepo

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewManager(t.TempDir(), log)
}

func TestCloneRejectsDisallowedSchemes(t *testing.T) {
	t.Parallel()

	m := testManager(t)
	for _, repo := range []string{
		"http://git.example.com/team/tests.git",
		"ssh://git@example.com/team/tests.git",
		"file:///etc/passwd",
		"/local/path/tests",
	} {
		_, err := m.Clone(context.Background(), repo)
		assert.ErrorIs(t, err, ErrSchemeNotAllowed, "repo %q", repo)
	}
}

func TestCheckoutDirNaming(t *testing.T) {
	t.Parallel()

	m := testManager(t)
	u, err := url.Parse("https://git.example.com/team/web-tests.git")
	require.NoError(t, err)

	first := filepath.Base(m.checkoutDir(u))
	second := filepath.Base(m.checkoutDir(u))

	assert.True(t, strings.HasPrefix(first, "web-tests-"), "got %q", first)
	assert.Len(t, first, len("web-tests-")+8)
	assert.NotEqual(t, first, second)

	u, err = url.Parse("https://git.example.com/")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(m.checkoutDir(u)), "repo-"))
}

func TestCleanupRemovesCheckout(t *testing.T) {
	t.Parallel()

	m := testManager(t)
	dir := filepath.Join(m.baseDir, "tests-12345678")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	m.Cleanup(dir)

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupIgnoresOutsidePaths(t *testing.T) {
	t.Parallel()

	m := testManager(t)
	outside := t.TempDir()
	marker := filepath.Join(outside, "keep.txt")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	m.Cleanup(outside)
	m.Cleanup("")

	_, err := os.Stat(marker)
	assert.NoError(t, err)
}
