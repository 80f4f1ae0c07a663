package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// cloneDepth bounds the history fetched for analysis checkouts.
const cloneDepth = 50

// ErrSchemeNotAllowed indicates a repository URL outside the https/git
// allowlist.
var ErrSchemeNotAllowed = errors.New("repository URL scheme not allowed")

var allowedSchemes = map[string]bool{
	"https": true,
	"git":   true,
}

// Manager clones test repositories into a scratch directory and removes
// them when analysis is done. Every clone gets its own directory, so
// concurrent jobs never share a checkout.
type Manager struct {
	baseDir string
	log     *logrus.Logger
}

// NewManager creates a clone manager rooted at baseDir
func NewManager(baseDir string, log *logrus.Logger) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir, log: log}
}

// Clone makes a shallow checkout of repoURL and returns its path.
func (m *Manager) Clone(ctx context.Context, repoURL string) (string, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("parse repository url: %w", err)
	}
	if !allowedSchemes[u.Scheme] {
		return "", fmt.Errorf("%w: %q", ErrSchemeNotAllowed, u.Scheme)
	}

	dir := m.checkoutDir(u)
	m.log.WithFields(logrus.Fields{
		"repo": repoURL,
		"dir":  dir,
	}).Info("cloning tests repository")

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", strconv.Itoa(cloneDepth), repoURL, dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git clone failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return dir, nil
}

// Cleanup removes a checkout created by Clone. Paths outside the scratch
// directory are ignored.
func (m *Manager) Cleanup(dir string) {
	if dir == "" || !strings.HasPrefix(dir, m.baseDir+string(os.PathSeparator)) {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		m.log.Warnf("cleanup checkout %s: %v", dir, err)
	}
}

// checkoutDir derives a unique directory name from the repository name.
func (m *Manager) checkoutDir(u *url.URL) string {
	name := strings.TrimSuffix(path.Base(u.Path), ".git")
	if name == "" || name == "." || name == "/" {
		name = "repo"
	}
	return filepath.Join(m.baseDir, name+"-"+uuid.NewString()[:8])
}
