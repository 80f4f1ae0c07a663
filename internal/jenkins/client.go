package jenkins

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultTimeout bounds a single Jenkins API request.
const defaultTimeout = 60 * time.Second

// ErrNotFound indicates the requested Jenkins resource does not exist.
var ErrNotFound = errors.New("jenkins resource not found")

// Options configures a Jenkins client.
type Options struct {
	URL       string
	User      string
	Password  string
	SSLVerify bool
	Timeout   time.Duration
}

// Client talks to a Jenkins controller over its JSON API.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	log      *logrus.Logger
}

// New creates a Jenkins client
func New(opts Options, log *logrus.Logger) *Client {
	transport := &http.Transport{}
	if !opts.SSLVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.URL, "/"),
		user:     opts.User,
		password: opts.Password,
		http:     &http.Client{Timeout: timeout, Transport: transport},
		log:      log,
	}
}

// BuildURL composes the URL of a build from a folder-style job name like
// "folder/app/nightly".
func (c *Client) BuildURL(jobName string, buildNumber int) string {
	segments := strings.Split(strings.Trim(jobName, "/"), "/")
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/job/%s/%d", c.baseURL, strings.Join(escaped, "/job/"), buildNumber)
}

// ParseBuildURL extracts the folder-style job name and build number from a
// build URL like ".../job/folder/job/app/123/".
func ParseBuildURL(buildURL string) (string, int, error) {
	u, err := url.Parse(strings.TrimRight(buildURL, "/"))
	if err != nil {
		return "", 0, fmt.Errorf("parse build url %q: %w", buildURL, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 {
		return "", 0, fmt.Errorf("not a jenkins build url: %s", buildURL)
	}
	number, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", 0, fmt.Errorf("not a jenkins build url: %s", buildURL)
	}

	rest := parts[:len(parts)-1]
	// Skip any leading prefix (reverse proxies mount Jenkins under a path)
	// up to the first "job" segment.
	for len(rest) > 0 && rest[0] != "job" {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return "", 0, fmt.Errorf("not a jenkins build url: %s", buildURL)
	}

	var segments []string
	for i := 0; i < len(rest); i += 2 {
		if rest[i] != "job" || i+1 >= len(rest) {
			return "", 0, fmt.Errorf("not a jenkins build url: %s", buildURL)
		}
		seg, err := url.PathUnescape(rest[i+1])
		if err != nil {
			seg = rest[i+1]
		}
		segments = append(segments, seg)
	}
	return strings.Join(segments, "/"), number, nil
}

// GetBuildInfo fetches a build's api/json document.
func (c *Client) GetBuildInfo(ctx context.Context, jobName string, buildNumber int) (*BuildInfo, error) {
	body, err := c.get(ctx, c.BuildURL(jobName, buildNumber)+"/api/json")
	if err != nil {
		return nil, err
	}
	var info BuildInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode build info: %w", err)
	}
	return &info, nil
}

// GetConsole fetches a build's full console text.
func (c *Client) GetConsole(ctx context.Context, jobName string, buildNumber int) (string, error) {
	body, err := c.get(ctx, c.BuildURL(jobName, buildNumber)+"/consoleText")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetTestReport fetches a build's test report. Builds that published no
// report return (nil, nil) rather than an error.
func (c *Client) GetTestReport(ctx context.Context, jobName string, buildNumber int) (*TestReport, error) {
	body, err := c.get(ctx, c.BuildURL(jobName, buildNumber)+"/testReport/api/json")
	if errors.Is(err, ErrNotFound) {
		c.log.WithField("job", jobName).Debug("build has no test report")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var report TestReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("decode test report: %w", err)
	}
	return &report, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jenkins request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jenkins returned %d for %s", resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read jenkins response: %w", err)
	}
	return body, nil
}
