package feed

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/registry-cli/internal/resilience"
)

// Fetcher downloads bulk feed files from a registry FTP site.
type Fetcher struct {
	timeout time.Duration
	retry   resilience.RetryConfig
}

// NewFetcher creates a Fetcher. A zero timeout defaults to 30s.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("ftp", "fetch")
	return &Fetcher{
		timeout: timeout,
		retry:   retry,
	}
}

// Fetch downloads the file at the FTP URL into destDir and returns the local
// paths. A URL ending in "/" is treated as a directory: every entry matching
// pattern is downloaded. Transient failures retry with backoff.
func (f *Fetcher) Fetch(ctx context.Context, ftpURL, pattern, destDir string) ([]string, error) {
	host, remotePath, isDir, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "feed: create dest dir %s", destDir)
	}

	log := zap.L().With(zap.String("component", "feed.fetcher"), zap.String("host", host))

	var local []string
	err = resilience.Do(ctx, f.retry, func(ctx context.Context) error {
		conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "feed: ftp dial"))
		}
		defer conn.Quit()

		if err := conn.Login("anonymous", "anonymous@"); err != nil {
			return eris.Wrap(err, "feed: ftp login")
		}

		remote := []string{remotePath}
		if isDir {
			remote, err = listMatching(conn, remotePath, pattern)
			if err != nil {
				return err
			}
		}

		local = local[:0]
		for _, rp := range remote {
			dest := filepath.Join(destDir, path.Base(rp))
			if err := retrieveTo(conn, rp, dest); err != nil {
				return err
			}
			log.Info("feed file downloaded", zap.String("remote", rp), zap.String("local", dest))
			local = append(local, dest)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return local, nil
}

func listMatching(conn *ftp.ServerConn, dir, pattern string) ([]string, error) {
	entries, err := conn.List(dir)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "feed: ftp list %s", dir))
	}

	var matched []string
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		ok, err := path.Match(pattern, e.Name)
		if err != nil {
			return nil, eris.Wrapf(err, "feed: bad file pattern %q", pattern)
		}
		if ok {
			matched = append(matched, path.Join(dir, e.Name))
		}
	}
	if len(matched) == 0 {
		return nil, eris.Errorf("feed: no files matching %q under %s", pattern, dir)
	}
	return matched, nil
}

func retrieveTo(conn *ftp.ServerConn, remote, dest string) error {
	resp, err := conn.Retr(remote)
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "feed: ftp retrieve %s", remote))
	}
	defer resp.Close()

	file, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "feed: create %s", dest)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp); err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "feed: write %s", dest))
	}
	return nil
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host, remotePath string, isDir bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false, eris.Wrap(err, "feed: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", false, eris.Errorf("feed: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	remotePath = u.Path
	if remotePath == "" {
		return "", "", false, eris.New("feed: empty path in ftp url")
	}

	isDir = remotePath[len(remotePath)-1] == '/'
	if isDir {
		remotePath = path.Clean(remotePath)
	}
	return host, remotePath, isDir, nil
}
