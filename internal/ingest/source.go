package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
)

// Source yields one CSV export.
type Source interface {
	// Name identifies the source in import_runs.
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return f.Path }

func (f FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	return file, nil
}

// FTPSource downloads an export from an FTP server, retrying dial and
// transfer failures with exponential backoff.
type FTPSource struct {
	Host     string // host:port
	Path     string
	User     string
	Password string
	Timeout  time.Duration
	// MaxElapsed bounds the total retry time; zero means two minutes.
	MaxElapsed time.Duration
}

// ParseFTPURL builds an FTPSource from ftp://[user[:pass]@]host[:port]/path.
// Without credentials it logs in anonymously.
func ParseFTPURL(raw string) (*FTPSource, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse ftp url: %w", err)
	}
	if u.Scheme != "ftp" || u.Host == "" || u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return nil, fmt.Errorf("invalid ftp url %q", raw)
	}
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}
	src := &FTPSource{Host: host, Path: u.Path, User: "anonymous", Password: "anonymous"}
	if u.User != nil {
		src.User = u.User.Username()
		if p, ok := u.User.Password(); ok {
			src.Password = p
		}
	}
	return src, nil
}

func (f *FTPSource) Name() string {
	return "ftp://" + f.Host + f.Path
}

func (f *FTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	var body []byte
	operation := func() error {
		data, err := f.fetch(ctx)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.MaxElapsed
	if bo.MaxElapsedTime == 0 {
		bo.MaxElapsedTime = 2 * time.Minute
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		log.Printf("ingest: ftp %s failed, retrying in %s: %v", f.Name(), wait.Round(time.Millisecond), err)
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *FTPSource) fetch(ctx context.Context) ([]byte, error) {
	timeout := f.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	conn, err := ftp.Dial(f.Host, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(f.User, f.Password); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("ftp login: %w", err))
	}

	resp, err := conn.Retr(f.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr %s: %w", f.Path, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("ftp read: %w", err)
	}
	return data, nil
}

// SourceFor returns an FTPSource for ftp:// locations and a FileSource
// otherwise.
func SourceFor(location string) (Source, error) {
	if strings.HasPrefix(location, "ftp://") {
		src, err := ParseFTPURL(location)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return FileSource{Path: location}, nil
}
