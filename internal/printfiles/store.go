package printfiles

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

// DefaultTimeout bounds dialing the FTPS server.
const DefaultTimeout = 10 * time.Second

// Logger is the logging surface the store needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Options configures a Store.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	// TLSInsecure skips certificate verification (printers use self-signed certificates).
	TLSInsecure bool

	Timeout time.Duration
	Logger  Logger
}

// session is one logged-in FTPS connection.
type session interface {
	Exists(path string) (bool, error)
	Fetch(path string) ([]byte, error)
	Close() error
}

// Store looks up and downloads print files over implicit FTPS.
//
// Thread Safety: safe for concurrent use. The most recently downloaded
// archive is cached so the preview and the weight cost one download.
type Store struct {
	opts   Options
	logger Logger
	dial   func(ctx context.Context) (session, error)

	mu         sync.Mutex
	cachedPath string
	cachedData []byte
}

// NewStore creates a store. Connections are opened per lookup.
func NewStore(opts Options) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Store{opts: opts, logger: logger}
	s.dial = s.dialFTPS
	return s
}

// Locate returns the path of the job's file, trying the upload cache first.
// It returns ErrNotFound when neither location has it.
func (s *Store) Locate(ctx context.Context, subtask string) (string, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	for _, p := range CandidatePaths(subtask) {
		ok, err := sess.Exists(p)
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", p, err)
		}
		if ok {
			s.logger.Info("found print file", "path", p)
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s%s", ErrNotFound, subtask, fileExtension)
}

// Thumbnail returns the plate preview PNG of the file at path.
func (s *Store) Thumbnail(ctx context.Context, path string) ([]byte, error) {
	data, err := s.archive(ctx, path)
	if err != nil {
		return nil, err
	}
	return ThumbnailFromArchive(data, path)
}

// Weight returns the filament weight in grams, as text, of the file at path.
func (s *Store) Weight(ctx context.Context, path string) (string, error) {
	data, err := s.archive(ctx, path)
	if err != nil {
		return "", err
	}
	return WeightFromArchive(data)
}

// archive downloads the file at path, or returns the cached copy.
func (s *Store) archive(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	if s.cachedPath == path && s.cachedData != nil {
		data := s.cachedData
		s.mu.Unlock()
		return data, nil
	}
	s.mu.Unlock()

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	s.logger.Debug("downloading print file", "path", path)
	data, err := sess.Fetch(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isUnavailable(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("downloading %s: %w", path, err)
	}

	s.mu.Lock()
	s.cachedPath, s.cachedData = path, data
	s.mu.Unlock()
	return data, nil
}

// connect dials and ties the session's lifetime to ctx.
func (s *Store) connect(ctx context.Context) (session, error) {
	sess, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		//nolint:errcheck // Aborting a transfer on cancellation
		sess.Close()
	})
	return &boundSession{session: sess, stop: stop}, nil
}

type boundSession struct {
	session
	stop func() bool
	once sync.Once
}

func (b *boundSession) Close() error {
	var err error
	b.once.Do(func() {
		if b.stop() {
			err = b.session.Close()
		}
	})
	return err
}

func (s *Store) dialFTPS(ctx context.Context) (session, error) {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	tlsConfig := &tls.Config{
		//nolint:gosec // Printers present self-signed certificates
		InsecureSkipVerify: s.opts.TLSInsecure,
		MinVersion:         tls.VersionTLS12,
		ServerName:         s.opts.Host,
		// The data channel must resume the control channel's TLS session.
		ClientSessionCache: tls.NewLRUClientSessionCache(0),
	}

	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(s.opts.Timeout),
		ftp.DialWithTLS(tlsConfig),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if err := conn.Login(s.opts.Username, s.opts.Password); err != nil {
		//nolint:errcheck // Best-effort cleanup after failed login
		conn.Quit()
		return nil, fmt.Errorf("logging in to %s: %w", addr, err)
	}
	return &ftpSession{conn: conn}, nil
}

// ftpSession adapts *ftp.ServerConn.
type ftpSession struct {
	conn *ftp.ServerConn
}

func (f *ftpSession) Exists(path string) (bool, error) {
	_, err := f.conn.FileSize(path)
	if err == nil {
		return true, nil
	}
	if isUnavailable(err) {
		return false, nil
	}
	return false, err
}

func (f *ftpSession) Fetch(path string) ([]byte, error) {
	resp, err := f.conn.Retr(path)
	if err != nil {
		return nil, err
	}
	defer resp.Close()
	return io.ReadAll(resp)
}

func (f *ftpSession) Close() error {
	return f.conn.Quit()
}

// isUnavailable reports whether err is the server's "file unavailable" reply.
func isUnavailable(err error) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable
}
