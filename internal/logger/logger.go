package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rcsvlog/rcsv/internal/manager"
	"github.com/rcsvlog/rcsv/internal/remote"
	"github.com/rcsvlog/rcsv/internal/row"
)

// ErrNoFilename is returned by Log when no filename has been set.
var ErrNoFilename = errors.New("no log filename set")

// Options configures a Logger.
type Options struct {
	// Filename is the log file name or full path. Relative names are
	// resolved under DataDir.
	Filename string

	// DataDir is where relative filenames live (default: ~/Documents).
	DataDir string

	// Header lists the field names, excluding the timestamp.
	Header []string

	// LogTime prefixes every row with a timestamp (default: true).
	LogTime bool

	// LogMillis includes milliseconds in the timestamp (default: true).
	LogMillis bool

	// Precision is the number of decimals for floats (default: 2).
	Precision int

	// ToConsole mirrors every row line to Console.
	ToConsole bool

	// Console receives mirrored lines (default: os.Stdout).
	Console io.Writer

	// ServerURL is the collection endpoint. Empty means local only.
	ServerURL string

	// Remote configures the sender built from ServerURL.
	Remote remote.Options

	// Sender overrides the sender built from ServerURL.
	Sender remote.Sender

	// MaxBatchRows caps the rows per push; 0 sends everything at once.
	MaxBatchRows int

	// Manager tracks local and remote counts. Required.
	Manager *manager.Manager

	// Logger receives diagnostics (default: stderr with "[rcsv] " prefix).
	Logger *log.Logger

	// Clock supplies timestamps (default: time.Now).
	Clock func() time.Time
}

// DefaultOptions returns the defaults of a fresh logger.
func DefaultOptions() *Options {
	return &Options{
		DataDir:   DefaultDataDir(),
		LogTime:   true,
		LogMillis: true,
		Precision: 2,
		Console:   os.Stdout,
		Logger:    log.New(os.Stderr, "[rcsv] ", log.LstdFlags),
		Clock:     time.Now,
	}
}

// DefaultDataDir returns the user's Documents directory, or the working
// directory when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
		return "."
	}
	return filepath.Join(home, "Documents")
}

// FileStatus reports the sync state of one log file.
type FileStatus struct {
	Path     string
	Local    int
	Remote   int
	Buffered int
}

// Pending returns the rows not yet acknowledged by the server.
func (s FileStatus) Pending() int { return s.Local - s.Remote }

// SyncReport summarizes one SyncAll pass.
type SyncReport struct {
	Files    int
	RowsSent int
	Failed   int
}

// Logger is a CSV row logger with remote mirroring.
type Logger struct {
	mu sync.Mutex

	filename  string
	dataDir   string
	header    []string
	logTime   bool
	logMillis bool
	precision int
	toConsole bool
	console   io.Writer
	clock     func() time.Time

	serverURL    string
	remoteOpts   remote.Options
	sender       remote.Sender
	ownsSender   bool
	maxBatchRows int

	manager *manager.Manager
	logger  *log.Logger

	writing bool
	path    string

	updates map[string][]row.Row
	headers map[string][]string
}

// New creates a Logger. A nil opts uses DefaultOptions, which lacks a
// Manager and therefore fails.
func New(opts *Options) (*Logger, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Manager == nil {
		return nil, fmt.Errorf("manager cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[rcsv] ", log.LstdFlags)
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DataDir == "" {
		opts.DataDir = DefaultDataDir()
	}

	l := &Logger{
		filename:     opts.Filename,
		dataDir:      opts.DataDir,
		header:       append([]string(nil), opts.Header...),
		logTime:      opts.LogTime,
		logMillis:    opts.LogMillis,
		precision:    opts.Precision,
		toConsole:    opts.ToConsole,
		console:      opts.Console,
		clock:        opts.Clock,
		serverURL:    opts.ServerURL,
		remoteOpts:   opts.Remote,
		sender:       opts.Sender,
		maxBatchRows: opts.MaxBatchRows,
		manager:      opts.Manager,
		logger:       opts.Logger,
		updates:      make(map[string][]row.Row),
		headers:      make(map[string][]string),
	}
	return l, nil
}

// SetFilename sets the log file name or full path. Changing it closes the
// current file; the next Log opens the new one.
func (l *Logger) SetFilename(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if name == l.filename {
		return
	}
	l.filename = name
	l.writing = false
	l.path = ""
}

// Filename returns the configured filename.
func (l *Logger) Filename() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filename
}

// Path returns the absolute path of the configured file.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.absolutePath(l.filename)
}

// SetLogTime sets whether rows start with a timestamp. Ignored while
// writing.
func (l *Logger) SetLogTime(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writing {
		l.logger.Printf("logTime cannot change while writing; call Reset first")
		return
	}
	l.logTime = v
}

// LogTime reports whether rows start with a timestamp.
func (l *Logger) LogTime() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logTime
}

// SetLogMillis sets whether timestamps include milliseconds.
func (l *Logger) SetLogMillis(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logMillis = v
}

// SetPrecision sets the number of decimals for floats.
func (l *Logger) SetPrecision(p int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.precision = p
}

// SetToConsole sets whether row lines are mirrored to the console.
func (l *Logger) SetToConsole(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.toConsole = v
}

// SetHeader sets the header fields. Ignored while writing.
func (l *Logger) SetHeader(header []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writing {
		l.logger.Printf("header cannot change while writing; call Reset first")
		return
	}
	l.header = append([]string(nil), header...)
}

// Header returns a copy of the header fields.
func (l *Logger) Header() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.header...)
}

// SetServerURL sets the collection endpoint. An empty URL makes the logger
// local only.
func (l *Logger) SetServerURL(u string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if u == l.serverURL {
		return
	}
	l.serverURL = u
	if l.ownsSender && l.sender != nil {
		_ = l.sender.Close()
		l.sender = nil
		l.ownsSender = false
	}
}

// ServerURL returns the collection endpoint.
func (l *Logger) ServerURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.serverURL
}

// AbsolutePath resolves name the way the logger resolves its filename.
func (l *Logger) AbsolutePath(name string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.absolutePath(name)
}

func (l *Logger) absolutePath(name string) string {
	return ResolvePath(l.dataDir, name)
}

// ResolvePath returns the absolute path of a log file name: "~/" expands to
// the home directory and relative names are placed under dataDir.
func ResolvePath(dataDir, name string) string {
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "~"+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			name = filepath.Join(home, name[2:])
		}
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	abs, err := filepath.Abs(filepath.Join(dataDir, name))
	if err != nil {
		return filepath.Join(dataDir, name)
	}
	return abs
}

func (l *Logger) builder() *row.Builder {
	return &row.Builder{
		Header:    l.header,
		LogTime:   l.logTime,
		LogMillis: l.logMillis,
		Precision: l.precision,
		Clock:     l.clock,
	}
}

// remoteSender returns the active sender, building one from the server URL
// on first use. A nil sender means the logger is local only.
func (l *Logger) remoteSender() remote.Sender {
	if l.sender != nil {
		return l.sender
	}
	if l.serverURL == "" {
		return nil
	}
	s, err := remote.New(l.serverURL, l.remoteOpts)
	if err != nil {
		l.logger.Printf("WARNING: remote sync disabled: %v", err)
		return nil
	}
	l.sender = s
	l.ownsSender = true
	return s
}

// Status returns the sync state of every tracked file.
func (l *Logger) Status() []FileStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []FileStatus
	for _, p := range l.manager.Paths() {
		c, _ := l.manager.Get(p)
		out = append(out, FileStatus{
			Path:     p,
			Local:    c.Local,
			Remote:   c.Remote,
			Buffered: len(l.updates[p]),
		})
	}
	return out
}

// Pending returns the buffered rows for path (resolved like the filename).
func (l *Logger) Pending(path string) []row.Row {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows := l.updates[l.absolutePath(path)]
	return append([]row.Row(nil), rows...)
}

// Reset closes the current file: the header and timestamp settings become
// changeable again and the manager is persisted. Buffered rows are kept.
func (l *Logger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writing = false
	l.path = ""
	return l.manager.Save()
}

// ResetFile forgets the counts and buffered rows of path. The file itself is
// left untouched; its rows are tracked again, as unsynced, on next use.
func (l *Logger) ResetFile(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	abs := l.absolutePath(path)
	l.manager.Reset(abs)
	delete(l.updates, abs)
	delete(l.headers, abs)
	if abs == l.path {
		l.writing = false
		l.path = ""
	}
	return l.manager.Save()
}

// Close resets the logger and releases a sender it created itself.
func (l *Logger) Close() error {
	err := l.Reset()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ownsSender && l.sender != nil {
		if cerr := l.sender.Close(); cerr != nil && err == nil {
			err = cerr
		}
		l.sender = nil
		l.ownsSender = false
	}
	return err
}

func sortedKeys(m map[string][]row.Row) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
