package log

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// Log absolutely nothing
	LOGLEVEL_NONE int = iota
	// Log situations that are not expected to happen and
	// are difficult to handle (e.g. a poll error that stops the broker)
	LOGLEVEL_ERRORS
	// Log non-critical situations that might happen, but shouldn't (e.g. a malformed frame from a peer)
	LOGLEVEL_WARNINGS
	// Log situations that are expected, but important for the operation
	LOGLEVEL_INFO
	// Log everything
	LOGLEVEL_DEBUG
)

const timeLayout = "2006/01/02 15:04:05.000000"

var (
	mx       sync.RWMutex
	logger   *zap.SugaredLogger
	loglevel int = LOGLEVEL_WARNINGS
)

func init() {
	logger = newDefaultLogger()
}

func newDefaultLogger() *zap.SugaredLogger {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.NameKey = "logger"

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(os.Stderr)), zapcore.DebugLevel)
	return zap.New(core).Named("lbbroker").Sugar()
}

// Set the global log level
func SetLoglevel(ll int) {
	mx.Lock()
	defer mx.Unlock()
	loglevel = ll
}

func Loglevel() int {
	mx.RLock()
	defer mx.RUnlock()
	return loglevel
}

// SetLogger replaces the zap logger all messages are written to. Filtering by level still
// happens according to SetLoglevel(); the zap logger should accept at least that level.
// A nil logger restores the default stderr logger.
func SetLogger(l *zap.Logger) {
	mx.Lock()
	defer mx.Unlock()

	if l == nil {
		logger = newDefaultLogger()
		return
	}
	logger = l.Sugar()
}

// Performance-enhancer: Prevent unnecessary log calls
func IsLoggingEnabled(ll int) bool {
	mx.RLock()
	defer mx.RUnlock()
	return loglevel >= ll
}

// LB_log writes what (formatted like fmt.Println) if ll is enabled.
func LB_log(ll int, what ...interface{}) {
	mx.RLock()
	l, enabled := logger, ll <= loglevel && ll > LOGLEVEL_NONE
	mx.RUnlock()

	if !enabled {
		return
	}

	msg := strings.TrimSuffix(fmt.Sprintln(what...), "\n")

	switch ll {
	case LOGLEVEL_ERRORS:
		l.Error(msg)
	case LOGLEVEL_WARNINGS:
		l.Warn(msg)
	case LOGLEVEL_INFO:
		l.Info(msg)
	default:
		l.Debug(msg)
	}
}

// Flush any buffered log output.
func Sync() error {
	mx.RLock()
	defer mx.RUnlock()
	return logger.Sync()
}

func transformRuneToPrintable(r rune) rune {
	if r >= 32 && r < 127 {
		return r
	}
	return '.'
}

// Printable returns b with every byte outside of printable ASCII replaced by '.'. Use it for
// logging binary frames such as ZeroMQ identities.
func Printable(b []byte) string {
	return strings.Map(transformRuneToPrintable, string(b))
}

func mapToChar(i int) byte {
	i = i % (10 + 26 + 26)
	if i < 10 {
		return byte('0' + i)
	} else if i < 10+26 {
		return byte('A' + i - 10)
	} else if i < 10+26+26 {
		return byte('a' + i - 10 - 26)
	}
	return byte('_')
}

// Returns a short random alphanumeric string.
// This is used to tag dispatches in order to track them across log lines.
func GetLogToken() string {
	str := make([]byte, 6)
	for i := range str {
		str[i] = mapToChar(rand.Int())
	}
	return string(str)
}
