package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/crytic/forkdb/logging/colors"
	"github.com/rs/zerolog"
)

// GlobalLogger describes a Logger that is disabled by default and is instantiated when the CLI starts. Each package
// should create its own sub-logger so that log output can be filtered by the module that produced it.
var GlobalLogger = NewLogger(zerolog.Disabled)

// Logger describes a custom logging object that can log events to any arbitrary channel in structured, unstructured,
// or colorized unstructured format.
type Logger struct {
	// level describes the log level
	level zerolog.Level

	// context describes the key-value pairs attached by NewSubLogger, oldest first. They are re-applied whenever the
	// writers change so that sub-loggers survive writer updates on the logger that created them.
	context [][2]string

	// structuredLogger describes a logger that outputs JSON to every writer in structuredWriters
	structuredLogger zerolog.Logger

	// structuredWriters describes the writers that receive JSON output
	structuredWriters []io.Writer

	// unstructuredLogger describes a logger that outputs uncolored, human-readable text to unstructuredWriters
	unstructuredLogger zerolog.Logger

	// unstructuredWriters describes the writers that receive uncolored, human-readable text
	unstructuredWriters []io.Writer

	// unstructuredColorLogger describes a logger that outputs colorized text to unstructuredColorWriters
	unstructuredColorLogger zerolog.Logger

	// unstructuredColorWriters describes the writers that receive colorized text
	unstructuredColorWriters []io.Writer
}

// LogFormat describes what format to log in
type LogFormat string

const (
	// STRUCTURED describes that logging should be done in structured JSON format
	STRUCTURED LogFormat = "structured"
	// UNSTRUCTURED describes that logging should be done in an unstructured format
	UNSTRUCTURED LogFormat = "unstructured"
)

// StructuredLogInfo describes a key-value mapping that can be used to log structured data
type StructuredLogInfo map[string]any

// NewLogger will create a new Logger object with a specific log level. The Logger does not output anything until a
// writer is added with AddWriter.
func NewLogger(level zerolog.Level) *Logger {
	logger := &Logger{
		level: level,
	}
	logger.rebuild()
	return logger
}

// NewSubLogger will create a new Logger with unique context in the form of a key-value pair. The expected use of this
// function is for each package to have its own logger so that logs are "grep-able" based on some key.
func (l *Logger) NewSubLogger(key string, value string) *Logger {
	context := make([][2]string, len(l.context), len(l.context)+1)
	copy(context, l.context)
	subLogger := &Logger{
		level:                    l.level,
		context:                  append(context, [2]string{key, value}),
		structuredWriters:        l.structuredWriters,
		unstructuredWriters:      l.unstructuredWriters,
		unstructuredColorWriters: l.unstructuredColorWriters,
	}
	subLogger.rebuild()
	return subLogger
}

// AddWriter will add a writer to which log output will be sent, in the provided format. If colored is set and the
// format is UNSTRUCTURED, ANSI colors are kept in the output. Adding a writer twice is a no-op.
func (l *Logger) AddWriter(writer io.Writer, format LogFormat, colored bool) {
	writers := l.writerList(format, colored)
	for _, w := range *writers {
		if w == writer {
			return
		}
	}
	*writers = append(*writers, writer)
	l.rebuild()
}

// RemoveWriter will remove a writer previously added with the same format and color setting. If the writer does not
// exist, this function is a no-op.
func (l *Logger) RemoveWriter(writer io.Writer, format LogFormat, colored bool) {
	writers := l.writerList(format, colored)
	for i, w := range *writers {
		if w == writer {
			remaining := make([]io.Writer, 0, len(*writers)-1)
			remaining = append(remaining, (*writers)[:i]...)
			*writers = append(remaining, (*writers)[i+1:]...)
			l.rebuild()
			return
		}
	}
}

// writerList returns the writer slice that holds writers of the provided format and color setting.
func (l *Logger) writerList(format LogFormat, colored bool) *[]io.Writer {
	if format == STRUCTURED {
		return &l.structuredWriters
	}
	if colored {
		return &l.unstructuredColorWriters
	}
	return &l.unstructuredWriters
}

// rebuild recreates the underlying zerolog loggers from the current writers, level, and context.
func (l *Logger) rebuild() {
	l.structuredLogger = l.newZerologLogger(l.structuredWriters, func(w io.Writer) io.Writer {
		return w
	}, true)
	l.unstructuredLogger = l.newZerologLogger(l.unstructuredWriters, func(w io.Writer) io.Writer {
		return setupDefaultFormatting(zerolog.ConsoleWriter{Out: w, NoColor: true}, l.level)
	}, false)
	l.unstructuredColorLogger = l.newZerologLogger(l.unstructuredColorWriters, func(w io.Writer) io.Writer {
		return setupDefaultFormatting(zerolog.ConsoleWriter{Out: w, NoColor: !colors.Enabled()}, l.level)
	}, false)
}

// newZerologLogger creates a zerolog.Logger writing to all writers, each wrapped by wrap. A logger with no writers
// is disabled.
func (l *Logger) newZerologLogger(writers []io.Writer, wrap func(io.Writer) io.Writer, timestamp bool) zerolog.Logger {
	if len(writers) == 0 {
		return zerolog.Nop()
	}
	wrapped := make([]io.Writer, len(writers))
	for i, w := range writers {
		wrapped[i] = wrap(w)
	}
	ctx := zerolog.New(zerolog.MultiLevelWriter(wrapped...)).Level(l.level).With()
	if timestamp {
		ctx = ctx.Timestamp()
	}
	for _, kv := range l.context {
		ctx = ctx.Str(kv[0], kv[1])
	}
	return ctx.Logger()
}

// Level will get the log level of the Logger
func (l *Logger) Level() zerolog.Level {
	return l.level
}

// SetLevel will update the log level of the Logger
func (l *Logger) SetLevel(level zerolog.Level) {
	l.level = level
	l.rebuild()
}

// Trace is a wrapper function that will log a trace event
func (l *Logger) Trace(args ...any) {
	l.log(zerolog.TraceLevel, args...)
}

// Debug is a wrapper function that will log a debug event
func (l *Logger) Debug(args ...any) {
	l.log(zerolog.DebugLevel, args...)
}

// Info is a wrapper function that will log an info event
func (l *Logger) Info(args ...any) {
	l.log(zerolog.InfoLevel, args...)
}

// Warn is a wrapper function that will log a warning event
func (l *Logger) Warn(args ...any) {
	l.log(zerolog.WarnLevel, args...)
}

// Error is a wrapper function that will log an error event
func (l *Logger) Error(args ...any) {
	l.log(zerolog.ErrorLevel, args...)
}

// Panic is a wrapper function that will log a panic event and then panic
func (l *Logger) Panic(args ...any) {
	l.log(zerolog.PanicLevel, args...)
}

// log sends an event at the provided level to every configured logger. Panic events are written to every channel
// before the panic is raised.
func (l *Logger) log(level zerolog.Level, args ...any) {
	coloredMsg, plainMsg, err, info := buildMsgs(args...)
	debug := level == zerolog.PanicLevel || l.level <= zerolog.DebugLevel

	// Panic events are created at error level so that each channel is flushed before we panic ourselves
	eventLevel := level
	if level == zerolog.PanicLevel {
		eventLevel = zerolog.ErrorLevel
	}
	sends := []struct {
		logger *zerolog.Logger
		msg    string
	}{
		{&l.structuredLogger, plainMsg},
		{&l.unstructuredLogger, plainMsg},
		{&l.unstructuredColorLogger, coloredMsg},
	}
	for _, send := range sends {
		event := send.logger.WithLevel(eventLevel)
		chainError(event, err, debug)
		if info != nil {
			event.Any("info", info)
		}
		event.Msg(send.msg)
	}

	if level == zerolog.PanicLevel {
		if err != nil {
			panic(fmt.Sprintf("%s: %v", plainMsg, err))
		}
		panic(plainMsg)
	}
}

// buildMsgs describes a function that takes in a variadic list of arguments of any type and returns two strings and,
// optionally, an error and a StructuredLogInfo object. The first string will be a colorized-string that can be used for
// console logging while the second string will be a non-colorized one that can be used for file/structured logging.
func buildMsgs(args ...any) (string, string, error, StructuredLogInfo) {
	if len(args) == 0 {
		return "", "", nil, nil
	}

	colorCtx := colors.Reset
	coloredOutput := make([]string, 0)
	plainOutput := make([]string, 0)
	var info StructuredLogInfo
	var err error

	for _, arg := range args {
		switch t := arg.(type) {
		case colors.ColorFunc:
			// A color function switches the color context for the arguments that follow it
			colorCtx = t
		case StructuredLogInfo:
			// Only one structured log info can be provided for each log message
			info = t
		case error:
			// Only one error can be provided for each log message
			err = t
		default:
			coloredOutput = append(coloredOutput, colorCtx(t))
			plainOutput = append(plainOutput, fmt.Sprintf("%v", t))
		}
	}

	return strings.Join(coloredOutput, ""), strings.Join(plainOutput, ""), err, info
}

// chainError chains an error to a *zerolog.Event. If debug is true, then a stack trace is added as well.
func chainError(event *zerolog.Event, err error, debug bool) {
	// Even if err is nil, there will not be a panic here
	event.Err(err)
	if debug && err != nil {
		event.Stack()
	}
}

// setupDefaultFormatting will update a console writer's formatting to the forkdb standard
func setupDefaultFormatting(writer zerolog.ConsoleWriter, level zerolog.Level) zerolog.ConsoleWriter {
	// Get rid of the timestamp for console output
	writer.FormatTimestamp = func(i interface{}) string {
		return ""
	}

	// We will define a custom format for each level
	noColor := writer.NoColor
	writer.FormatLevel = func(i any) string {
		levelStr, _ := i.(string)
		parsed, err := zerolog.ParseLevel(levelStr)
		if err != nil {
			return levelStr
		}

		colorize := func(f colors.ColorFunc, s string) string {
			if noColor {
				return s
			}
			return f(s)
		}
		switch parsed {
		case zerolog.TraceLevel:
			return colorize(colors.CyanBold, zerolog.LevelTraceValue)
		case zerolog.DebugLevel:
			return colorize(colors.BlueBold, zerolog.LevelDebugValue)
		case zerolog.InfoLevel:
			return colorize(colors.GreenBold, colors.LEFT_ARROW)
		case zerolog.WarnLevel:
			return colorize(colors.YellowBold, zerolog.LevelWarnValue)
		case zerolog.ErrorLevel:
			return colorize(colors.RedBold, zerolog.LevelErrorValue)
		case zerolog.FatalLevel:
			return colorize(colors.RedBold, zerolog.LevelFatalValue)
		case zerolog.PanicLevel:
			return colorize(colors.RedBold, zerolog.LevelPanicValue)
		default:
			return levelStr
		}
	}

	// If we are above debug level, we want to get rid of the `module` component when logging to console
	if level > zerolog.DebugLevel {
		writer.FieldsExclude = []string{"module"}
	}

	return writer
}
