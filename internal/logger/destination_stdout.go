package logger

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/gookit/color"
	"golang.org/x/term"
)

type destinationStdout struct {
	out      io.Writer
	useColor bool
	buf      bytes.Buffer
}

func newDestinationStdout(out io.Writer) destination {
	useColor := false
	if out == nil {
		out = os.Stdout
		useColor = term.IsTerminal(int(os.Stdout.Fd()))
	}

	return &destinationStdout{
		out:      out,
		useColor: useColor,
	}
}

func (d *destinationStdout) log(t time.Time, level Level, format string, args ...interface{}) {
	d.buf.Reset()

	if d.useColor {
		var tbuf bytes.Buffer
		writeTime(&tbuf, t)
		d.buf.WriteString(color.RenderString(color.Gray.Code(), tbuf.String()))
		d.buf.WriteString(color.RenderString(levelColor(level).Code(), levelLabel(level)))
	} else {
		writeTime(&d.buf, t)
		d.buf.WriteString(levelLabel(level))
	}
	d.buf.WriteByte(' ')
	writeContent(&d.buf, format, args)

	d.out.Write(d.buf.Bytes()) //nolint:errcheck
}

func levelColor(level Level) color.Color {
	switch level {
	case Debug:
		return color.Gray
	case Info:
		return color.Green
	case Warn:
		return color.Yellow
	default:
		return color.Red
	}
}

func (d *destinationStdout) close() {
}
