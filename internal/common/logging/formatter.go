package logging

import (
	"bytes"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// HeadingField marks an entry as a section heading, e.g., "Benchmarking 4 nodes".
const HeadingField = "heading"

// CommandLineFormatter prints only the message, prefixed for warnings and errors, so that operator
// output reads like a progress report rather than a structured log.
type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b bytes.Buffer
	if heading, ok := entry.Data[HeadingField].(bool); ok && heading {
		b.WriteString("\n")
	}
	switch entry.Level {
	case log.WarnLevel:
		b.WriteString("WARN: ")
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		b.WriteString("ERROR: ")
	}
	b.WriteString(entry.Message)
	if err, ok := entry.Data[log.ErrorKey].(error); ok && err != nil {
		b.WriteString(fmt.Sprintf("\n  Caused by: %s", err))
	}
	b.WriteString("\n")
	return b.Bytes(), nil
}

// Heading logs msg as a section heading on the given entry.
func Heading(logger *log.Entry, msg string) {
	logger.WithField(HeadingField, true).Info(msg)
}
