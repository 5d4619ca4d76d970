package irma

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/irmachat/internal/errs"
	"github.com/and161185/irmachat/internal/model"
)

// StatusStream reads session status updates from a statusevents response body.
// It is not safe for concurrent Next calls; Close may race with Next to unblock it.
type StatusStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	log    *zap.Logger
	done   bool
}

func newStatusStream(body io.ReadCloser, log *zap.Logger) *StatusStream {
	return &StatusStream{body: body, reader: bufio.NewReader(body), log: log}
}

// Next returns the next status, or io.EOF when the server ends the stream.
func (s *StatusStream) Next() (model.SessionStatus, error) {
	for !s.done {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("read status events: %w", err)
			}
			s.done = true
		}
		status, ok, perr := ParseStatusLine(line)
		if perr != nil {
			s.log.Warn("unparseable status event", zap.String("line", strings.TrimSpace(line)))
			return "", perr
		}
		if ok {
			return status, nil
		}
	}
	return "", io.EOF
}

// Close releases the response body.
func (s *StatusStream) Close() error { return s.body.Close() }

// ParseStatusLine maps one event-stream line to a status. Blank, comment, id and
// retry lines report ok=false. Any "event:" line means the stream opened and maps
// to INITIALIZED; "data:" values are trimmed of whitespace and quotes.
func ParseStatusLine(line string) (status model.SessionStatus, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false, nil
	}
	field, value, found := strings.Cut(line, ":")
	if !found {
		return "", false, fmt.Errorf("%w: %q", errs.ErrStatusParse, line)
	}
	switch field {
	case "event":
		return model.StatusInitialized, true, nil
	case "data":
		v := strings.Trim(strings.TrimSpace(value), `"`)
		parsed, perr := model.ParseSessionStatus(strings.TrimSpace(v))
		if perr != nil {
			return "", false, perr
		}
		return parsed, true, nil
	case "id", "retry":
		return "", false, nil
	}
	return "", false, fmt.Errorf("%w: %q", errs.ErrStatusParse, line)
}
