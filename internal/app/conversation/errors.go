package conversation

import (
	"fmt"

	"github.com/PabloGalante/farum-chat/internal/domain"
)

// UnsavedReplyError is returned by Ask when the completion was produced but
// the prompt/reply pair could not be persisted. The cache is left untouched;
// Reply holds the generated text for callers that still want to show it.
type UnsavedReplyError struct {
	SessionID domain.SessionID
	Reply     string
	Err       error
}

func (e *UnsavedReplyError) Error() string {
	return fmt.Sprintf("session %s: reply not saved: %v", e.SessionID, e.Err)
}

func (e *UnsavedReplyError) Unwrap() error {
	return e.Err
}
