package bus

import (
	"errors"
	"fmt"

	"github.com/nao1215/campusshield/internal/model"
)

var (
	// ErrUnreachable is returned when the destination endpoint does not exist,
	// e.g. the page agent was never activated in the document.
	ErrUnreachable = fmt.Errorf("%w: receiving end does not exist", model.ErrConnectivity)

	// ErrChannelClosed is returned when the destination was torn down before
	// it replied.
	ErrChannelClosed = fmt.Errorf("%w: message channel closed before a response was received", model.ErrConnectivity)

	// ErrAlreadyReplied is returned when a Replier is used a second time.
	ErrAlreadyReplied = errors.New("reply already sent")
)
