package backend

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nao1215/campusshield/internal/model"
)

// Input limits.
const (
	MaxSenderLength  = 255
	MaxSubjectLength = 1000
	MaxBodyLength    = 50000
)

// ErrInvalidInput is returned for scan requests the backend refuses.
var ErrInvalidInput = errors.New("invalid scan request")

var senderPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// scanInput is the request body. Pointers distinguish missing fields from
// empty ones.
type scanInput struct {
	Sender  *string  `json:"sender"`
	Subject *string  `json:"subject"`
	Body    *string  `json:"body"`
	Links   []string `json:"links"`
}

// validate checks and trims the request fields.
func validate(in scanInput) (model.ScanRequest, error) {
	fields := []struct {
		name  string
		value *string
	}{
		{"sender", in.Sender},
		{"subject", in.Subject},
		{"body", in.Body},
	}
	for _, f := range fields {
		if f.value == nil {
			return model.ScanRequest{}, fmt.Errorf("%w: Missing required field: %s", ErrInvalidInput, f.name)
		}
	}

	req := model.ScanRequest{
		Sender:  strings.TrimSpace(*in.Sender),
		Subject: strings.TrimSpace(*in.Subject),
		Body:    strings.TrimSpace(*in.Body),
		Links:   in.Links,
	}
	if req.Links == nil {
		req.Links = []string{}
	}

	switch {
	case req.Sender == "" || req.Subject == "" || req.Body == "":
		return model.ScanRequest{}, fmt.Errorf("%w: All fields (sender, subject, body) must be non-empty", ErrInvalidInput)
	case len(req.Sender) > MaxSenderLength:
		return model.ScanRequest{}, fmt.Errorf("%w: Sender field too long (max %d chars)", ErrInvalidInput, MaxSenderLength)
	case len(req.Subject) > MaxSubjectLength:
		return model.ScanRequest{}, fmt.Errorf("%w: Subject field too long (max %d chars)", ErrInvalidInput, MaxSubjectLength)
	case len(req.Body) > MaxBodyLength:
		return model.ScanRequest{}, fmt.Errorf("%w: Body field too long (max %d chars)", ErrInvalidInput, MaxBodyLength)
	case !senderPattern.MatchString(req.Sender):
		return model.ScanRequest{}, fmt.Errorf("%w: Invalid sender email format", ErrInvalidInput)
	}
	return req, nil
}

// publicMessage strips the sentinel prefix from a validation error.
func publicMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
}
