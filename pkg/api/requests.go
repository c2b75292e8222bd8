package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FlexibleID decodes from a JSON number or a numeric string
type FlexibleID int64

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}

	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: must be an integer", data)
	}
	*id = FlexibleID(v)
	return nil
}

type generateRequest struct {
	AccountIDs []FlexibleID `json:"account_ids" validate:"required,min=1,dive,gt=0"`
	StartDate  string       `json:"start_date" validate:"required,datetime=2006-01-02"`
}

func (r generateRequest) accountIDs() []int64 {
	ids := make([]int64, len(r.AccountIDs))
	for i, id := range r.AccountIDs {
		ids[i] = int64(id)
	}
	return ids
}

type batchStatusRequest struct {
	IsDraft *bool `json:"is_draft" validate:"required"`
}

// FieldError describes one failed validation rule
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// validationError converts a decode or validation failure into a 400 response
func validationError(err error) *Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{Field: fe.Namespace(), Rule: fe.Tag(), Param: fe.Param()})
		}
		return &Error{Status: http.StatusBadRequest, Code: "validation_failed", Message: "request validation failed", Details: details}
	}
	return &Error{Status: http.StatusBadRequest, Code: "invalid_request", Message: err.Error()}
}

// parseIDs reads repeated or comma-separated integer query values
func parseIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid accountId %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
