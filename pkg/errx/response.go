package errx

// Response is the JSON body written for a failed request.
type Response struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code"`
	Type      string                 `json:"type"`
	Status    int                    `json:"status"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Fields    FieldErrors            `json:"fields,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ToResponse converts the error to its wire representation.
func (e *Error) ToResponse(requestID string) Response {
	r := Response{
		Success:   false,
		Error:     e.Message,
		Message:   e.Message,
		Code:      e.Code,
		Type:      string(e.Type),
		Status:    e.HTTPStatus,
		Fields:    e.Fields,
		RequestID: requestID,
	}
	if len(e.Details) > 0 {
		r.Details = e.Details
	}
	return r
}
