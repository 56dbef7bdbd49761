package dto

// Response is the envelope every JSON endpoint returns
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo describes a failed request
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Details   any                `json:"details,omitempty"`
	Fields    []ValidationDetail `json:"fields,omitempty"`
}

// ValidationDetail names a field that failed binding validation
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta carries list metadata
type Meta struct {
	Total int `json:"total"`
}

// InsufficientInventoryDetails is the details payload of INSUFFICIENT_INVENTORY
type InsufficientInventoryDetails struct {
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewListResponse creates a success response for a list, with its length in meta
func NewListResponse[T any](items []T) Response {
	if items == nil {
		items = []T{}
	}
	return Response{Success: true, Data: items, Meta: &Meta{Total: len(items)}}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	}
}

// NewErrorResponseWithRequestID creates an error response tagged with the request id
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	resp := NewErrorResponse(code, message)
	resp.Error.RequestID = requestID
	return resp
}

// NewErrorResponseWithDetails creates an error response carrying a structured details payload
func NewErrorResponseWithDetails(code, message, requestID string, details any) Response {
	resp := NewErrorResponseWithRequestID(code, message, requestID)
	resp.Error.Details = details
	return resp
}

// NewValidationErrorResponse creates a VALIDATION_ERROR response listing the failed fields
func NewValidationErrorResponse(message, requestID string, fields []ValidationDetail) Response {
	resp := NewErrorResponseWithRequestID(ErrCodeValidation, message, requestID)
	resp.Error.Fields = fields
	return resp
}

// IDRequest binds an :id path parameter
type IDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}
