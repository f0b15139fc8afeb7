package response

// Response is the JSON envelope of every API reply.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

const (
	statusOk    = "OK"
	statusError = "Error"
)

func Ok(data any) Response {
	return Response{
		Status: statusOk,
		Data:   data,
	}
}

func Error(msg string) Response {
	return Response{
		Status: statusError,
		Error:  msg,
	}
}
