package api

import "github.com/bitmark-inc/covid19-uk/store"

var (
	errorMessageMap = map[int64]string{
		999: "internal server error",

		1010: "invalid parameters",

		1400: store.ErrDatasetNotFound.Error(),
		1401: "tables are not prepared yet",
	}

	errorInternalServer = errorJSON(999)

	errorInvalidParameters = errorJSON(1010)

	errorDatasetNotFound = errorJSON(1400)
	errorNotReady        = errorJSON(1401)
)

type ErrorResponse struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// errorJSON converts an error code to a standardized error object
func errorJSON(code int64) ErrorResponse {
	var message string
	if msg, ok := errorMessageMap[code]; ok {
		message = msg
	} else {
		message = "unknown"
	}

	return ErrorResponse{
		Code:    code,
		Message: message,
	}
}
