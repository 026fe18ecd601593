package errors

import stdErrors "errors"

// Dump flattens an error chain for structured logging.
type DumpInfo struct {
	Code       Code
	TopMessage string
	Chain      []string
}

func Dump(err error) DumpInfo {
	info := DumpInfo{Code: CodeOf(err)}
	if err == nil {
		return info
	}
	info.TopMessage = err.Error()
	for cursor := err; cursor != nil; cursor = stdErrors.Unwrap(cursor) {
		info.Chain = append(info.Chain, cursor.Error())
	}
	return info
}
