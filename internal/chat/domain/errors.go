package domain

import "errors"

var (
	// ErrNotConnected emit while socket is down
	ErrNotConnected = errors.New("chat socket not connected")
	// ErrDisconnected operation aborted by Disconnect
	ErrDisconnected = errors.New("chat socket disconnected")
	// ErrReconnectExhausted all reconnect attempts failed
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrUploadTimeout no file_upload_response in time
	ErrUploadTimeout = errors.New("file upload timed out")
	// ErrUploadRejected server answered the upload with success=false
	ErrUploadRejected = errors.New("file upload rejected")
	// ErrPermissionDenied local permission matrix forbids the action
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNoThread action needs a conversation or group id
	ErrNoThread = errors.New("conversation or group id required")
	// ErrUnknownThread id is not in the local list
	ErrUnknownThread = errors.New("unknown conversation or group")
	// ErrUnknownMessage message id is not in the local store
	ErrUnknownMessage = errors.New("unknown message")
)
