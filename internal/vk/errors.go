package vk

import "errors"

var (
	// ErrGroupNotFound means the identifier did not resolve to a community.
	ErrGroupNotFound = errors.New("vk: group not found")

	// ErrPermissionDenied means the token may not access the resource,
	// for example a wall or video section disabled for the community.
	ErrPermissionDenied = errors.New("vk: permission denied")

	// ErrUnavailable covers transport failures, non-200 statuses and
	// responses that cannot be decoded.
	ErrUnavailable = errors.New("vk: api unavailable")
)
