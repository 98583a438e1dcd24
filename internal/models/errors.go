package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrStaleStatus — запись уже не в ожидаемом статусе (её изменил кто-то другой)
	ErrStaleStatus = errors.New("stale status")
)
