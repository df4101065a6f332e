package logging

import (
	"log/slog"
)

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

func SessionKey(key string) slog.Attr {
	return slog.String("session", key)
}

func ConnID(id string) slog.Attr {
	return slog.String("conn", id)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}
