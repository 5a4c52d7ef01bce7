package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups the non-nil errors under "errors".
// Returns an empty Attr when every error is nil.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records err under "error". Returns an empty Attr for nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func UserID(id any) slog.Attr { return optional("user_id", id) }

func RequestID(id any) slog.Attr { return optional("request_id", id) }

func SubscriptionID(id any) slog.Attr { return optional("subscription_id", id) }

func PlanID(id any) slog.Attr { return optional("plan_id", id) }

func PlanVersionID(id any) slog.Attr { return optional("plan_version_id", id) }

// ProviderSubscriptionID records the billing provider's subscription reference.
func ProviderSubscriptionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("provider_subscription_id", id)
}

func EventID(id string) slog.Attr { return slog.String("event_id", id) }

func EventType(eventType string) slog.Attr { return slog.String("event_type", eventType) }

func ScheduleID(id any) slog.Attr { return optional("schedule_id", id) }

func Status(status string) slog.Attr { return slog.String("status", status) }

func Component(name string) slog.Attr { return slog.String("component", name) }

func Duration(d any) slog.Attr { return slog.Any("duration", d) }

func optional(key string, v any) slog.Attr {
	if v == nil {
		return slog.Attr{}
	}
	return slog.Any(key, v)
}
