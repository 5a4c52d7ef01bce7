package api

import (
	"net/http"

	"github.com/linkshelf/linkshelf/binder"
	"github.com/linkshelf/linkshelf/handler"
	"github.com/linkshelf/linkshelf/pkg/notifications"
)

const maxNotificationPage = 100

type listNotificationsRequest struct {
	Limit  int      `query:"limit"`
	Offset int      `query:"offset"`
	Unread bool     `query:"unread"`
	Kinds  []string `query:"kind"`
}

func (s *server) listNotifications() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, req listNotificationsRequest) handler.Response {
		userID := actor(ctx).UserID.String()
		opts := notifications.ListOptions{
			Limit:      req.Limit,
			Offset:     max(req.Offset, 0),
			OnlyUnread: req.Unread,
		}
		if opts.Limit <= 0 || opts.Limit > maxNotificationPage {
			opts.Limit = maxNotificationPage
		}
		for _, k := range req.Kinds {
			opts.Kinds = append(opts.Kinds, notifications.Kind(k))
		}

		list, err := s.Notifications.List(ctx, userID, opts)
		if err != nil {
			return s.fail(ctx, err)
		}
		unread, err := s.Notifications.CountUnread(ctx, userID)
		if err != nil {
			return s.fail(ctx, err)
		}
		if list == nil {
			list = []notifications.Notification{}
		}
		return handler.JSON(list, handler.WithJSONMeta(map[string]any{"unread": unread}))
	}, binder.BindQuery())
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

func (s *server) markNotificationsRead() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, req markReadRequest) handler.Response {
		if len(req.IDs) == 0 {
			return s.fail(ctx, handler.ErrUnprocessableEntity.WithMessage("ids are required"))
		}
		if err := s.Notifications.MarkRead(ctx, actor(ctx).UserID.String(), req.IDs...); err != nil {
			return s.fail(ctx, err)
		}
		return handler.Empty()
	}, binder.BindJSON())
}
