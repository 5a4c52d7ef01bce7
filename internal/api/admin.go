package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/linkshelf/linkshelf/binder"
	"github.com/linkshelf/linkshelf/handler"
	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/reports"
)

type createVersionRequest struct {
	PlanID uuid.UUID `path:"planID" json:"-"`
	billing.VersionAttributes
}

func (s *server) createPlanVersion() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, req createVersionRequest) handler.Response {
		v, err := s.Catalog.CreateVersion(ctx, actor(ctx), req.PlanID, req.VersionAttributes)
		if err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(v, handler.WithJSONStatus(http.StatusCreated))
	}, binder.BindJSON(), binder.Path(chi.URLParam))
}

func (s *server) listReportSchedules() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, _ empty) handler.Response {
		list, err := s.Reports.List(ctx, actor(ctx))
		if err != nil {
			return s.fail(ctx, err)
		}
		if list == nil {
			list = []reports.Schedule{}
		}
		return handler.JSON(list)
	})
}

func (s *server) createReportSchedule() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, req reports.CreateParams) handler.Response {
		sched, err := s.Reports.Create(ctx, actor(ctx), req)
		if err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(sched, handler.WithJSONStatus(http.StatusCreated))
	}, binder.BindJSON())
}

type setActiveRequest struct {
	ScheduleID uuid.UUID `path:"scheduleID" json:"-"`
	Active     bool      `json:"active"`
}

func (s *server) setReportScheduleActive() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, req setActiveRequest) handler.Response {
		sched, err := s.Reports.SetActive(ctx, actor(ctx), req.ScheduleID, req.Active)
		if err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(sched)
	}, binder.BindJSON(), binder.Path(chi.URLParam))
}
