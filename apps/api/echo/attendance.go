package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/quangdn/vibecheck/core"
	"github.com/quangdn/vibecheck/core/attendance"
	"github.com/quangdn/vibecheck/services/realtime"
)

type attendanceApi struct {
	svc      attendance.ServiceInterface
	hub      *realtime.Hub
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func registerAttendanceAPI(g *echo.Group, deps ServerDeps) {
	api := attendanceApi{
		svc:      deps.AttendanceSvc,
		hub:      deps.Hub,
		validate: deps.Validate,
		upgrader: websocket.Upgrader{
			// caller identity is resolved upstream; the observer UI is served
			// from another origin in dev
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	ag := g.Group("/attendance")

	ag.POST("/sessions", api.createSession)
	ag.GET("/sessions/active/:courseID", api.getActiveSession)
	ag.POST("/sessions/:id/end", api.endSession)
	ag.POST("/check", api.checkIn)
	ag.GET("/sessions/:id/records", api.listRecords)
	ag.GET("/sessions/:id/live", api.live)
	ag.GET("/courses/:courseID/summary", api.courseSummary)
}

// Handlers

func (api *attendanceApi) createSession(ctx echo.Context) error {
	var data attendance.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *attendanceApi) getActiveSession(ctx echo.Context) error {
	courseID, err := pathID(ctx, "courseID")
	if err != nil {
		return err
	}

	sess, err := api.svc.GetActive(ctx.Request().Context(), courseID)
	if err != nil {
		if errors.Cause(err) == attendance.ErrSessionNotFound {
			// no active window is a normal answer, not an error
			return ctx.JSON(http.StatusOK, nil)
		}
		return errors.Wrap(err, "finding active session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *attendanceApi) endSession(ctx echo.Context) error {
	sessionID, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	if err := api.svc.End(ctx.Request().Context(), sessionID); err != nil {
		return errors.Wrap(err, "ending session")
	}
	return ctx.JSON(http.StatusOK, successResponse{Success: true})
}

func (api *attendanceApi) checkIn(ctx echo.Context) error {
	var data attendance.CheckIn
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckIn")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if _, err := api.svc.CheckIn(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse{Success: true})
}

func (api *attendanceApi) listRecords(ctx echo.Context) error {
	sessionID, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	records, err := api.svc.ListRecords(ctx.Request().Context(), sessionID)
	if err != nil {
		return errors.Wrap(err, "listing check-in records")
	}
	if records == nil {
		records = []attendance.RecordInfo{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) courseSummary(ctx echo.Context) error {
	courseID, err := pathID(ctx, "courseID")
	if err != nil {
		return err
	}

	summaries, err := api.svc.CourseSummary(ctx.Request().Context(), courseID)
	if err != nil {
		return errors.Wrap(err, "querying course summary")
	}
	if summaries == nil {
		summaries = []attendance.StudentSummary{}
	}
	return ctx.JSON(http.StatusOK, summaries)
}

// live upgrades the observer connection and hands it to the fan-out hub.
// The hub owns the connection from here on; the handler returns immediately.
func (api *attendanceApi) live(ctx echo.Context) error {
	sessionID, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return errors.Wrap(err, "upgrading observer connection")
	}
	api.hub.Subscribe(sessionID, conn)
	return nil
}

func pathID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id < 1 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a positive integer"})
	}
	return id, nil
}

type successResponse struct {
	Success bool `json:"success"`
}
