package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/dashboard"
	"github.com/kursbuero/kursd/internal/livingapps"
	"github.com/kursbuero/kursd/internal/match"
)

// MCPDeps holds dependencies for the MCP tool surface.
type MCPDeps struct {
	Loader    *dashboard.Loader
	Writer    RecordWriter
	EncodeRef func(target catalog.Key, recordID string) string
}

// NewMCPServer creates an MCP server exposing the course dashboard to AI
// assistants: read access to courses and stats, fuzzy participant lookup,
// and enrollment creation.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"kursd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("kursd, a course administration dashboard: rooms, instructors, courses, participants, and enrollments."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_courses",
			mcp.WithDescription("List courses with resolved instructor and room names and their status."),
			mcp.WithString("filter", mcp.Description("Status filter: all, active, full, or past (default all)")),
		),
		mcpListCourses(deps),
	)

	s.AddTool(
		mcp.NewTool("course_status",
			mcp.WithDescription("Return enrollment count, capacity, and status of one course."),
			mcp.WithString("course_id", mcp.Description("Record id of the course"), mcp.Required()),
		),
		mcpCourseStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("find_participant",
			mcp.WithDescription("Find a participant by approximate name match (first match wins)."),
			mcp.WithString("name", mcp.Description("Full or partial participant name"), mcp.Required()),
		),
		mcpFindParticipant(deps),
	)

	s.AddTool(
		mcp.NewTool("create_enrollment",
			mcp.WithDescription("Enroll a participant into a course."),
			mcp.WithString("participant_id", mcp.Description("Record id of the participant"), mcp.Required()),
			mcp.WithString("course_id", mcp.Description("Record id of the course"), mcp.Required()),
			mcp.WithBoolean("paid", mcp.Description("Whether the enrollment is already paid")),
		),
		mcpCreateEnrollment(deps),
	)

	s.AddTool(
		mcp.NewTool("dashboard_stats",
			mcp.WithDescription("Return the dashboard headline numbers as JSON."),
		),
		mcpDashboardStats(deps),
	)

	return s
}

func mcpSnapshot(deps MCPDeps) (*dashboard.Snapshot, *mcp.CallToolResult) {
	snap, _, lastErr := deps.Loader.Snapshot()
	if snap == nil {
		if lastErr != nil {
			return nil, mcpError(fmt.Sprintf("data not loaded: %v", lastErr))
		}
		return nil, mcpError("data not loaded yet")
	}
	return snap, nil
}

func mcpListCourses(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, errResult := mcpSnapshot(deps)
		if errResult != nil {
			return errResult, nil
		}

		filter := req.GetString("filter", "all")
		views := dashboard.FilterCourseViews(snap.CourseViews(dashboard.Today(time.Now())), filter)

		type courseResult struct {
			ID         string                 `json:"id"`
			Title      string                 `json:"title"`
			Instructor string                 `json:"instructor,omitempty"`
			Room       string                 `json:"room,omitempty"`
			Status     dashboard.CourseStatus `json:"status"`
		}
		results := make([]courseResult, len(views))
		for i, v := range views {
			results[i] = courseResult{
				ID:         v.ID,
				Title:      catalog.StringField(v.Fields, "titel"),
				Instructor: v.InstructorName,
				Room:       v.RoomName,
				Status:     v.Status,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCourseStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		courseID, err := req.RequireString("course_id")
		if err != nil {
			return mcpError("course_id is required"), nil
		}

		snap, errResult := mcpSnapshot(deps)
		if errResult != nil {
			return errResult, nil
		}

		course, ok := snap.Tables[catalog.Courses][courseID]
		if !ok {
			return mcpError(fmt.Sprintf("course %s not found", courseID)), nil
		}

		status := dashboard.StatusFor(course, snap.Records(catalog.Enrollments), dashboard.Today(time.Now()))
		b, err := json.Marshal(status)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpFindParticipant(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}

		snap, errResult := mcpSnapshot(deps)
		if errResult != nil {
			return errResult, nil
		}

		hit := match.First(name, snap.Records(catalog.Participants), func(r livingapps.Record) string {
			return catalog.JoinName(r.Fields, "vorname", "nachname")
		})
		if hit == nil {
			return mcpText("no match"), nil
		}

		b, err := json.Marshal(map[string]string{
			"id":   hit.ID,
			"name": catalog.JoinName(hit.Fields, "vorname", "nachname"),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCreateEnrollment(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		participantID, err := req.RequireString("participant_id")
		if err != nil {
			return mcpError("participant_id is required"), nil
		}
		courseID, err := req.RequireString("course_id")
		if err != nil {
			return mcpError("course_id is required"), nil
		}

		snap, errResult := mcpSnapshot(deps)
		if errResult != nil {
			return errResult, nil
		}
		if _, ok := snap.Tables[catalog.Participants][participantID]; !ok {
			return mcpError(fmt.Sprintf("participant %s not found", participantID)), nil
		}
		if _, ok := snap.Tables[catalog.Courses][courseID]; !ok {
			return mcpError(fmt.Sprintf("course %s not found", courseID)), nil
		}

		fields := map[string]any{
			"teilnehmer":   deps.EncodeRef(catalog.Participants, participantID),
			"kurs":         deps.EncodeRef(catalog.Courses, courseID),
			"anmeldedatum": time.Now().UTC().Format("2006-01-02"),
			"bezahlt":      req.GetBool("paid", false),
		}
		created, err := deps.Writer.CreateRecord(ctx, deps.Loader.AppID(catalog.Enrollments), fields)
		if err != nil {
			return mcpError(fmt.Sprintf("creating enrollment: %v", err)), nil
		}
		deps.Loader.MarkStale()

		return mcpText(fmt.Sprintf("Created enrollment %s", created.ID)), nil
	}
}

func mcpDashboardStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, errResult := mcpSnapshot(deps)
		if errResult != nil {
			return errResult, nil
		}

		b, err := json.Marshal(snap.ComputeStats(dashboard.Today(time.Now())))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
