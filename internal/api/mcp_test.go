package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/dashboard"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	deps, _ := newTestDeps(t, nil)
	return MCPDeps{
		Loader:    deps.Loader,
		Writer:    deps.Writer,
		EncodeRef: testEncodeRef,
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPTool_ListCourses(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpListCourses(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_courses", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var courses []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Status struct {
			Count int `json:"count"`
		} `json:"status"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &courses); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(courses) != 1 || courses[0].ID != "c1" {
		t.Fatalf("courses = %+v", courses)
	}
	if courses[0].Title != "Yoga am Morgen" || courses[0].Status.Count != 1 {
		t.Errorf("course = %+v", courses[0])
	}
}

func TestMCPTool_ListCourses_NotLoaded(t *testing.T) {
	deps := newTestMCPDeps(t)
	deps.Loader = dashboard.New(&fakeSource{}, testAppIDs(), nil)
	handler := mcpListCourses(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_courses", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result before first load")
	}
}

func TestMCPTool_CourseStatus(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpCourseStatus(deps)

	result, err := handler(context.Background(), makeCallToolRequest("course_status", map[string]interface{}{
		"course_id": "c1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var status dashboard.CourseStatus
	if err := json.Unmarshal([]byte(toolText(t, result)), &status); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if status.Count != 1 || status.Max != 10 || status.IsFull {
		t.Errorf("status = %+v", status)
	}
}

func TestMCPTool_CourseStatus_Unknown(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpCourseStatus(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("course_status", map[string]interface{}{
		"course_id": "missing",
	}))
	if !result.IsError {
		t.Fatal("expected error result for unknown course")
	}
}

func TestMCPTool_FindParticipant(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpFindParticipant(deps)

	result, err := handler(context.Background(), makeCallToolRequest("find_participant", map[string]interface{}{
		"name": "jonas",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var hit map[string]string
	if err := json.Unmarshal([]byte(toolText(t, result)), &hit); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if hit["id"] != "p1" || hit["name"] != "Jonas Schmidt" {
		t.Errorf("hit = %v", hit)
	}
}

func TestMCPTool_FindParticipant_NoMatch(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpFindParticipant(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("find_participant", map[string]interface{}{
		"name": "Unbekannt",
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if toolText(t, result) != "no match" {
		t.Errorf("text = %q, want no match", toolText(t, result))
	}
}

func TestMCPTool_CreateEnrollment(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpCreateEnrollment(deps)

	result, err := handler(context.Background(), makeCallToolRequest("create_enrollment", map[string]interface{}{
		"participant_id": "p1",
		"course_id":      "c1",
		"paid":           true,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "new-1") {
		t.Errorf("text = %q, want created record id", toolText(t, result))
	}

	writer := deps.Writer.(*fakeWriter)
	fields := writer.created["app-anmeldungen"]
	if fields == nil {
		t.Fatal("writer not called for enrollments app")
	}
	if fields["teilnehmer"] != testEncodeRef(catalog.Participants, "p1") {
		t.Errorf("teilnehmer = %v", fields["teilnehmer"])
	}
	if fields["bezahlt"] != true {
		t.Errorf("bezahlt = %v, want true", fields["bezahlt"])
	}

	if !deps.Loader.IsStale() {
		t.Error("snapshot not marked stale after enrollment")
	}
}

func TestMCPTool_CreateEnrollment_UnknownParticipant(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpCreateEnrollment(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("create_enrollment", map[string]interface{}{
		"participant_id": "missing",
		"course_id":      "c1",
	}))
	if !result.IsError {
		t.Fatal("expected error result for unknown participant")
	}

	if writer := deps.Writer.(*fakeWriter); writer.created != nil {
		t.Error("writer called for invalid enrollment")
	}
}

func TestMCPTool_DashboardStats(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpDashboardStats(deps)

	result, err := handler(context.Background(), makeCallToolRequest("dashboard_stats", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stats dashboard.Stats
	if err := json.Unmarshal([]byte(toolText(t, result)), &stats); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if stats.TotalCourses != 1 || stats.Enrollments != 1 || stats.TotalRevenue != 30 {
		t.Errorf("stats = %+v", stats)
	}
}
