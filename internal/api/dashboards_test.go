package api

import (
	"net/http"
	"testing"
)

func createDashboard(t *testing.T, h http.Handler, name string) string {
	t.Helper()
	rr := serve(h, http.MethodPost, "/v1/dashboards", `{"name":"`+name+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body=%s", rr.Code, rr.Body.String())
	}
	id, _ := decodeBody(t, rr)["id"].(string)
	if id == "" {
		t.Fatal("created dashboard has no id")
	}
	return id
}

func TestDashboardRenderIsolatesBrokenTiles(t *testing.T) {
	h, _ := newTestServer(t)
	salesID := saveSalesReport(t, h)
	rr := serve(h, http.MethodPost, "/v1/reports", `{"name":"Broken","sql":"`+brokenSQL+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("save broken status = %d", rr.Code)
	}
	brokenID := decodeBody(t, rr)["id"].(string)

	dashboardID := createDashboard(t, h, "Sales")
	rr = serve(h, http.MethodPut, "/v1/dashboards/"+dashboardID+"/reports", mustJSON(t, map[string]any{
		"report_ids": []string{salesID, brokenID, salesID},
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("set reports status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if ids := decodeBody(t, rr)["report_ids"].([]any); len(ids) != 2 || ids[0] != salesID || ids[1] != brokenID {
		t.Fatalf("report_ids = %v", ids)
	}

	rr = serve(h, http.MethodGet, "/v1/dashboards/"+dashboardID+"/render", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("render status = %d, body=%s", rr.Code, rr.Body.String())
	}
	tiles := decodeBody(t, rr)["tiles"].([]any)
	if len(tiles) != 2 {
		t.Fatalf("tiles = %v", tiles)
	}
	first := tiles[0].(map[string]any)
	if _, failed := first["error"]; failed {
		t.Fatalf("first tile failed: %v", first)
	}
	if spec := first["outcome"].(map[string]any)["spec"].(map[string]any); spec["template"] != "chart3" {
		t.Fatalf("first tile spec = %v", spec)
	}
	second := tiles[1].(map[string]any)
	if tileErr := second["error"].(map[string]any); tileErr["kind"] != "upstream_query" {
		t.Fatalf("second tile error = %v", tileErr)
	}
}

func TestDashboardRejectsUnknownReport(t *testing.T) {
	h, _ := newTestServer(t)
	dashboardID := createDashboard(t, h, "Ops")

	rr := serve(h, http.MethodPut, "/v1/dashboards/"+dashboardID+"/reports", `{"report_ids":["ghost"]}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "UNKNOWN_REPORT" {
		t.Fatalf("body = %v", body)
	}
	if ctx := body["context"].(map[string]any); ctx["report_id"] != "ghost" {
		t.Fatalf("context = %v", ctx)
	}

	rr = serve(h, http.MethodGet, "/v1/dashboards/"+dashboardID, "")
	if ids := decodeBody(t, rr)["report_ids"].([]any); len(ids) != 0 {
		t.Fatalf("membership changed: %v", ids)
	}
}

func TestDeletedReportRendersNotFoundTile(t *testing.T) {
	h, _ := newTestServer(t)
	salesID := saveSalesReport(t, h)
	dashboardID := createDashboard(t, h, "Sales")
	if rr := serve(h, http.MethodPut, "/v1/dashboards/"+dashboardID+"/reports", `{"report_ids":["`+salesID+`"]}`); rr.Code != http.StatusOK {
		t.Fatalf("set reports status = %d", rr.Code)
	}
	if rr := serve(h, http.MethodDelete, "/v1/reports/"+salesID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete report status = %d", rr.Code)
	}

	rr := serve(h, http.MethodGet, "/v1/dashboards/"+dashboardID+"/render", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("render status = %d", rr.Code)
	}
	tile := decodeBody(t, rr)["tiles"].([]any)[0].(map[string]any)
	if tileErr := tile["error"].(map[string]any); tileErr["kind"] != "not_found" {
		t.Fatalf("tile error = %v", tileErr)
	}
}

func TestDashboardCRUD(t *testing.T) {
	h, _ := newTestServer(t)
	if rr := serve(h, http.MethodPost, "/v1/dashboards", `{"name":" "}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("blank name status = %d", rr.Code)
	}
	id := createDashboard(t, h, "Finance")

	rr := serve(h, http.MethodGet, "/v1/dashboards", "")
	if dashboards := decodeBody(t, rr)["dashboards"].([]any); len(dashboards) != 1 {
		t.Fatalf("dashboards = %v", dashboards)
	}
	if rr = serve(h, http.MethodDelete, "/v1/dashboards/"+id, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = serve(h, http.MethodGet, "/v1/dashboards/"+id+"/render", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("render missing status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "DASHBOARD_NOT_FOUND" {
		t.Fatalf("body = %v", body)
	}
}
