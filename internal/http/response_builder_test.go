package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		BodyHTML("<p>test</p>").
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "<p>test</p>" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "<p>test</p>")
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger set without triggers")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerExpensesRefresh().
		TriggerFormReset().
		TriggerCategoriesChanged("Lazer").
		TriggerSuccessNotification("Despesa salva").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}

	var events map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trigger), &events); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	for _, name := range []string{EventExpensesRefresh, EventFormReset, EventCategoriesChanged, EventShowNotification} {
		if _, ok := events[name]; !ok {
			t.Errorf("HX-Trigger missing %q: %s", name, trigger)
		}
	}
	if !strings.Contains(string(events[EventCategoriesChanged]), `"name":"Lazer"`) {
		t.Errorf("categories:changed detail = %s", events[EventCategoriesChanged])
	}
}

func TestHTMXResponseBuilder_NotificationDurations(t *testing.T) {
	tests := []struct {
		name     string
		build    func(*HTMXResponseBuilder) *HTMXResponseBuilder
		wantType string
		wantMs   int
	}{
		{"success", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerSuccessNotification("ok") }, "success", 3000},
		{"info", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerInfoNotification("ok") }, "info", 3000},
		{"warning", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerWarningNotification("ok") }, "warning", 5000},
		{"error stays until dismissed", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerErrorNotification("ok") }, "error", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.build(NewHTMXResponse()).Write(w)

			var events map[string]struct {
				Type     string `json:"type"`
				Message  string `json:"message"`
				Duration int    `json:"duration"`
			}
			if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &events); err != nil {
				t.Fatal(err)
			}
			n := events[EventShowNotification]
			if n.Type != tt.wantType || n.Duration != tt.wantMs || n.Message != "ok" {
				t.Errorf("notification = %+v", n)
			}
		})
	}
}

func TestHTMXResponseBuilder_CustomHeader(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Header("X-Custom", "value").
		Status(http.StatusCreated).
		Write(w)

	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		builder    *HTMXResponseBuilder
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bad request",
			builder:    BadRequestError("Invalid input"),
			wantStatus: http.StatusBadRequest,
			wantBody:   `<div class="error" role="alert">Invalid input</div>`,
		},
		{
			name:       "internal server error",
			builder:    InternalServerError("Something broke"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `<div class="error" role="alert">Something broke</div>`,
		},
		{
			name:       "not found",
			builder:    NotFoundError("Resource not found"),
			wantStatus: http.StatusNotFound,
			wantBody:   `<div class="error" role="alert">Resource not found</div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestErrorResponse_EscapesHTML(t *testing.T) {
	w := httptest.NewRecorder()

	BadRequestError("<script>alert('xss')</script>").Write(w)

	body := w.Body.String()
	if strings.Contains(body, "<script>") {
		t.Error("Error response did not escape HTML")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("Error response did not properly escape HTML entities")
	}
}
