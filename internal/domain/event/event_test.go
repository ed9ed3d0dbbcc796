package event

import (
	"testing"
	"time"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      string
	}{
		{
			name:      "quote submitted",
			eventType: TypeQuoteSubmitted,
			want:      "quote.submitted",
		},
		{
			name:      "quote approved",
			eventType: TypeQuoteApproved,
			want:      "quote.approved",
		},
		{
			name:      "quote rejected",
			eventType: TypeQuoteRejected,
			want:      "quote.rejected",
		},
		{
			name:      "quote terminated",
			eventType: TypeQuoteTerminated,
			want:      "quote.terminated",
		},
		{
			name:      "status changed",
			eventType: TypeQuoteStatusChanged,
			want:      "quote.status_changed",
		},
		{
			name:      "step decided",
			eventType: TypeStepDecided,
			want:      "step.decided",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.String(); got != tt.want {
				t.Errorf("Type.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{
			name:      "valid - quote submitted",
			eventType: TypeQuoteSubmitted,
			want:      true,
		},
		{
			name:      "valid - quote approved",
			eventType: TypeQuoteApproved,
			want:      true,
		},
		{
			name:      "valid - quote reopened",
			eventType: TypeQuoteReopened,
			want:      true,
		},
		{
			name:      "invalid - unknown type",
			eventType: Type("unknown.type"),
			want:      false,
		},
		{
			name:      "invalid - empty string",
			eventType: Type(""),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_IsTerminal(t *testing.T) {
	tests := []struct {
		eventType Type
		want      bool
	}{
		{TypeQuoteApproved, true},
		{TypeQuoteRejected, true},
		{TypeQuoteTerminated, true},
		{TypeQuoteSubmitted, false},
		{TypeQuoteReopened, false},
		{TypeQuoteStatusChanged, false},
		{TypeStepDecided, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := tt.eventType.IsTerminal(); got != tt.want {
				t.Errorf("Type.IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{
		"persona": "deal_desk",
		"amount":  100.50,
	}

	event := NewEvent(TypeQuoteApproved, "quote-123", "approved", payload)

	if event == nil {
		t.Fatal("NewEvent() returned nil")
	}

	if event.ID == "" {
		t.Error("Event ID should not be empty")
	}

	if event.Type != TypeQuoteApproved {
		t.Errorf("Event Type = %v, want %v", event.Type, TypeQuoteApproved)
	}

	if event.QuoteID != "quote-123" {
		t.Errorf("Event QuoteID = %v, want %v", event.QuoteID, "quote-123")
	}

	if event.QuoteStatus != "approved" {
		t.Errorf("Event QuoteStatus = %v, want %v", event.QuoteStatus, "approved")
	}

	if event.Payload == nil {
		t.Fatal("Event Payload should not be nil")
	}

	if event.Payload["persona"] != "deal_desk" {
		t.Errorf("Event Payload[persona] = %v, want %v", event.Payload["persona"], "deal_desk")
	}

	if event.Timestamp.IsZero() {
		t.Error("Event Timestamp should not be zero")
	}

	if event.CorrelationID == "" {
		t.Error("Event CorrelationID should not be empty")
	}

	// Timestamp should be recent
	if time.Since(event.Timestamp) > time.Second {
		t.Error("Event Timestamp should be recent")
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	correlationID := "test-correlation-123"
	payload := map[string]interface{}{
		"reason": "pricing too aggressive",
	}

	event := NewEventWithCorrelation(TypeQuoteRejected, "quote-789", "rejected", payload, correlationID)

	if event == nil {
		t.Fatal("NewEventWithCorrelation() returned nil")
	}

	if event.CorrelationID != correlationID {
		t.Errorf("Event CorrelationID = %v, want %v", event.CorrelationID, correlationID)
	}

	if event.Type != TypeQuoteRejected {
		t.Errorf("Event Type = %v, want %v", event.Type, TypeQuoteRejected)
	}

	if event.QuoteID != "quote-789" {
		t.Errorf("Event QuoteID = %v, want %v", event.QuoteID, "quote-789")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeQuoteSubmitted, "quote-1", "pending_deal_desk", map[string]interface{}{
		"key1": "value1",
	})

	// Add a new payload key
	modified := original.WithPayload("key2", "value2")

	// Original should be unchanged (immutability)
	if _, exists := original.Payload["key2"]; exists {
		t.Error("Original event should not be modified")
	}

	if original.Payload["key1"] != "value1" {
		t.Error("Original event payload should remain intact")
	}

	// Modified should have both keys
	if modified.Payload["key1"] != "value1" {
		t.Error("Modified event should retain original payload")
	}

	if modified.Payload["key2"] != "value2" {
		t.Error("Modified event should have new payload")
	}

	// Other fields should be copied
	if modified.ID != original.ID {
		t.Error("Modified event should have same ID")
	}

	if modified.Type != original.Type {
		t.Error("Modified event should have same Type")
	}

	if modified.QuoteID != original.QuoteID {
		t.Error("Modified event should have same QuoteID")
	}

	if modified.CorrelationID != original.CorrelationID {
		t.Error("Modified event should have same CorrelationID")
	}
}

func TestEvent_GetPayloadString(t *testing.T) {
	event := NewEvent(TypeQuoteSubmitted, "quote-1", "pending_deal_desk", map[string]interface{}{
		"status":  "approved",
		"number":  123,
		"missing": nil,
	})

	tests := []struct {
		name string
		key  string
		want string
	}{
		{
			name: "existing string",
			key:  "status",
			want: "approved",
		},
		{
			name: "non-string value",
			key:  "number",
			want: "",
		},
		{
			name: "missing key",
			key:  "nonexistent",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := event.GetPayloadString(tt.key); got != tt.want {
				t.Errorf("GetPayloadString(%v) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestEvent_GetPayloadFloat(t *testing.T) {
	event := NewEvent(TypeQuoteSubmitted, "quote-1", "pending_deal_desk", map[string]interface{}{
		"float64": 123.45,
		"int64":   int64(100),
		"int":     50,
		"string":  "not a number",
		"missing": nil,
	})

	tests := []struct {
		name string
		key  string
		want float64
	}{
		{
			name: "float64 value",
			key:  "float64",
			want: 123.45,
		},
		{
			name: "int64 value (converted)",
			key:  "int64",
			want: 100.0,
		},
		{
			name: "int value (converted)",
			key:  "int",
			want: 50.0,
		},
		{
			name: "non-numeric value",
			key:  "string",
			want: 0.0,
		},
		{
			name: "missing key",
			key:  "nonexistent",
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := event.GetPayloadFloat(tt.key); got != tt.want {
				t.Errorf("GetPayloadFloat(%v) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestEvent_GetPayloadBool(t *testing.T) {
	event := NewEvent(TypeQuoteSubmitted, "quote-1", "pending_deal_desk", map[string]interface{}{
		"bool_true":  true,
		"bool_false": false,
		"string":     "not a bool",
	})

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{
			name: "true value",
			key:  "bool_true",
			want: true,
		},
		{
			name: "false value",
			key:  "bool_false",
			want: false,
		},
		{
			name: "non-bool value",
			key:  "string",
			want: false,
		},
		{
			name: "missing key",
			key:  "nonexistent",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := event.GetPayloadBool(tt.key); got != tt.want {
				t.Errorf("GetPayloadBool(%v) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestEvent_UniqueIDs(t *testing.T) {
	// Create multiple events and verify IDs are unique
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		event := NewEvent(TypeQuoteSubmitted, "quote-1", "pending_deal_desk", nil)
		if ids[event.ID] {
			t.Errorf("Duplicate event ID found: %s", event.ID)
		}
		ids[event.ID] = true
	}
}

func TestEvent_CorrelationChain(t *testing.T) {
	// First event in the chain
	event1 := NewEvent(TypeQuoteSubmitted, "quote-1", "pending_deal_desk", nil)
	correlationID := event1.CorrelationID

	// Later events using same correlation ID
	event2 := NewEventWithCorrelation(TypeQuoteStatusChanged, "quote-1", "pending_legal", nil, correlationID)
	event3 := NewEventWithCorrelation(TypeQuoteApproved, "quote-1", "approved", nil, correlationID)

	if event2.CorrelationID != correlationID {
		t.Error("Event2 should have same correlation ID")
	}

	if event3.CorrelationID != correlationID {
		t.Error("Event3 should have same correlation ID")
	}

	// Each event should have unique ID
	if event1.ID == event2.ID || event1.ID == event3.ID || event2.ID == event3.ID {
		t.Error("Events should have unique IDs even with same correlation ID")
	}
}
