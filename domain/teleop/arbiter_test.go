package teleop

import (
	"testing"

	"github.com/open-teleop/rover/domain/safety"
)

func intentPtr(m MotionIntent) *MotionIntent { return &m }

func TestArbiterResolve(t *testing.T) {
	arb := Arbiter{MaxMagnitude: 100}
	tracking := intentPtr(TrackingIntent(0.375, 0.2))

	tests := []struct {
		name      string
		manual    *MotionIntent
		tracking  *MotionIntent
		state     safety.State
		wantLeft  int
		wantRight int
	}{
		{"nothing", nil, nil, safety.StateNormal, 0, 0},
		{"joystick right", intentPtr(ManualIntent(1, 0)), nil, safety.StateNormal, 100, -100},
		{"forward and turn scaled", intentPtr(ManualIntent(0.5, 0.8)), nil, safety.StateNormal, 100, 23},
		{"manual beats tracking", intentPtr(ManualIntent(0, 1)), tracking, safety.StateNormal, 100, 100},
		{"released manual falls through to tracking", intentPtr(ManualIntent(0, 0)), tracking, safety.StateNormal, 58, 18},
		{"tracking only", nil, tracking, safety.StateNormal, 58, 18},
		{"emergency stop overrides manual", intentPtr(ManualIntent(1, 1)), nil, safety.StateEmergencyStopped, 0, 0},
		{"emergency stop overrides tracking", nil, tracking, safety.StateEmergencyStopped, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := arb.Resolve(tt.manual, tt.tracking, tt.state)
			if cmd.Left != tt.wantLeft || cmd.Right != tt.wantRight {
				t.Errorf("Resolve: got L=%d R=%d, want L=%d R=%d", cmd.Left, cmd.Right, tt.wantLeft, tt.wantRight)
			}
		})
	}
}

func TestArbiterEmergencyStopAlwaysZero(t *testing.T) {
	arb := Arbiter{}
	for x := -1.0; x <= 1.0; x += 0.25 {
		for y := -1.0; y <= 1.0; y += 0.25 {
			manual := intentPtr(ManualIntent(x, y))
			tracking := intentPtr(TrackingIntent(y, x))
			if cmd := arb.Resolve(manual, tracking, safety.StateEmergencyStopped); !cmd.IsZero() {
				t.Fatalf("Resolve(%v, %v, EMERGENCY_STOPPED) = %v, want zero", manual, tracking, cmd)
			}
		}
	}
}

func TestArbiterSelectSource(t *testing.T) {
	arb := Arbiter{}
	manual := intentPtr(ManualIntent(0.1, 0))
	tracking := intentPtr(TrackingIntent(0.5, 0))

	if got := arb.Select(manual, tracking, safety.StateNormal); got.Source != SourceManual {
		t.Errorf("Expected manual source, got %s", got.Source)
	}
	if got := arb.Select(nil, tracking, safety.StateNormal); got.Source != SourceTracking {
		t.Errorf("Expected tracking source, got %s", got.Source)
	}
	if got := arb.Select(manual, tracking, safety.StateEmergencyStopped); got != NoIntent {
		t.Errorf("Expected no intent while stopped, got %v", got)
	}
}

func TestArbiterMagnitudeLimit(t *testing.T) {
	arb := Arbiter{MaxMagnitude: 60}
	cmd := arb.Resolve(intentPtr(ManualIntent(0, 1)), nil, safety.StateNormal)
	if cmd.Left != 60 || cmd.Right != 60 {
		t.Errorf("Expected wheels capped at 60, got %v", cmd)
	}
}

func TestManualIntentNormalizes(t *testing.T) {
	m := ManualIntent(2, -3)
	if m.Turn != 1 || m.Forward != -1 {
		t.Errorf("Expected clamped intent, got %v", m)
	}
	if got := (MotionIntent{Forward: 0.5, Turn: 0.5}).Normalize(); got != NoIntent {
		t.Errorf("Sourceless intent should normalize to zero, got %v", got)
	}
}
