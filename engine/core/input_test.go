package core

import "testing"

func TestInputProcessKeyTracksCurrentAndPrevious(t *testing.T) {
	if err := InputInitialize(); err != nil {
		t.Fatalf("InputInitialize: %s", err)
	}
	defer InputShutdown()

	if InputIsKeyDown(KEY_A) {
		t.Fatal("KEY_A reported down before any press")
	}

	if err := InputProcessKey(KEY_A, true); err != nil {
		t.Fatalf("InputProcessKey: %s", err)
	}
	if !InputIsKeyDown(KEY_A) {
		t.Error("KEY_A should be down after a press event")
	}
	if InputWasKeyDown(KEY_A) {
		t.Error("KEY_A should not yet be down in the previous frame's snapshot")
	}

	if err := InputUpdate(0.016); err != nil {
		t.Fatalf("InputUpdate: %s", err)
	}
	if !InputWasKeyDown(KEY_A) {
		t.Error("KEY_A should be down in the previous snapshot after InputUpdate")
	}

	if err := InputProcessKey(KEY_A, false); err != nil {
		t.Fatalf("InputProcessKey: %s", err)
	}
	if InputIsKeyUp(KEY_A) == false {
		t.Error("KEY_A should be up after a release event")
	}
}

func TestInputProcessButtonTracksState(t *testing.T) {
	if err := InputInitialize(); err != nil {
		t.Fatalf("InputInitialize: %s", err)
	}
	defer InputShutdown()

	if err := InputProcessButton(BUTTON_LEFT, true); err != nil {
		t.Fatalf("InputProcessButton: %s", err)
	}
	if !InputIsButtonDown(BUTTON_LEFT) {
		t.Error("BUTTON_LEFT should be down after a press event")
	}

	if err := InputUpdate(0.016); err != nil {
		t.Fatalf("InputUpdate: %s", err)
	}
	if !InputWasButtonDown(BUTTON_LEFT) {
		t.Error("BUTTON_LEFT should be down in the previous snapshot after InputUpdate")
	}
}

func TestInputProcessMouseMoveTracksPosition(t *testing.T) {
	if err := InputInitialize(); err != nil {
		t.Fatalf("InputInitialize: %s", err)
	}
	defer InputShutdown()

	if err := InputProcessMouseMove(10, 20); err != nil {
		t.Fatalf("InputProcessMouseMove: %s", err)
	}
	x, y := InputGetMousePosition()
	if x != 10 || y != 20 {
		t.Errorf("InputGetMousePosition = (%d, %d), want (10, 20)", x, y)
	}
}
