package models

import (
	"errors"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *RuntimeConfigStore {
	t.Helper()
	store, err := NewRuntimeConfigStore(DefaultRuntimeConfig())
	if err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	return store
}

func TestPollReinitializeClearsFlagOnce(t *testing.T) {
	store := newTestStore(t)

	snap, requested := store.PollReinitialize()
	if !requested {
		t.Fatal("expected initial reinitialize request")
	}
	if snap.FrameWidth != 640 || snap.FrameHeight != 480 {
		t.Fatalf("unexpected snapshot resolution %dx%d", snap.FrameWidth, snap.FrameHeight)
	}

	if _, requested := store.PollReinitialize(); requested {
		t.Fatal("flag should be cleared by the first poll")
	}

	if err := store.Mutate(func(c *RuntimeConfig) {
		c.CameraIndex = 3
		c.ReinitializeCamera = true
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	snap, requested = store.PollReinitialize()
	if !requested || snap.CameraIndex != 3 {
		t.Fatalf("expected request for camera 3, got requested=%v index=%d", requested, snap.CameraIndex)
	}
}

func TestMutateRejectsInvalidValuesWhole(t *testing.T) {
	store := newTestStore(t)
	before := store.Read()

	cases := []struct {
		name   string
		mutate func(*RuntimeConfig)
		param  string
	}{
		{"too many faces", func(c *RuntimeConfig) { c.CameraIndex = 2; c.MaxNumFaces = 6 }, "MaxNumFaces"},
		{"zero faces", func(c *RuntimeConfig) { c.MaxNumFaces = 0 }, "MaxNumFaces"},
		{"low confidence", func(c *RuntimeConfig) { c.DetectionConfidence = 0.05 }, "DetectionConfidence"},
		{"high tracking", func(c *RuntimeConfig) { c.TrackingConfidence = 1.5 }, "TrackingConfidence"},
		{"negative camera", func(c *RuntimeConfig) { c.CameraIndex = -1 }, "CameraIndex"},
		{"odd resolution", func(c *RuntimeConfig) { c.FrameWidth, c.FrameHeight = 800, 600 }, "Resolution"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Mutate(tc.mutate)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Parameter != tc.param {
				t.Fatalf("expected parameter %s, got %s", tc.param, ve.Parameter)
			}
			after := store.Read()
			if after.CameraIndex != before.CameraIndex || after.MaxNumFaces != before.MaxNumFaces {
				t.Fatalf("rejected mutation leaked partial state: %+v", after)
			}
		})
	}
}

func TestReadReturnsIndependentCopy(t *testing.T) {
	store := newTestStore(t)

	snap := store.Read()
	snap.EnabledFilters[0] = "mustache"
	snap.SetEnabled("extra", true)

	again := store.Read()
	if len(again.EnabledFilters) != 1 || again.EnabledFilters[0] != "glasses" {
		t.Fatalf("snapshot mutation leaked into store: %v", again.EnabledFilters)
	}
}

func TestSetEnabledKeepsOrder(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.SetEnabled("mustache", true)
	cfg.SetEnabled("mustache", true)
	if got := cfg.EnabledFilters; len(got) != 2 || got[0] != "glasses" || got[1] != "mustache" {
		t.Fatalf("unexpected filters %v", got)
	}
	cfg.SetEnabled("glasses", false)
	if !cfg.IsEnabled("mustache") || cfg.IsEnabled("glasses") {
		t.Fatalf("unexpected filters after disable %v", cfg.EnabledFilters)
	}
}

// Two writers set distinct, internally consistent records. Every observed
// snapshot must match one writer completely.
func TestConcurrentMutateNeverObservesHybrid(t *testing.T) {
	store := newTestStore(t)

	writerA := func(c *RuntimeConfig) {
		c.CameraIndex = 1
		c.FrameWidth, c.FrameHeight = 1280, 720
		c.MaxNumFaces = 2
		c.ReinitializeCamera = true
	}
	writerB := func(c *RuntimeConfig) {
		c.CameraIndex = 4
		c.FrameWidth, c.FrameHeight = 1920, 1080
		c.MaxNumFaces = 5
		c.ReinitializeCamera = true
	}

	consistent := func(c RuntimeConfig) bool {
		switch c.CameraIndex {
		case 0:
			return c.FrameWidth == 640 && c.MaxNumFaces == 1
		case 1:
			return c.FrameWidth == 1280 && c.FrameHeight == 720 && c.MaxNumFaces == 2
		case 4:
			return c.FrameWidth == 1920 && c.FrameHeight == 1080 && c.MaxNumFaces == 5
		}
		return false
	}

	const rounds = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := store.Mutate(writerA); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := store.Mutate(writerB); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		snap, _ := store.PollReinitialize()
		if !consistent(snap) {
			t.Fatalf("observed hybrid configuration: %+v", snap)
		}
		select {
		case <-done:
			final := store.Read()
			if final.CameraIndex != 1 && final.CameraIndex != 4 {
				t.Fatalf("final state belongs to no writer: %+v", final)
			}
			return
		default:
		}
	}
}
