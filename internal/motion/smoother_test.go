package motion

import (
	"math"
	"testing"
	"time"

	"github.com/danmuck/strokectl/internal/testutil/testlog"
)

var t0 = time.Unix(1700000000, 0)

func TestSpringConvergesWithBoundedVelocity(t *testing.T) {
	testlog.Start(t)
	for _, target := range []float64{0.0, 0.2, 0.55, 0.8, 1.0} {
		s := NewSpringDamper(DefaultSpringConfig())
		if s.Position() != 0.5 || s.Velocity() != 0 {
			t.Fatalf("unexpected seed pos=%v vel=%v", s.Position(), s.Velocity())
		}
		s.Press(target, t0)
		for i := 0; i < 400; i++ {
			steps := s.Tick(TickFrame, t0)
			if math.Abs(s.Velocity()) > 0.1+1e-12 {
				t.Fatalf("target %v tick %d: |vel| %v exceeds vMax", target, i, s.Velocity())
			}
			if len(steps) != 1 || steps[0].Position != s.Position() {
				t.Fatalf("target %v tick %d: a dragging spring steps every frame, got=%v", target, i, steps)
			}
		}
		if math.Abs(s.Position()-target) > 1e-6 {
			t.Fatalf("target %v: did not converge, pos=%v", target, s.Position())
		}
	}
}

func TestSpringMonotonicTowardBoundTargets(t *testing.T) {
	testlog.Start(t)
	for _, target := range []float64{0, 1} {
		s := NewSpringDamper(DefaultSpringConfig())
		s.Press(target, t0)
		prevDist := math.Abs(target - s.Position())
		for i := 0; i < 200; i++ {
			s.Tick(TickFrame, t0)
			dist := math.Abs(target - s.Position())
			if dist > prevDist {
				t.Fatalf("target %v tick %d: distance grew %v -> %v", target, i, prevDist, dist)
			}
			prevDist = dist
		}
	}
}

func TestSpringResidualMotionAfterRelease(t *testing.T) {
	testlog.Start(t)
	s := NewSpringDamper(DefaultSpringConfig())
	if s.Timers().Frame {
		t.Fatalf("an idle spring needs no frames")
	}
	if steps := s.Tick(TickFrame, t0); steps != nil {
		t.Fatalf("idle spring stepped: %v", steps)
	}
	s.Press(0.9, t0)
	s.Tick(TickFrame, t0)
	s.Release(t0)
	if !s.Timers().Frame {
		t.Fatalf("residual motion should keep the frame ticker")
	}
	ticks := 0
	for s.Timers().Frame {
		if len(s.Tick(TickFrame, t0)) != 1 {
			t.Fatalf("residual tick produced no step")
		}
		ticks++
		if ticks > 1000 {
			t.Fatalf("residual motion never settled")
		}
	}
	if math.Abs(s.Position()-0.9) > 1e-3 {
		t.Fatalf("settled away from target: %v", s.Position())
	}
	if steps := s.Tick(TickSend, t0); steps != nil {
		t.Fatalf("spring ignores send ticks, got=%v", steps)
	}
}

func TestSpringSpeedClampLimitsTravel(t *testing.T) {
	testlog.Start(t)
	s := NewSpringDamper(DefaultSpringConfig())
	s.Limit(0.25)
	s.Press(1, t0)
	prev := s.Position()
	for i := 0; i < 50; i++ {
		s.Tick(TickFrame, t0)
		if d := s.Position() - prev; d > 0.025+1e-12 {
			t.Fatalf("tick %d travelled %v past the clamped ceiling", i, d)
		}
		prev = s.Position()
	}
}

// drag feeds frame samples at 10ms spacing from..to and returns the time of
// the last sample.
func drag(s *SampledMomentum, from, to float64, frames int) time.Time {
	s.Press(from, t0)
	now := t0
	for i := 1; i <= frames; i++ {
		now = t0.Add(time.Duration(i) * 10 * time.Millisecond)
		s.Drag(from+(to-from)*float64(i)/float64(frames), now)
		s.Tick(TickFrame, now)
	}
	return now
}

func TestSampledSpeedNormalization(t *testing.T) {
	testlog.Start(t)
	s := NewSampledMomentum(DefaultSampledConfig())
	// 0.1 over 40ms is 2.5 units/s
	now := drag(s, 0.2, 0.3, 4)
	steps := s.Tick(TickSend, now)
	if len(steps) != 1 {
		t.Fatalf("expected one step, got=%v", steps)
	}
	if math.Abs(steps[0].Speed-0.5) > 1e-9 || math.Abs(steps[0].Position-0.3) > 1e-9 || steps[0].Final {
		t.Fatalf("unexpected step: %+v", steps[0])
	}

	// slow motion gets the floor
	s = NewSampledMomentum(DefaultSampledConfig())
	now = drag(s, 0.5, 0.501, 4)
	steps = s.Tick(TickSend, now)
	if steps[0].Speed != 0.05 {
		t.Fatalf("floor not applied: %+v", steps[0])
	}

	// no motion stays at zero
	s = NewSampledMomentum(DefaultSampledConfig())
	now = drag(s, 0.5, 0.5, 4)
	steps = s.Tick(TickSend, now)
	if steps[0].Speed != 0 {
		t.Fatalf("stationary pointer got speed %v", steps[0].Speed)
	}

	// fast motion is clamped but the raw value is kept for momentum
	s = NewSampledMomentum(DefaultSampledConfig())
	now = drag(s, 0.0, 0.9, 4)
	steps = s.Tick(TickSend, now)
	if steps[0].Speed != 1 || s.LastSpeed() <= 1 {
		t.Fatalf("clamp got speed=%v last=%v", steps[0].Speed, s.LastSpeed())
	}
}

func TestSampledWindowKeepsLastFiveSamples(t *testing.T) {
	testlog.Start(t)
	s := NewSampledMomentum(DefaultSampledConfig())
	s.Press(0, t0)
	now := t0
	for i := 1; i <= 20; i++ {
		now = t0.Add(time.Duration(i) * 10 * time.Millisecond)
		pos := 0.0
		if i > 10 {
			pos = 0.5
		}
		s.Drag(pos, now)
		s.Tick(TickFrame, now)
	}
	if len(s.samples) != 5 {
		t.Fatalf("window size got=%d", len(s.samples))
	}
	if steps := s.Tick(TickSend, now); steps[0].Speed != 0 {
		t.Fatalf("old samples leaked into the window: %+v", steps[0])
	}
}

func TestSampledReleaseWithoutMomentumIsFinal(t *testing.T) {
	testlog.Start(t)
	s := NewSampledMomentum(DefaultSampledConfig())
	now := drag(s, 0.4, 0.41, 4)
	s.Tick(TickSend, now)
	steps := s.Release(now)
	if len(steps) != 1 || !steps[0].Final || steps[0].Speed != 0.1 || math.Abs(steps[0].Position-0.41) > 1e-9 {
		t.Fatalf("unexpected release: %+v", steps)
	}
	if tm := s.Timers(); tm.Frame || tm.Send || tm.Momentum {
		t.Fatalf("no timers expected after release: %+v", tm)
	}
}

func TestSampledMomentumDecaysToFinal(t *testing.T) {
	testlog.Start(t)
	s := NewSampledMomentum(DefaultSampledConfig())
	now := drag(s, 0.2, 0.3, 4)
	s.Tick(TickSend, now)
	speed := s.LastSpeed()
	if math.Abs(speed-0.5) > 1e-9 {
		t.Fatalf("unexpected release speed %v", speed)
	}
	if steps := s.Release(now); steps != nil {
		t.Fatalf("momentum release should defer the final step, got=%v", steps)
	}
	if !s.Timers().Momentum {
		t.Fatalf("momentum timer not requested")
	}

	want := 0
	for v := speed; v >= 0.02; {
		v *= 0.95
		want++
	}
	nonFinal := 0
	var last []Step
	for i := 1; s.Timers().Momentum; i++ {
		if i > 1000 {
			t.Fatalf("momentum never stopped")
		}
		last = s.Tick(TickMomentum, now.Add(time.Duration(i)*20*time.Millisecond))
		for _, st := range last {
			if !st.Final {
				nonFinal++
			}
		}
	}
	if nonFinal != want {
		t.Fatalf("momentum ticks got=%d want=%d", nonFinal, want)
	}
	fin := last[len(last)-1]
	if !fin.Final || fin.Speed != 0.1 || fin.Position <= 0.3 || fin.Position >= 1 {
		t.Fatalf("unexpected final step: %+v", fin)
	}
}

func TestSampledMomentumStopsAtBound(t *testing.T) {
	testlog.Start(t)
	s := NewSampledMomentum(DefaultSampledConfig())
	now := drag(s, 0.7, 0.99, 4)
	s.Tick(TickSend, now)
	s.Release(now)
	var last []Step
	for i := 1; s.Timers().Momentum && i < 1000; i++ {
		last = s.Tick(TickMomentum, now.Add(time.Duration(i)*20*time.Millisecond))
	}
	fin := last[len(last)-1]
	if !fin.Final || fin.Position != 1 {
		t.Fatalf("momentum should end at the bound: %+v", fin)
	}
}

func TestSampledPressCancelsMomentum(t *testing.T) {
	testlog.Start(t)
	s := NewSampledMomentum(DefaultSampledConfig())
	now := drag(s, 0.2, 0.3, 4)
	s.Tick(TickSend, now)
	s.Release(now)
	s.Tick(TickMomentum, now.Add(20*time.Millisecond))
	s.Press(0.6, now.Add(30*time.Millisecond))
	if s.Timers().Momentum {
		t.Fatalf("press did not cancel momentum")
	}
	if steps := s.Tick(TickMomentum, now.Add(40*time.Millisecond)); steps != nil {
		t.Fatalf("cancelled momentum still stepping: %v", steps)
	}
	if s.Position() != 0.6 {
		t.Fatalf("unexpected position after press: %v", s.Position())
	}
}

func TestParseModel(t *testing.T) {
	testlog.Start(t)
	if m, err := ParseModel(""); err != nil || m != ModelSpring {
		t.Fatalf("default model got=%q err=%v", m, err)
	}
	if m, err := ParseModel("Sampled"); err != nil || m != ModelSampled {
		t.Fatalf("sampled got=%q err=%v", m, err)
	}
	if _, err := ParseModel("bezier"); err == nil {
		t.Fatalf("expected error for unknown model")
	}
}
